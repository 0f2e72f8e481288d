package storage

import (
	"context"
	"fmt"

	"github.com/xaenox/wa-crm-bot/internal/models"
)

// DefaultLanguage is stored on users created from an inbound message.
// Per-message language detection never updates it.
const DefaultLanguage = "auto"

// Storage persists users, conversation turns and leads
type Storage interface {
	FindUserByPhone(ctx context.Context, phone string) (*models.User, bool, error)
	CreateUser(ctx context.Context, user *models.User) error
	LoadHistory(ctx context.Context, userID int64) ([]models.Turn, error)
	// SaveTurn appends the user turn and the assistant turn atomically.
	SaveTurn(ctx context.Context, userID int64, userText, assistantText string) error
	LastLead(ctx context.Context, userID int64) (*models.Lead, bool, error)
	CreateLead(ctx context.Context, lead *models.Lead) error
	Close() error
}

// GetOrCreateUser returns the user owning phone, creating it when unseen.
func GetOrCreateUser(ctx context.Context, s Storage, phone, name string) (*models.User, error) {
	user, ok, err := s.FindUserByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if ok {
		return user, nil
	}

	user = &models.User{
		Name:     name,
		Phone:    phone,
		Language: DefaultLanguage,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// RecordLeadIfChanged stores a lead for intent unless it is IntentNone or
// equal to the user's most recent lead. It returns nil when nothing was stored.
func RecordLeadIfChanged(ctx context.Context, s Storage, userID int64, intent models.Intent) (*models.Lead, error) {
	if intent == "" || intent == models.IntentNone {
		return nil, nil
	}

	last, ok, err := s.LastLead(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("last lead: %w", err)
	}
	if ok && last.Intent == intent {
		return nil, nil
	}

	lead := &models.Lead{
		UserID: userID,
		Intent: intent,
		Status: models.LeadStatusNew,
	}
	if err := s.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return lead, nil
}
