package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xaenox/wa-crm-bot/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	users    map[int64]*models.User
	byPhone  map[string]int64
	messages []models.Message
	leads    []models.Lead
	nextID   int64
	now      func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:   make(map[int64]*models.User),
		byPhone: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *MemoryStorage) id() int64 {
	s.nextID++
	return s.nextID
}

// User methods
func (s *MemoryStorage) FindUserByPhone(ctx context.Context, phone string) (*models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byPhone[phone]
	if !exists {
		return nil, false, nil
	}
	user := *s.users[id]
	return &user, true, nil
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same outcome as the postgres ON CONFLICT: hand back the existing row
	if id, exists := s.byPhone[user.Phone]; exists {
		*user = *s.users[id]
		return nil
	}

	user.ID = s.id()
	user.CreatedAt = s.now().UTC()
	stored := *user
	s.users[user.ID] = &stored
	s.byPhone[user.Phone] = user.ID
	return nil
}

// Message methods
func (s *MemoryStorage) LoadHistory(ctx context.Context, userID int64) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []models.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			owned = append(owned, m)
		}
	}
	sort.SliceStable(owned, func(i, j int) bool {
		if owned[i].Timestamp.Equal(owned[j].Timestamp) {
			return owned[i].ID < owned[j].ID
		}
		return owned[i].Timestamp.Before(owned[j].Timestamp)
	})

	history := make([]models.Turn, 0, len(owned))
	for _, m := range owned {
		history = append(history, models.Turn{Role: m.Role, Text: m.Content})
	}
	return history, nil
}

func (s *MemoryStorage) SaveTurn(ctx context.Context, userID int64, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID]; !exists {
		return fmt.Errorf("user %d not found", userID)
	}

	ts := s.now().UTC().Truncate(time.Microsecond)
	s.messages = append(s.messages,
		models.Message{ID: s.id(), UserID: userID, Role: models.RoleUser, Content: userText, Timestamp: ts},
		models.Message{ID: s.id(), UserID: userID, Role: models.RoleAssistant, Content: assistantText, Timestamp: ts.Add(time.Microsecond)},
	)
	return nil
}

// Messages returns a copy of every stored message for userID in insertion order.
func (s *MemoryStorage) Messages(userID int64) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

// Lead methods
func (s *MemoryStorage) LastLead(ctx context.Context, userID int64) (*models.Lead, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *models.Lead
	for i := range s.leads {
		l := s.leads[i]
		if l.UserID != userID {
			continue
		}
		if last == nil || !l.CreatedAt.Before(last.CreatedAt) {
			last = &l
		}
	}
	if last == nil {
		return nil, false, nil
	}
	return last, true, nil
}

func (s *MemoryStorage) CreateLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[lead.UserID]; !exists {
		return fmt.Errorf("user %d not found", lead.UserID)
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}
	lead.ID = s.id()
	lead.CreatedAt = s.now().UTC()
	s.leads = append(s.leads, *lead)
	return nil
}

// Leads returns a copy of every stored lead for userID in creation order.
func (s *MemoryStorage) Leads(userID int64) []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Lead
	for _, l := range s.leads {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out
}

// UserCount reports how many users are stored.
func (s *MemoryStorage) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
