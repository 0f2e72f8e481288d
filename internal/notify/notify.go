// Package notify tells a human operator about newly recorded leads.
package notify

import (
	"context"

	"github.com/xaenox/wa-crm-bot/internal/models"
)

type LeadNotifier interface {
	NotifyLead(ctx context.Context, user *models.User, lead *models.Lead)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifyLead(context.Context, *models.User, *models.Lead) {}
