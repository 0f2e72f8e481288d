package models

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Intent is the coarse category of service a customer appears to request
type Intent string

const (
	IntentWebsite Intent = "website request"
	IntentChatbot Intent = "chatbot request"
	IntentDesign  Intent = "design request"
	IntentSupport Intent = "support request"
	IntentNone    Intent = "none"
)

// Intents lists the requestable labels, IntentNone excluded.
var Intents = []Intent{IntentWebsite, IntentChatbot, IntentDesign, IntentSupport}

// ParseIntent maps free text onto the closed label set. Anything that does
// not name a known label is IntentNone.
func ParseIntent(s string) Intent {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, intent := range Intents {
		if strings.Contains(s, string(intent)) {
			return intent
		}
	}
	return IntentNone
}

// LeadStatusNew is the status every lead starts with
const LeadStatusNew = "new"

// User is a WhatsApp contact, keyed externally by phone (wa_id)
type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Language         string    `json:"language"`
	CreatedAt        time.Time `json:"created_at"`
	IntentIdentified bool      `json:"intent_identified"`
}

// Message is one persisted conversation turn
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is a history entry as seen by the classifier and the generator
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Lead records a detected customer intent for follow-up
type Lead struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Intent    Intent    `json:"intent"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
