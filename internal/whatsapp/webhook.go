package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrNoContact = errors.New("whatsapp: message has no contact")
	ErrNoText    = errors.New("whatsapp: message has no text body")
)

// Inbound is the part of a webhook the relay acts on.
type Inbound struct {
	WaID string
	Name string
	Body string
}

// IsValidMessage reports whether p has the shape of an inbound user message:
// an object discriminator, a first entry with a first change whose value
// carries at least one non-empty message.
func IsValidMessage(p *WebhookPayload) bool {
	if p == nil || p.Object == "" || len(p.Entry) == 0 {
		return false
	}
	changes := p.Entry[0].Changes
	if len(changes) == 0 || changes[0].Value == nil {
		return false
	}
	messages := changes[0].Value.Messages
	return len(messages) > 0 && !messages[0].empty()
}

// ExtractText pulls sender and text body out of a payload that passed
// IsValidMessage.
func ExtractText(p *WebhookPayload) (Inbound, error) {
	value := p.Entry[0].Changes[0].Value
	if len(value.Contacts) == 0 || value.Contacts[0].WaID == "" {
		return Inbound{}, ErrNoContact
	}
	msg := value.Messages[0]
	if msg.Text == nil {
		return Inbound{}, ErrNoText
	}

	contact := value.Contacts[0]
	return Inbound{
		WaID: contact.WaID,
		Name: contact.Profile.Name,
		Body: msg.Text.Body,
	}, nil
}

// VerifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>")
// against an HMAC of body keyed with the app secret.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if appSecret == "" || !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}
