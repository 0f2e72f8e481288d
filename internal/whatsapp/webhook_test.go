package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"contacts":[{"wa_id":"1555000","profile":{"name":"Ana"}}],"messages":[{"text":{"body":"Hola, necesito un sitio web"}}]}}]}]}`

func decode(t *testing.T, raw string) *WebhookPayload {
	t.Helper()
	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestIsValidMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"valid", samplePayload, true},
		{"missing object", `{"entry":[{"changes":[{"value":{"messages":[{"text":{"body":"x"}}]}}]}]}`, false},
		{"empty entry", `{"object":"whatsapp_business_account","entry":[]}`, false},
		{"no changes", `{"object":"whatsapp_business_account","entry":[{}]}`, false},
		{"no value", `{"object":"whatsapp_business_account","entry":[{"changes":[{}]}]}`, false},
		{"status update", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`, false},
		{"empty messages", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[]}}]}]}`, false},
		{"empty first message", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{}]}}]}]}`, false},
		{"image message", `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"type":"image"}]}}]}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidMessage(decode(t, tt.raw)))
		})
	}
	assert.False(t, IsValidMessage(nil))
}

func TestExtractText(t *testing.T) {
	in, err := ExtractText(decode(t, samplePayload))
	require.NoError(t, err)
	assert.Equal(t, Inbound{WaID: "1555000", Name: "Ana", Body: "Hola, necesito un sitio web"}, in)
}

func TestExtractText_Errors(t *testing.T) {
	_, err := ExtractText(decode(t, `{"object":"w","entry":[{"changes":[{"value":{"messages":[{"type":"image"}],"contacts":[{"wa_id":"1"}]}}]}]}`))
	assert.ErrorIs(t, err, ErrNoText)

	_, err = ExtractText(decode(t, `{"object":"w","entry":[{"changes":[{"value":{"messages":[{"text":{"body":"hi"}}]}}]}]}`))
	assert.ErrorIs(t, err, ErrNoContact)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(samplePayload)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifySignature("app-secret", body, valid))
	assert.False(t, VerifySignature("other-secret", body, valid))
	assert.False(t, VerifySignature("app-secret", []byte("tampered"), valid))
	assert.False(t, VerifySignature("app-secret", body, "sha256="))
	assert.False(t, VerifySignature("app-secret", body, ""))
	assert.False(t, VerifySignature("", body, valid))
}
