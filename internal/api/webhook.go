package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/xaenox/wa-crm-bot/internal/whatsapp"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// MessageHandler consumes decoded webhook payloads
type MessageHandler interface {
	HandleWebhook(ctx context.Context, payload *whatsapp.WebhookPayload) error
}

// WebhookHandler serves Meta's verification handshake and inbound events
type WebhookHandler struct {
	handler     MessageHandler
	verifyToken string
	appSecret   string
	logger      *zap.Logger
}

// NewWebhookHandler builds the handler. With an empty appSecret request
// signatures are not checked.
func NewWebhookHandler(handler MessageHandler, verifyToken, appSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		handler:     handler,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      logger,
	}
}

// Verify handles GET /webhook subscription checks.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		h.logger.Info("Webhook verification missing parameters")
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Missing parameters"})
		return
	}
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.logger.Info("Webhook verification failed")
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "error", "message": "Verification failed"})
		return
	}

	h.logger.Info("Webhook verified")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, challenge)
}

// Receive handles POST /webhook deliveries synchronously.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Unreadable body"})
		return
	}

	if h.appSecret != "" && !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("Webhook signature verification failed")
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "error", "message": "Invalid signature"})
		return
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("Failed to decode webhook JSON", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Invalid JSON provided"})
		return
	}

	if err := h.handler.HandleWebhook(r.Context(), &payload); err != nil {
		h.logger.Error("Failed to process webhook", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Processing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
