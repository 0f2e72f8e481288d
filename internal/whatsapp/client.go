package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	DefaultHTTPTimeout  = 10 * time.Second
)

// SendObserver is told about every send outcome.
type SendObserver interface {
	ObserveDispatch(status string)
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
	observer      SendObserver
	logger        *zap.Logger
}

func NewClient(accessToken, phoneNumberID string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  DefaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// SetGraphAPIBase overrides the Graph API base URL.
func (c *Client) SetGraphAPIBase(base string) {
	if base != "" {
		c.graphAPIBase = base
	}
}

func (c *Client) SetObserver(o SendObserver) {
	c.observer = o
}

// Send delivers msg. Failures are logged and swallowed; the caller never
// learns whether delivery worked and nothing is retried.
func (c *Client) Send(ctx context.Context, msg TextMessage) {
	resp, err := c.send(ctx, msg)
	if err != nil {
		c.observe("failed")
		c.logger.Error("Failed to send WhatsApp message",
			zap.Error(err),
			zap.String("to", msg.To))
		return
	}

	c.observe("sent")
	fields := []zap.Field{zap.String("to", msg.To)}
	if len(resp.Messages) > 0 {
		fields = append(fields, zap.String("message_id", resp.Messages[0].ID))
	}
	c.logger.Info("WhatsApp message sent", fields...)
}

func (c *Client) send(ctx context.Context, msg TextMessage) (*SendResponse, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var sendResp SendResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &sendResp); err != nil {
			c.logger.Warn("Unreadable send response", zap.Error(err))
		}
	}
	return &sendResp, nil
}

func (c *Client) observe(status string) {
	if c.observer != nil {
		c.observer.ObserveDispatch(status)
	}
}
