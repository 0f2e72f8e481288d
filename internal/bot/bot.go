package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/wa-crm-bot/internal/classifier"
	"github.com/xaenox/wa-crm-bot/internal/metrics"
	"github.com/xaenox/wa-crm-bot/internal/notify"
	"github.com/xaenox/wa-crm-bot/internal/storage"
	"github.com/xaenox/wa-crm-bot/internal/whatsapp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReplyGenerator answers a message and records the exchange
type ReplyGenerator interface {
	Generate(ctx context.Context, body, waID, name string) (string, error)
}

// Dispatcher delivers outbound messages; failures never reach the caller
type Dispatcher interface {
	Send(ctx context.Context, msg whatsapp.TextMessage)
}

type Bot struct {
	storage    storage.Storage
	classifier classifier.Classifier
	generator  ReplyGenerator
	dispatcher Dispatcher
	notifier   notify.LeadNotifier
	metrics    *metrics.RelayMetrics
	recipient  string
	locks      *keyedMutex
	logger     *zap.Logger
	tracer     trace.Tracer
}

type Option func(*Bot)

// WithRecipient sends every reply to a fixed WhatsApp address instead of the sender.
func WithRecipient(waID string) Option {
	return func(b *Bot) { b.recipient = waID }
}

func WithNotifier(n notify.LeadNotifier) Option {
	return func(b *Bot) {
		if n != nil {
			b.notifier = n
		}
	}
}

func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(b *Bot) { b.metrics = m }
}

func New(storage storage.Storage, classifier classifier.Classifier, generator ReplyGenerator, dispatcher Dispatcher, logger *zap.Logger, opts ...Option) *Bot {
	b := &Bot{
		storage:    storage,
		classifier: classifier,
		generator:  generator,
		dispatcher: dispatcher,
		notifier:   notify.Nop{},
		locks:      newKeyedMutex(),
		logger:     logger,
		tracer:     otel.Tracer("wa-crm-bot/internal/bot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleWebhook processes one webhook delivery to completion. Payloads that
// are not inbound text messages are skipped without error.
func (b *Bot) HandleWebhook(ctx context.Context, payload *whatsapp.WebhookPayload) error {
	if !whatsapp.IsValidMessage(payload) {
		b.metrics.ObserveWebhook("skipped")
		b.logger.Debug("Skipping webhook without a message")
		return nil
	}

	in, err := whatsapp.ExtractText(payload)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNoText) || errors.Is(err, whatsapp.ErrNoContact) {
			b.metrics.ObserveWebhook("skipped")
			b.logger.Info("Skipping unsupported message", zap.Error(err))
			return nil
		}
		return err
	}

	start := time.Now()
	if err := b.handleMessage(ctx, in); err != nil {
		b.metrics.ObserveWebhook("failed")
		return err
	}
	b.metrics.ObserveWebhook("processed")
	b.metrics.ObserveWebhookDuration(time.Since(start).Seconds())
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, in whatsapp.Inbound) error {
	deliveryID := uuid.New().String()
	logger := b.logger.With(
		zap.String("delivery_id", deliveryID),
		zap.String("wa_id", in.WaID))

	ctx, span := b.tracer.Start(ctx, "bot.handle_message")
	defer span.End()

	unlock := b.locks.Lock(in.WaID)
	defer unlock()

	user, err := storage.GetOrCreateUser(ctx, b.storage, in.WaID, in.Name)
	if err != nil {
		span.RecordError(err)
		return err
	}

	// Intent comes from the history as it was before this message
	history, err := b.storage.LoadHistory(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load history: %w", err)
	}

	intent, err := b.classifier.Classify(ctx, history)
	if err != nil {
		span.RecordError(err)
		return err
	}

	reply, err := b.generator.Generate(ctx, in.Body, in.WaID, in.Name)
	if err != nil {
		span.RecordError(err)
		return err
	}

	lead, err := storage.RecordLeadIfChanged(ctx, b.storage, user.ID, intent)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if lead != nil {
		b.metrics.ObserveLead(string(lead.Intent))
		b.notifier.NotifyLead(ctx, user, lead)
	}

	recipient := b.recipient
	if recipient == "" {
		recipient = in.WaID
	}

	msg := whatsapp.NewTextMessage(recipient, whatsapp.Normalize(reply))
	logger.Info("Sending reply",
		zap.Int64("user_id", user.ID),
		zap.String("intent", string(intent)),
		zap.String("to", recipient),
		zap.Bool("lead_created", lead != nil))
	b.dispatcher.Send(ctx, msg)
	return nil
}
