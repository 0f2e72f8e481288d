// Package reply produces the assistant's answer to an inbound customer
// message and records the exchange.
package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/wa-crm-bot/internal/llm"
	"github.com/xaenox/wa-crm-bot/internal/models"
	"github.com/xaenox/wa-crm-bot/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Apology replaces empty or refusing model output.
const Apology = "Извините, я могу помочь только по вопросам веб-сайтов, чат-ботов, дизайна или поддержки."

var refusalPhrases = []string{
	"я не могу помочь",
	"не могу помочь",
	"это вне моей компетенции",
}

// LanguageDetector reports a lowercase ISO 639-1 code and never fails.
type LanguageDetector interface {
	Detect(text string) string
}

// Options tune prompt construction.
type Options struct {
	// SystemPrompt opens every transcript.
	SystemPrompt string
	// IncludeLanguageDirective joins the reply-language instruction into the
	// prompt. Off by default: the directive is computed and logged only.
	IncludeLanguageDirective bool
}

type Generator struct {
	store    storage.Storage
	client   llm.Client
	detector LanguageDetector
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewGenerator(store storage.Storage, client llm.Client, detector LanguageDetector, opts Options, logger *zap.Logger) *Generator {
	return &Generator{
		store:    store,
		client:   client,
		detector: detector,
		opts:     opts,
		logger:   logger,
		tracer:   otel.Tracer("wa-crm-bot/internal/reply"),
	}
}

// Generate answers body on behalf of the WhatsApp contact waID and appends
// both turns to the conversation. Model errors are returned unretried.
func (g *Generator) Generate(ctx context.Context, body, waID, name string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "reply.generate")
	defer span.End()

	user, err := storage.GetOrCreateUser(ctx, g.store, waID, name)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	history, err := g.store.LoadHistory(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("load history: %w", err)
	}

	lang := g.detector.Detect(body)
	directive := LanguageDirective(lang)
	span.SetAttributes(
		attribute.String("reply.language", lang),
		attribute.Int("reply.history_turns", len(history)),
	)

	system := g.opts.SystemPrompt
	if g.opts.IncludeLanguageDirective {
		system = strings.TrimSpace(system + "\n" + directive)
	}

	resp, err := g.client.Generate(ctx, BuildPrompt(system, history, body))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("generate reply: %w", err)
	}

	reply := strings.TrimSpace(resp)
	if reply == "" || isRefusal(reply) {
		reply = Apology
	}

	g.logger.Info("Generated reply",
		zap.String("name", name),
		zap.String("wa_id", waID),
		zap.String("language", lang),
		zap.String("reply", reply))

	if err := g.store.SaveTurn(ctx, user.ID, body, reply); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("save turn: %w", err)
	}
	return reply, nil
}

// LanguageDirective maps a detected language onto the reply instruction.
func LanguageDirective(lang string) string {
	switch lang {
	case "ru":
		return "Отвечай на русском языке."
	case "kk":
		return "Жауапты қазақ тілінде бер."
	default:
		return "Reply in English."
	}
}

// BuildPrompt replays history as a labelled transcript and leaves an open
// "Bot:" cue for the model to complete.
func BuildPrompt(system string, history []models.Turn, body string) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n")
	for _, turn := range history {
		switch turn.Role {
		case models.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", turn.Text)
		case models.RoleAssistant:
			fmt.Fprintf(&b, "Bot: %s\n", turn.Text)
		}
	}
	fmt.Fprintf(&b, "User: %s\nBot:", body)
	return b.String()
}

func isRefusal(reply string) bool {
	lower := strings.ToLower(reply)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
