package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/wa-crm-bot/internal/models"
	"go.uber.org/zap"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts each new lead to an operator chat
type TelegramNotifier struct {
	api    sender
	chatID int64
	logger *zap.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{
		api:    api,
		chatID: chatID,
		logger: logger,
	}, nil
}

// NotifyLead never fails; send errors are only logged.
func (n *TelegramNotifier) NotifyLead(ctx context.Context, user *models.User, lead *models.Lead) {
	msg := tgbotapi.NewMessage(n.chatID, formatLead(user, lead))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := n.api.Send(msg); err != nil {
		n.logger.Error("Failed to send lead notification",
			zap.Error(err),
			zap.Int64("chat_id", n.chatID),
			zap.Int64("lead_id", lead.ID))
	}
}

func formatLead(user *models.User, lead *models.Lead) string {
	tag := "#" + strings.ReplaceAll(string(lead.Intent), " ", "_")

	text := "*New lead:* " + escapeMarkdown(tag) + "\n"
	text += fmt.Sprintf("*Name:* %s\n", escapeMarkdown(user.Name))
	text += fmt.Sprintf("*WhatsApp:* %s\n", escapeMarkdown(user.Phone))
	text += fmt.Sprintf("*Status:* %s", escapeMarkdown(lead.Status))
	return text
}

// escapeMarkdown escapes the characters MarkdownV2 reserves
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}
