package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/wa-crm-bot/internal/llm"
	"github.com/xaenox/wa-crm-bot/internal/models"
	"go.uber.org/zap"
)

// maxUtterances bounds how many recent customer messages feed the decision
const maxUtterances = 3

const promptTemplate = "Ты помощник CRM. Проанализируй следующие сообщения клиента и верни одно из следующих намерений: " +
	"'website request', 'chatbot request', 'design request', 'support request', или 'none'.\n" +
	"Сообщения клиента: %s"

type Classifier interface {
	Classify(ctx context.Context, history []models.Turn) (models.Intent, error)
}

// IntentClassifier asks the model once per decision and never retries
type IntentClassifier struct {
	client llm.Client
	logger *zap.Logger
}

func NewIntentClassifier(client llm.Client, logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{
		client: client,
		logger: logger,
	}
}

func (c *IntentClassifier) Classify(ctx context.Context, history []models.Turn) (models.Intent, error) {
	utterances := recentUserUtterances(history, maxUtterances)
	if len(utterances) == 0 {
		return models.IntentNone, nil
	}

	prompt := fmt.Sprintf(promptTemplate, strings.Join(utterances, " | "))
	resp, err := c.client.Generate(ctx, prompt)
	if err != nil {
		return models.IntentNone, fmt.Errorf("classify intent: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(resp))
	if !strings.Contains(answer, "request") {
		return models.IntentNone, nil
	}

	intent := models.ParseIntent(answer)
	if intent == models.IntentNone {
		c.logger.Warn("Model answered with an unknown intent",
			zap.String("response", answer))
	}
	return intent, nil
}

func recentUserUtterances(history []models.Turn, limit int) []string {
	var utterances []string
	for _, turn := range history {
		if turn.Role == models.RoleUser {
			utterances = append(utterances, turn.Text)
		}
	}
	if len(utterances) > limit {
		utterances = utterances[len(utterances)-limit:]
	}
	return utterances
}
