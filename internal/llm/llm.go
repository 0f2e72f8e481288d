// Package llm wraps the hosted language models used for classification
// and reply generation.
package llm

import (
	"context"
	"fmt"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Client sends a single prompt and returns the model's text.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// New builds the backend named by cfg.Provider. The returned close func
// releases backend resources.
func New(ctx context.Context, cfg Config) (Client, func() error, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case ProviderOpenAI:
		c := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature)
		return c, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
