package llm

import (
	"context"
	"fmt"
)

// Client is the provider-neutral surface used by the ranking oracle.
type Client interface {
	// GenerateContent returns free text.
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON returns a JSON document with markdown fences stripped.
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	GetModel(tier ModelTier) string
	Close() error
}

// NewClient builds the client for config.Provider.
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig(ProviderGemini)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for %s", config.Provider)
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config, apiKey), nil
	case ProviderAnthropic:
		return NewAnthropicClient(config, apiKey), nil
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

func resolveModel(c *Config, tier ModelTier) (string, error) {
	name := c.GetModel(tier)
	if name == "" {
		return "", fmt.Errorf("no model configured for tier %s", tier)
	}
	return name, nil
}
