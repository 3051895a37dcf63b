// Package llm wraps the hosted model providers behind one Client interface.
// The ranking oracle is the only caller; it asks for JSON at the standard tier.
package llm

import (
	"fmt"
	"strings"
)

// ModelTier selects a capability level within a provider.
type ModelTier string

const (
	TierLite     ModelTier = "lite"
	TierStandard ModelTier = "standard"
	TierAdvanced ModelTier = "advanced"
)

// Provider names a hosted model vendor.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ParseProvider maps a config string to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return p, nil
	case "":
		return ProviderGemini, nil
	default:
		return "", fmt.Errorf("unknown llm provider %q", s)
	}
}

// Config picks a provider and the model used for each tier.
type Config struct {
	Provider    Provider
	Models      map[ModelTier]string
	Temperature float32
	MaxTokens   int
}

// DefaultConfig returns the defaults for provider. Unknown providers get Gemini.
func DefaultConfig(provider Provider) *Config {
	cfg := &Config{Provider: provider, Temperature: 0.1, MaxTokens: 4096}
	switch provider {
	case ProviderOpenAI:
		cfg.Models = map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o",
			TierAdvanced: "gpt-4.1",
		}
	case ProviderAnthropic:
		cfg.Models = map[ModelTier]string{
			TierLite:     "claude-3-5-haiku-latest",
			TierStandard: "claude-sonnet-4-20250514",
			TierAdvanced: "claude-opus-4-20250514",
		}
	default:
		cfg.Provider = ProviderGemini
		cfg.Models = map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		}
	}
	return cfg
}

// GetModel returns the model for tier, falling back to standard then lite.
func (c *Config) GetModel(tier ModelTier) string {
	for _, t := range []ModelTier{tier, TierStandard, TierLite} {
		if m, ok := c.Models[t]; ok && m != "" {
			return m
		}
	}
	return ""
}

// WithModel returns a copy of c with tier pinned to model.
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	out := *c
	out.Models = make(map[ModelTier]string, len(c.Models)+1)
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.Models[tier] = model
	return &out
}
