package provider

import (
	"context"
	"fmt"

	"folio/internal/config"
)

// NewFromConfig builds a provider client by name from the configuration.
func NewFromConfig(ctx context.Context, name string, cfg *config.Config) (Client, error) {
	switch name {
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:      cfg.Provider.Anthropic.APIKey,
			BaseURL:     cfg.Provider.Anthropic.BaseURL,
			Model:       cfg.Provider.Anthropic.Model,
			MaxTokens:   cfg.Provider.Anthropic.MaxTokens,
			Temperature: cfg.Provider.Anthropic.Temperature,
			HTTPTimeout: cfg.Provider.Anthropic.HTTPTimeout,
		})
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.Provider.Gemini.APIKey,
			Model:       cfg.Provider.Gemini.Model,
			MaxTokens:   cfg.Provider.Gemini.MaxTokens,
			Temperature: cfg.Provider.Gemini.Temperature,
		})
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.Provider.Ollama.BaseURL,
			Model:       cfg.Provider.Ollama.Model,
			MaxTokens:   cfg.Provider.Ollama.MaxTokens,
			Temperature: cfg.Provider.Ollama.Temperature,
			HTTPTimeout: cfg.Provider.Ollama.HTTPTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}
