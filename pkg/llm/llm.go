// Package llm provides chat-completion clients for contact extraction.
package llm

import (
	"context"
	"fmt"
)

// Provider names accepted by the factory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Client is the narrow completion surface the extraction pipeline needs.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// Complete generates a single chat completion.
	Complete(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)

	// Model returns the configured model name.
	Model() string
}

// Config holds configuration for creating a client.
type Config struct {
	Provider string // "openai" or "anthropic"
	Endpoint string // Base URL for OpenAI-compatible endpoints; optional
	Model    string
	APIKey   string
	// MaxTokens caps Anthropic completions. Zero means the default.
	MaxTokens int
}

// New creates a client for the configured provider.
func New(cfg *Config) (Client, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
