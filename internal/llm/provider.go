// Package llm talks to the language model that writes incident analyses.
//
// Providers perform single requests. Retrier adds the bounded retry policy and turns a
// final failure into an error sentinel text, so callers always get something to store.
package llm

import (
	"context"
	"errors"
)

// ErrDisabled is returned by the disabled provider.
var ErrDisabled = errors.New("language model is disabled")

// Provider performs one completion request.
type Provider interface {
	// Name returns the provider identifier, e.g. "anthropic".
	Name() string
	// Model returns the model identifier used for requests.
	Model() string
	// Complete sends prompt and returns the generated text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds provider settings.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
	BaseURL   string
}

// DefaultConfig returns default settings for the Anthropic provider.
func DefaultConfig() Config {
	return Config{
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-5",
		MaxTokens: 2048,
	}
}

// disabled fails every request.
type disabled struct{}

// Disabled returns a provider that always fails with ErrDisabled.
func Disabled() Provider {
	return disabled{}
}

func (disabled) Name() string  { return "none" }
func (disabled) Model() string { return "" }
func (disabled) Complete(context.Context, string) (string, error) {
	return "", ErrDisabled
}
