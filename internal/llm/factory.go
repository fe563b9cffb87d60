package llm

import (
	"context"
	"fmt"
)

// NewProvider builds the provider named by cfg.Provider: anthropic, gemini or none.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	case "none", "":
		return Disabled(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
