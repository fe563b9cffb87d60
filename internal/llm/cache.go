package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider remembers successful completions by prompt. Identical prompts are
// produced for identical excerpts, so re-submitted logs do not pay for another request.
type CachedProvider struct {
	Provider
	cache *lru.Cache[string, string]
}

// NewCachedProvider wraps provider with an LRU of size entries.
func NewCachedProvider(provider Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion cache: %w", err)
	}
	return &CachedProvider{Provider: provider, cache: cache}, nil
}

// Complete returns a cached completion or calls the wrapped provider.
func (c *CachedProvider) Complete(ctx context.Context, prompt string) (string, error) {
	key := promptKey(c.Provider.Model(), prompt)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}
	text, err := c.Provider.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}

// Len returns the number of cached completions.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

func promptKey(model, prompt string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(hash[:])
}
