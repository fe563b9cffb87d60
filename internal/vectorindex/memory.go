package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type document struct {
	text    string
	payload map[string]string
	vector  []float32
}

// MemoryIndex is an in-process Index. It is safe for concurrent use.
type MemoryIndex struct {
	embedder Embedder

	mu          sync.RWMutex
	collections map[string][]document
}

// NewMemoryIndex returns an empty index using embedder.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder:    embedder,
		collections: make(map[string][]document),
	}
}

// Index implements Index.
func (m *MemoryIndex) Index(ctx context.Context, text, collection string, payload map[string]string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], document{
		text:    text,
		payload: copyPayload(payload),
		vector:  vec,
	})
	return nil
}

// Search implements Index. Unknown collections return no hits.
func (m *MemoryIndex) Search(ctx context.Context, query, collection string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyText
	}
	if k <= 0 {
		return nil, nil
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	docs := m.collections[collection]
	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, Hit{Text: d.text, Payload: copyPayload(d.payload), Score: cosine(vec, d.vector)})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of documents in collection.
func (m *MemoryIndex) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}
