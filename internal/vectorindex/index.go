// Package vectorindex stores text chunks with embeddings and searches them by cosine
// similarity. Collections are independent namespaces within one index.
package vectorindex

import (
	"context"
	"errors"
	"math"
)

// ErrEmptyText is returned when indexing or searching blank text.
var ErrEmptyText = errors.New("text is empty")

// Hit is one search result. Score is a similarity in [0,1], higher is closer.
type Hit struct {
	Text    string            `json:"text"`
	Payload map[string]string `json:"payload,omitempty"`
	Score   float64           `json:"score"`
}

// Index is a semantic index over text chunks.
type Index interface {
	// Index embeds text and stores it in collection with an optional payload.
	Index(ctx context.Context, text, collection string, payload map[string]string) error
	// Search returns up to k hits from collection, best first.
	Search(ctx context.Context, query, collection string, k int) ([]Hit, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// cosine returns the cosine similarity of a and b clamped to [0,1]. Vectors of different
// length or zero norm have similarity 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func copyPayload(p map[string]string) map[string]string {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
