package vectorindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestMemoryIndex_SearchRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(HashEmbedder{})

	require.NoError(t, idx.Index(ctx, "database connection refused on port", "history", map[string]string{"incident_id": "a"}))
	require.NoError(t, idx.Index(ctx, "null pointer dereference in handler", "history", map[string]string{"incident_id": "b"}))
	require.NoError(t, idx.Index(ctx, "database connection refused on port", "other", nil))

	hits, err := idx.Search(ctx, "database connection refused on port", "history", 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Payload["incident_id"])
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Less(t, hits[1].Score, hits[0].Score)

	hits, err = idx.Search(ctx, "database", "history", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = idx.Search(ctx, "database", "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 1, idx.Len("other"))
}

func TestMemoryIndex_PayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(HashEmbedder{})
	payload := map[string]string{"incident_id": "a"}
	require.NoError(t, idx.Index(ctx, "text", "c", payload))
	payload["incident_id"] = "changed"

	hits, err := idx.Search(ctx, "text", "c", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", hits[0].Payload["incident_id"])
}

func TestMemoryIndex_Errors(t *testing.T) {
	ctx := context.Background()

	idx := NewMemoryIndex(HashEmbedder{})
	assert.ErrorIs(t, idx.Index(ctx, "  ", "c", nil), ErrEmptyText)
	_, err := idx.Search(ctx, "", "c", 1)
	assert.ErrorIs(t, err, ErrEmptyText)

	broken := NewMemoryIndex(failingEmbedder{})
	assert.Error(t, broken.Index(ctx, "text", "c", nil))
	_, err = broken.Search(ctx, "text", "c", 1)
	assert.Error(t, err)
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := HashEmbedder{Dimension: 32}

	a, err := e.Embed(ctx, "Connection REFUSED")
	require.NoError(t, err)
	b, _ := e.Embed(ctx, "connection refused")
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)

	zero, _ := e.Embed(ctx, "!!!")
	assert.Equal(t, 0.0, cosine(zero, a))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, 0.0, cosine([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}))
}

func TestParseHitRow(t *testing.T) {
	hit, err := parseHitRow([]interface{}{"chunk", `{"incident_id":"x"}`, 0.25})
	require.NoError(t, err)
	assert.Equal(t, Hit{Text: "chunk", Payload: map[string]string{"incident_id": "x"}, Score: 0.75}, hit)

	hit, err = parseHitRow([]interface{}{"chunk", "", float64(1.5)})
	require.NoError(t, err)
	assert.Nil(t, hit.Payload)
	assert.Equal(t, 0.0, hit.Score)

	_, err = parseHitRow([]interface{}{"chunk", "{", 0.1})
	assert.Error(t, err)
	_, err = parseHitRow([]interface{}{"chunk", "", "far"})
	assert.Error(t, err)
	_, err = parseHitRow([]interface{}{"chunk"})
	assert.Error(t, err)
}

func TestVectorParamAndPayload(t *testing.T) {
	assert.Equal(t, []interface{}{0.5, 1.0}, vectorParam([]float32{0.5, 1}))

	s, err := encodePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	s, err = encodePayload(map[string]string{"incident_id": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"incident_id":"x"}`, s)
}

func TestFalkorIndex_NotConnected(t *testing.T) {
	idx := NewFalkorIndex(DefaultFalkorConfig(), HashEmbedder{})
	assert.Error(t, idx.Index(context.Background(), "text", "c", nil))
	assert.NoError(t, idx.Close())
	assert.Equal(t, "vectorindex.falkordb", idx.Name())
}
