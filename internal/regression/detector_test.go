package regression

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/vectorindex"
)

type stubIndex struct {
	hits     []vectorindex.Hit
	err      error
	lastK    int
	lastColl string
	indexed  []map[string]string
	indexErr error
}

func (s *stubIndex) Index(_ context.Context, _, collection string, payload map[string]string) error {
	s.lastColl = collection
	s.indexed = append(s.indexed, payload)
	return s.indexErr
}

func (s *stubIndex) Search(_ context.Context, _, collection string, k int) ([]vectorindex.Hit, error) {
	s.lastColl = collection
	s.lastK = k
	return s.hits, s.err
}

func hit(id string, score float64) vectorindex.Hit {
	return vectorindex.Hit{Payload: map[string]string{PayloadIncidentID: id}, Score: score}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		hits []vectorindex.Hit
		want *models.RegressionMatch
	}{
		{"no hits", nil, nil},
		{"below threshold", []vectorindex.Hit{hit("a", 0.84)}, nil},
		{"at threshold", []vectorindex.Hit{hit("a", 0.85)}, &models.RegressionMatch{MatchedIncident: "a", Similarity: 0.85}},
		{"first qualifying", []vectorindex.Hit{hit("a", 0.5), hit("b", 0.91), hit("c", 0.95)}, &models.RegressionMatch{MatchedIncident: "b", Similarity: 0.91}},
		{"skips self", []vectorindex.Hit{hit("self", 1.0), hit("b", 0.9)}, &models.RegressionMatch{MatchedIncident: "b", Similarity: 0.9}},
		{"skips missing payload", []vectorindex.Hit{{Score: 0.99}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &stubIndex{hits: tt.hits}
			d := NewDetector(idx, Config{})

			assert.Equal(t, tt.want, d.Detect(context.Background(), "self", "analysis"))
			assert.Equal(t, DefaultTopK, idx.lastK)
			assert.Equal(t, DefaultCollection, idx.lastColl)
		})
	}
}

func TestDetect_SearchFailureIsSwallowed(t *testing.T) {
	d := NewDetector(&stubIndex{err: errors.New("index down")}, DefaultConfig())
	assert.Nil(t, d.Detect(context.Background(), "x", "analysis"))
}

func TestDetect_EmptyAnalysis(t *testing.T) {
	idx := &stubIndex{hits: []vectorindex.Hit{hit("a", 1)}}
	d := NewDetector(idx, DefaultConfig())
	assert.Nil(t, d.Detect(context.Background(), "x", "  "))
	assert.Zero(t, idx.lastK)
}

func TestRemember(t *testing.T) {
	idx := &stubIndex{}
	d := NewDetector(idx, Config{Collection: "hist"})

	require.NoError(t, d.Remember(context.Background(), "inc-1", "analysis"))
	assert.Equal(t, "hist", idx.lastColl)
	assert.Equal(t, []map[string]string{{PayloadIncidentID: "inc-1"}}, idx.indexed)

	idx.indexErr = errors.New("down")
	assert.Error(t, d.Remember(context.Background(), "inc-2", "analysis"))
}

func TestDetectAfterRemember_MemoryIndex(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(vectorindex.NewMemoryIndex(vectorindex.HashEmbedder{}), DefaultConfig())
	analysis := "Root cause: the migration step fails because `users.email` already has a unique constraint"

	require.NoError(t, d.Remember(ctx, "inc-1", analysis))
	match := d.Detect(ctx, "inc-2", analysis)

	require.NotNil(t, match)
	assert.Equal(t, "inc-1", match.MatchedIncident)
	assert.InDelta(t, 1.0, match.Similarity, 1e-6)
}
