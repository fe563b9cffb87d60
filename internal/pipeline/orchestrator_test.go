package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/faultline/internal/cluster"
	"github.com/moolen/faultline/internal/confidence"
	"github.com/moolen/faultline/internal/incident"
	"github.com/moolen/faultline/internal/lineage"
	"github.com/moolen/faultline/internal/llm"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/objectstore"
	"github.com/moolen/faultline/internal/regression"
	"github.com/moolen/faultline/internal/signal"
	"github.com/moolen/faultline/internal/vectorindex"
)

const pythonLog = `============================= test session starts ==============================
collected 12 items
Traceback (most recent call last):
  File "/home/runner/work/app/app/service.py", line 42, in handler
    result = int(value)
ValueError: invalid literal for int() with base 10: 'abc'
app/service.py:42: ValueError
`

// pythonLogMoved is pythonLog with a different checkout path and line number.
const pythonLogMoved = `============================= test session starts ==============================
collected 14 items
Traceback (most recent call last):
  File "/tmp/build/7731/src/app/service.py", line 57, in handler
    result = int(value)
ValueError: invalid literal for int() with base 10: 'abc'
src/app/service.py:57: ValueError
`

const cleanLog = `Step 1/3 : building image
Successfully built 4f2a
All tests passed in 3.2s
`

const segfaultLog = `running integration binary
Segmentation fault (core dumped)
process exited with exit code 139
`

const pythonAnalysis = "Root cause: `ValueError: invalid literal for int() with base 10: 'abc'` " +
	"raised from `app/service.py:42: ValueError` because a non numeric value reached int()."

// countingProvider returns a fixed answer or error and counts calls.
type countingProvider struct {
	text  string
	err   error
	calls atomic.Int32
}

func (p *countingProvider) Name() string  { return "counting" }
func (p *countingProvider) Model() string { return "test" }
func (p *countingProvider) Complete(context.Context, string) (string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

// recordingIndex wraps a MemoryIndex, counts calls and can fail or override history hits.
type recordingIndex struct {
	inner       *vectorindex.MemoryIndex
	indexErr    error
	searchErr   error
	historyHits []vectorindex.Hit

	mu       sync.Mutex
	indexed  []string // collections written
	searched []string // collections queried
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{inner: vectorindex.NewMemoryIndex(vectorindex.HashEmbedder{})}
}

func (r *recordingIndex) Index(ctx context.Context, text, collection string, payload map[string]string) error {
	r.mu.Lock()
	r.indexed = append(r.indexed, collection)
	r.mu.Unlock()
	if r.indexErr != nil {
		return r.indexErr
	}
	return r.inner.Index(ctx, text, collection, payload)
}

func (r *recordingIndex) Search(ctx context.Context, query, collection string, k int) ([]vectorindex.Hit, error) {
	r.mu.Lock()
	r.searched = append(r.searched, collection)
	r.mu.Unlock()
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	if collection == regression.DefaultCollection && r.historyHits != nil {
		return r.historyHits, nil
	}
	return r.inner.Search(ctx, query, collection, k)
}

func (r *recordingIndex) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indexed) + len(r.searched)
}

type recordingNotifier struct {
	mu       sync.Mutex
	err      error
	comments []string
	targets  []string
}

func (n *recordingNotifier) PostComment(_ context.Context, repo, changeID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, repo+"#"+changeID)
	n.comments = append(n.comments, text)
	return n.err
}

type fixture struct {
	orch      *Orchestrator
	deps      Dependencies
	index     *recordingIndex
	provider  *countingProvider
	notifier  *recordingNotifier
	objects   *objectstore.MemoryStore
	clusters  *cluster.Engine
	lineage   *lineage.Tracker
	incidents *incident.Store
}

func newFixture(t *testing.T, mutate ...func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		index:     newRecordingIndex(),
		provider:  &countingProvider{text: pythonAnalysis},
		notifier:  &recordingNotifier{},
		objects:   objectstore.NewMemoryStore(),
		clusters:  cluster.NewEngine(),
		lineage:   lineage.NewTracker(nil),
		incidents: incident.NewStore(),
	}
	for _, m := range mutate {
		m(f)
	}

	var seq atomic.Int32
	f.deps = Dependencies{
		Signals:     signal.NewAnalyzer(nil),
		Clusters:    f.clusters,
		Lineage:     f.lineage,
		Incidents:   f.incidents,
		Index:       f.index,
		LLM:         llm.NewRetrier(f.provider, llm.RetryPolicy{Retries: 1}),
		ObjectStore: f.objects,
		Notifier:    f.notifier,
		Clock:       func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID:       func() string { return fmt.Sprintf("gen-%d", seq.Add(1)) },
	}
	orch, err := New(DefaultConfig(), f.deps)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestAnalyze_StackTraceCreatesClusterWithHighConfidence(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Analyze(context.Background(), Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)
	inc := res.Incident

	assert.False(t, res.Gated)
	assert.Equal(t, "python", inc.Metadata.Language)
	assert.Equal(t, "ValueError: invalid literal for int() with base 10: 'abc'", inc.Metadata.Exception)
	assert.Equal(t, "app/service.py:42: ValueError", inc.Metadata.FailingLine)
	assert.Len(t, inc.Metadata.Fingerprint, 64)

	c, err := f.clusters.Get(inc.Metadata.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, "inc-1", c.PrimaryIncident)

	assert.Equal(t, models.ConfidenceHigh, inc.Confidence.Level)
	assert.Equal(t, 80, inc.Confidence.Score)
	assert.Equal(t, pythonAnalysis, inc.AnalysisText)
	assert.Equal(t, int32(1), f.provider.calls.Load())

	stored, err := f.incidents.Get("inc-1")
	require.NoError(t, err)
	assert.Equal(t, inc, stored)

	assert.Contains(t, f.index.indexed, "logs_inc-1")
	assert.Contains(t, f.index.indexed, regression.DefaultCollection)
	for _, s := range res.Steps {
		assert.NotEqual(t, StepDegraded, s.Status, s.Step)
	}
}

func TestAnalyze_MovedPathsShareFingerprintAndCluster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "inc-1", Repo: "acme/api"})
	require.NoError(t, err)
	second, err := f.orch.Analyze(ctx, Submission{LogText: pythonLogMoved, IncidentID: "inc-2", Repo: "acme/web"})
	require.NoError(t, err)

	assert.Equal(t, first.Incident.Metadata.Fingerprint, second.Incident.Metadata.Fingerprint)
	assert.Equal(t, first.Incident.Metadata.ClusterID, second.Incident.Metadata.ClusterID)

	entry, err := f.lineage.Get(first.Incident.Metadata.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.OccurrenceCount)
	assert.Equal(t, []string{"inc-1", "inc-2"}, entry.IncidentIDs)
	assert.Equal(t, []string{"acme/api", "acme/web"}, entry.Repos.Values())

	c, err := f.clusters.Get(first.Incident.Metadata.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, "inc-1", c.PrimaryIncident)
	assert.Equal(t, []string{"inc-1", "inc-2"}, c.IncidentIDs)
}

func TestAnalyze_CleanLogIsGated(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Analyze(context.Background(), Submission{
		LogText: cleanLog, IncidentID: "clean", Repo: "acme/api", PRNumber: 3,
	})
	require.NoError(t, err)

	assert.True(t, res.Gated)
	assert.True(t, res.Incident.Metadata.Gated)
	assert.Equal(t, NoSignalSentinel, res.Incident.AnalysisText)
	assert.Equal(t, models.ConfidenceNone, res.Incident.Confidence.Level)
	assert.Equal(t, 0, res.Incident.Confidence.Score)
	assert.Equal(t, models.Unknown, res.Incident.Metadata.Exception)

	assert.Zero(t, f.index.calls())
	assert.Zero(t, f.provider.calls.Load())
	assert.Empty(t, f.notifier.comments)

	entry, err := f.lineage.Get(res.Incident.Metadata.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.OccurrenceCount)
	assert.NotEmpty(t, res.Incident.Metadata.ClusterID)

	for _, step := range gatedSteps {
		assert.Equal(t, StepSkipped, res.Status(step), step)
	}
	assert.Equal(t, StepOK, res.Status(StepPersist))
}

func TestAnalyze_NoExceptionSkipsModel(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Analyze(context.Background(), Submission{LogText: segfaultLog, IncidentID: "seg"})
	require.NoError(t, err)

	assert.False(t, res.Gated)
	assert.Equal(t, confidence.NoErrorSentinel, res.Incident.AnalysisText)
	assert.Equal(t, 0, res.Incident.Confidence.Score)
	assert.Equal(t, []string{confidence.NoSignalReason}, res.Incident.Confidence.Reasons)
	assert.Equal(t, models.Unknown, res.Incident.Metadata.Exception)
	assert.Zero(t, f.provider.calls.Load())
	assert.Equal(t, StepSkipped, res.Status(StepAnalysis))
	assert.Equal(t, StepSkipped, res.Status(StepRegression))
	assert.Contains(t, f.index.indexed, "logs_seg")
}

func TestAnalyze_RegressionKeepsSimilarity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)

	f.index.historyHits = []vectorindex.Hit{
		{Text: pythonAnalysis, Payload: map[string]string{regression.PayloadIncidentID: "inc-1"}, Score: 0.91},
	}
	res, err := f.orch.Analyze(ctx, Submission{LogText: pythonLogMoved, IncidentID: "inc-2"})
	require.NoError(t, err)

	require.NotNil(t, res.Incident.RegressionOf)
	assert.Equal(t, "inc-1", res.Incident.RegressionOf.MatchedIncident)
	assert.Equal(t, 0.91, res.Incident.RegressionOf.Similarity)
}

func TestAnalyze_RegressionAgainstMemoryHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)
	assert.Nil(t, first.Incident.RegressionOf)

	second, err := f.orch.Analyze(ctx, Submission{LogText: pythonLogMoved, IncidentID: "inc-2"})
	require.NoError(t, err)
	require.NotNil(t, second.Incident.RegressionOf)
	assert.Equal(t, "inc-1", second.Incident.RegressionOf.MatchedIncident)
	assert.GreaterOrEqual(t, second.Incident.RegressionOf.Similarity, 0.85)
}

func TestAnalyze_ModelFailureDegrades(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.provider.err = errors.New("overloaded")
	})

	res, err := f.orch.Analyze(context.Background(), Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Incident.AnalysisText, llm.ErrorPrefix))
	assert.Contains(t, res.Incident.AnalysisText, "after 2 attempts")
	assert.Equal(t, int32(2), f.provider.calls.Load())
	assert.Equal(t, StepDegraded, res.Status(StepAnalysis))
	assert.Equal(t, StepSkipped, res.Status(StepHistory))
	assert.Nil(t, res.Incident.RegressionOf)

	_, err = f.incidents.Get("inc-1")
	assert.NoError(t, err)
}

func TestAnalyze_IndexFailuresDegrade(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.index.indexErr = errors.New("index down")
		f.index.searchErr = errors.New("search down")
	})

	res, err := f.orch.Analyze(context.Background(), Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)

	assert.Equal(t, StepDegraded, res.Status(StepIndex))
	assert.Equal(t, StepDegraded, res.Status(StepRetrieve))
	assert.Equal(t, StepOK, res.Status(StepRegression))
	assert.Equal(t, StepDegraded, res.Status(StepHistory))
	assert.Equal(t, pythonAnalysis, res.Incident.AnalysisText)
	assert.ElementsMatch(t, []string{StepIndex, StepRetrieve, StepHistory}, res.Degraded())
}

func TestAnalyze_WithoutIndex(t *testing.T) {
	f := newFixture(t)
	deps := f.deps
	deps.Index = nil
	orch, err := New(DefaultConfig(), deps)
	require.NoError(t, err)

	res, err := orch.Analyze(context.Background(), Submission{LogText: pythonLog})
	require.NoError(t, err)
	assert.Equal(t, "gen-1", res.Incident.ID)
	assert.Equal(t, StepSkipped, res.Status(StepIndex))
	assert.Equal(t, StepSkipped, res.Status(StepRegression))
	assert.Equal(t, StepOK, res.Status(StepAnalysis))
}

func TestAnalyze_LogKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.objects.Put(ctx, "run-9.log", []byte(pythonLog), objectstore.DefaultBucket))

	res, err := f.orch.Analyze(ctx, Submission{LogKey: "run-9.log", IncidentID: "inc-9"})
	require.NoError(t, err)
	assert.Equal(t, "run-9.log", res.Incident.Metadata.LogKey)
	assert.Equal(t, StepOK, res.Status(StepLoadLog))

	_, err = f.orch.Analyze(ctx, Submission{LogKey: "missing.log", IncidentID: "inc-10"})
	assert.True(t, errors.Is(err, ErrLogUnavailable))
	_, err = f.incidents.Get("inc-10")
	assert.True(t, errors.Is(err, incident.ErrNotFound))

	// The id is released after a failed run.
	require.NoError(t, f.objects.Put(ctx, "missing.log", []byte(pythonLog), objectstore.DefaultBucket))
	_, err = f.orch.Analyze(ctx, Submission{LogKey: "missing.log", IncidentID: "inc-10"})
	assert.NoError(t, err)
}

func TestAnalyze_StoreInlineLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "inc-1", Store: true})
	require.NoError(t, err)
	assert.Equal(t, "inc-1.log", res.StoredKey)

	data, err := f.objects.Get(ctx, "inc-1.log", objectstore.DefaultBucket)
	require.NoError(t, err)
	assert.Equal(t, pythonLog, string(data))
}

func TestAnalyze_InvalidSubmission(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Analyze(context.Background(), Submission{LogText: "  \n"})
	assert.True(t, errors.Is(err, ErrInvalidSubmission))
}

func TestAnalyze_DuplicateIncidentID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "dup"})
	require.NoError(t, err)
	_, err = f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "dup"})
	assert.True(t, errors.Is(err, incident.ErrAlreadyExists))

	entry, err := f.lineage.Get(mustFingerprint(t, f, "dup"))
	require.NoError(t, err)
	assert.Equal(t, 1, entry.OccurrenceCount)
}

func mustFingerprint(t *testing.T, f *fixture, id string) string {
	t.Helper()
	inc, err := f.incidents.Get(id)
	require.NoError(t, err)
	return inc.Metadata.Fingerprint
}

func TestAnalyze_Notification(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Analyze(context.Background(), Submission{
		LogText: pythonLog, IncidentID: "inc-1", Repo: "acme/api", PRNumber: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, StepOK, res.Status(StepNotify))
	require.Len(t, f.notifier.comments, 1)
	assert.Equal(t, []string{"acme/api#12"}, f.notifier.targets)
	assert.Contains(t, f.notifier.comments[0], "80/100 (HIGH)")

	f.notifier.err = errors.New("rate limited")
	res, err = f.orch.Analyze(context.Background(), Submission{
		LogText: pythonLog, IncidentID: "inc-2", Repo: "acme/api", PRNumber: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, StepDegraded, res.Status(StepNotify))

	res, err = f.orch.Analyze(context.Background(), Submission{LogText: pythonLog, IncidentID: "inc-3"})
	require.NoError(t, err)
	assert.Equal(t, StepSkipped, res.Status(StepNotify))
}

func TestAnalyze_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Analyze(ctx, Submission{LogText: pythonLog, IncidentID: "inc-1"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, f.provider.calls.Load())
	assert.Zero(t, f.incidents.Len())
	assert.Zero(t, f.clusters.Len())
	assert.Zero(t, f.lineage.Len())

	res, err := f.orch.Analyze(context.Background(), Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)
	require.Equal(t, 1, f.clusters.Len())
	c, err := f.clusters.Get(res.Incident.Metadata.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, "inc-1", c.PrimaryIncident)
	assert.Equal(t, []string{"inc-1"}, c.IncidentIDs)
}

func TestAnalyze_ConcurrentSameFingerprint(t *testing.T) {
	f := newFixture(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orch.Analyze(context.Background(), Submission{
				LogText: pythonLog, IncidentID: fmt.Sprintf("inc-%02d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.clusters.Len())
	assert.Equal(t, n, f.incidents.Len())
	entries := f.lineage.List()
	require.Len(t, entries, 1)
	assert.Equal(t, n, entries[0].OccurrenceCount)
	assert.Len(t, entries[0].IncidentIDs, n)
}
