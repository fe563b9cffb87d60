package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/llm"
	"github.com/moolen/faultline/internal/pipeline"
	"github.com/moolen/faultline/internal/signal"
)

const pythonLog = `Collecting deps
Running tests
Traceback (most recent call last):
  File "app/main.py", line 12, in <module>
    print(1 / 0)
ZeroDivisionError: division by zero
`

func TestParseLogLevelFlags(t *testing.T) {
	t.Setenv("LOG_LEVEL_VECTORINDEX_FALKORDB", "debug")

	def, pkgs, err := parseLogLevelFlags([]string{"warn", "pipeline=error"})
	require.NoError(t, err)
	assert.Equal(t, "warn", def)
	assert.Equal(t, "error", pkgs["pipeline"])
	assert.Equal(t, "debug", pkgs["vectorindex.falkordb"])
	assert.NotContains(t, pkgs, "default")

	def, _, err = parseLogLevelFlags([]string{"default=debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", def)

	_, _, err = parseLogLevelFlags([]string{"loud"})
	assert.Error(t, err)

	_, _, err = parseLogLevelFlags([]string{"pipeline=chatty"})
	assert.Error(t, err)
}

func TestConvertEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "vectorindex.falkordb", convertEnvKeyToPackageName("LOG_LEVEL_VECTORINDEX_FALKORDB"))
	assert.Equal(t, "pipeline", convertEnvKeyToPackageName("LOG_LEVEL_PIPELINE"))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LLM.Provider = "none"
	return &cfg
}

func TestBuildApp_Defaults(t *testing.T) {
	ctx := context.Background()
	a, err := buildApp(ctx, testConfig())
	require.NoError(t, err)
	require.NotNil(t, a.pipeline)
	// tracing only; memory index and store need no lifecycle
	assert.Len(t, a.backbone, 1)

	require.NoError(t, a.start(ctx))
	defer func() { assert.NoError(t, a.stop(ctx)) }()

	res, err := a.pipeline.Analyze(ctx, pipeline.Submission{LogText: pythonLog, IncidentID: "inc-1"})
	require.NoError(t, err)
	assert.False(t, res.Gated)
	assert.Contains(t, res.Incident.AnalysisText, llm.ErrorPrefix)
	assert.Equal(t, 1, a.incidents.Len())
	assert.Equal(t, 1, a.clusters.Len())
}

func TestBuildApp_WithPersistenceAndRules(t *testing.T) {
	dir := t.TempDir()
	rules := dir + "/rules.yaml"
	require.NoError(t, os.WriteFile(rules, []byte("failure:\n  - label: boom\n    pattern: BOOM\n"), 0o600))

	cfg := testConfig()
	cfg.Persistence.SnapshotPath = dir + "/snapshot.json"
	cfg.Rules.Path = rules
	cfg.Rules.Watch = true

	a, err := buildApp(context.Background(), cfg)
	require.NoError(t, err)
	// tracing, rules watcher, persistence
	assert.Len(t, a.backbone, 3)
}

func TestBuildApp_BadRules(t *testing.T) {
	cfg := testConfig()
	cfg.Rules.Path = t.TempDir() + "/missing.yaml"
	_, err := buildApp(context.Background(), cfg)
	assert.Error(t, err)
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, sub pipeline.Submission) (*pipeline.Result, error) {
	if sub.LogText == "bad" {
		return nil, pipeline.ErrInvalidSubmission
	}
	return &pipeline.Result{Gated: sub.LogText == "clean"}, nil
}

func TestAnalyzeFiles(t *testing.T) {
	files := map[string]string{"a.log": "ERROR x", "b.log": "bad", "c.log": "clean"}
	read := func(path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(data), nil
	}

	results, err := analyzeFiles(context.Background(), stubAnalyzer{}, []string{"a.log", "b.log", "c.log"}, 2, read)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a.log", results[0].Path)
	assert.NotNil(t, results[0].Result)
	assert.Contains(t, results[1].Error, "invalid submission")
	assert.True(t, results[2].Result.Gated)

	_, err = analyzeFiles(context.Background(), stubAnalyzer{}, []string{"a.log", "missing.log"}, 0, read)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPrintResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResults(&buf, []fileResult{{Path: "a.log", Error: "boom"}}, false))

	var out []fileResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "boom", out[0].Error)
}

func TestSignatureOf(t *testing.T) {
	analyzer := signal.NewAnalyzer(nil)
	first := signatureOf(analyzer, pythonLog)
	assert.Equal(t, "python", first.Language)
	assert.NotEmpty(t, first.Fingerprint)
	assert.Greater(t, first.Blocks, 0)

	// line numbers do not change the fingerprint
	second := signatureOf(analyzer, strings.Replace(pythonLog, "line 12", "line 99", 1))
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestNewRetrier(t *testing.T) {
	r, err := newRetrier(context.Background(), config.LLMConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = newRetrier(context.Background(), config.LLMConfig{Provider: "unknown"})
	assert.Error(t, err)

	r, err = newRetrier(context.Background(), config.LLMConfig{Provider: "anthropic", Model: "m", CacheSize: 8})
	require.NoError(t, err)
	_, cached := r.Provider().(*llm.CachedProvider)
	assert.True(t, cached)
}
