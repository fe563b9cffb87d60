package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moolen/faultline/internal/models"
)

const pythonLog = `Traceback (most recent call last):
  File "/app/main.py", line 3, in <module>
    print(1 / 0)
ZeroDivisionError: division by zero`

func TestScore_AllSignals(t *testing.T) {
	analysis := "The job fails with `ZeroDivisionError: division by zero` raised from `print(1 / 0)`."

	got := Score(pythonLog, analysis)

	assert.Equal(t, 80, got.Score)
	assert.Equal(t, models.ConfidenceHigh, got.Level)
	assert.Equal(t, []string{
		"Explicit failure signal found in log",
		"Stack trace or call chain present in log",
		"Analysis quotes an exact line from the log",
	}, got.Reasons)
}

func TestScore_QuoteMustAppearInLog(t *testing.T) {
	got := Score(pythonLog, `Root cause: "KeyError: user"`)

	assert.Equal(t, 60, got.Score)
	assert.Equal(t, models.ConfidenceMedium, got.Level)
	assert.NotContains(t, got.Reasons, "Analysis quotes an exact line from the log")
}

func TestScore_Sentinel(t *testing.T) {
	got := Score(pythonLog, "NO EXPLICIT ERROR FOUND but `ZeroDivisionError: division by zero`")

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, models.ConfidenceNone, got.Level)
	assert.Equal(t, []string{NoSignalReason}, got.Reasons)
}

func TestScore_SentinelIsCaseSensitive(t *testing.T) {
	got := Score(pythonLog, "no explicit error found")
	assert.Equal(t, 60, got.Score)
}

func TestScore_Nothing(t *testing.T) {
	got := Score("all good", "looks fine")

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, models.ConfidenceNone, got.Level)
	assert.Empty(t, got.Reasons)
}

func TestScore_Monotonic(t *testing.T) {
	const (
		errorOnly = "ERROR something broke"
		traceOnly = "goroutine 1 [running]:\nmain.main()"
		both      = "panic: boom\ngoroutine 1 [running]:"
		quote     = "see `main.main()` for details"
	)
	none := Score("ok", "").Score
	e := Score(errorOnly, "").Score
	tr := Score(traceOnly, "").Score
	et := Score(both, "").Score
	tq := Score(traceOnly, quote).Score

	assert.Equal(t, 0, none)
	assert.GreaterOrEqual(t, e, none)
	assert.GreaterOrEqual(t, tr, none)
	assert.GreaterOrEqual(t, et, e)
	assert.GreaterOrEqual(t, et, tr)
	assert.GreaterOrEqual(t, tq, tr)
	assert.Equal(t, 20, tr)
	assert.Equal(t, 40, tq)
	assert.Equal(t, 60, et)
}

func TestScore_Clamped(t *testing.T) {
	s := NewScorer(
		Signal{Name: "a", Reason: "a", Weight: 70, Match: func(string, string) bool { return true }},
		Signal{Name: "b", Reason: "b", Weight: 70, Match: func(string, string) bool { return true }},
	)
	got := s.Score("x", "y")

	assert.Equal(t, 100, got.Score)
	assert.Equal(t, models.ConfidenceHigh, got.Level)
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score int
		want  models.ConfidenceLevel
	}{
		{0, models.ConfidenceNone},
		{1, models.ConfidenceLow},
		{39, models.ConfidenceLow},
		{40, models.ConfidenceMedium},
		{74, models.ConfidenceMedium},
		{75, models.ConfidenceHigh},
		{100, models.ConfidenceHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForScore(tt.score), "score %d", tt.score)
	}
}
