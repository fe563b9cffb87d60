// Package confidence scores how much an incident analysis can be trusted.
package confidence

import (
	"regexp"
	"strings"

	"github.com/moolen/faultline/internal/models"
)

const (
	// NoErrorSentinel in an analysis forces the score to zero.
	NoErrorSentinel = "NO EXPLICIT ERROR FOUND"

	// NoSignalReason replaces all reasons when the sentinel is present.
	NoSignalReason = "No explicit failure signal found in logs"

	maxScore = 100

	// minQuoteLen ignores short quoted fragments such as `x` or "ok".
	minQuoteLen = 4
)

// Source selects which text a signal inspects.
type Source int

const (
	RawLog Source = iota
	Analysis
)

// Signal is one additive heuristic.
type Signal struct {
	Name   string
	Reason string
	Weight int
	Source Source
	// Match is called with the inspected text and the raw log.
	Match func(text, raw string) bool
}

var (
	explicitFailurePattern = regexp.MustCompile(`(?i)(exception|error|traceback|panic|segfault|fatal)`)
	stackTracePattern      = regexp.MustCompile(`(?im)(traceback|^\s+at\s|\bat\s+[\w$.<>]+\(|^goroutine \d+|^caused by:|file ".*", line \d+)`)
	quotedPattern          = regexp.MustCompile("`([^`\n]+)`|\"([^\"\n]+)\"")
)

// DefaultSignals returns the built-in signal table.
func DefaultSignals() []Signal {
	return []Signal{
		{
			Name:   "explicit_failure",
			Reason: "Explicit failure signal found in log",
			Weight: 40,
			Source: RawLog,
			Match:  func(text, _ string) bool { return explicitFailurePattern.MatchString(text) },
		},
		{
			Name:   "stack_trace",
			Reason: "Stack trace or call chain present in log",
			Weight: 20,
			Source: RawLog,
			Match:  func(text, _ string) bool { return stackTracePattern.MatchString(text) },
		},
		{
			Name:   "quoted_line",
			Reason: "Analysis quotes an exact line from the log",
			Weight: 20,
			Source: Analysis,
			Match:  quotesLogLine,
		},
	}
}

// Scorer evaluates a signal table.
type Scorer struct {
	signals []Signal
}

// NewScorer returns a scorer for signals, or the built-in table when none are given.
func NewScorer(signals ...Signal) *Scorer {
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	return &Scorer{signals: signals}
}

// Score adds the weight of every matching signal, clamps to 100 and maps the result to a
// level. An analysis containing NoErrorSentinel scores 0 with the single NoSignalReason.
func (s *Scorer) Score(raw, analysis string) models.ConfidenceResult {
	if strings.Contains(analysis, NoErrorSentinel) {
		return models.ConfidenceResult{
			Score:   0,
			Level:   models.ConfidenceNone,
			Reasons: []string{NoSignalReason},
		}
	}

	score := 0
	reasons := []string{}
	for _, sig := range s.signals {
		text := raw
		if sig.Source == Analysis {
			text = analysis
		}
		if sig.Match(text, raw) {
			score += sig.Weight
			reasons = append(reasons, sig.Reason)
		}
	}
	score = min(max(score, 0), maxScore)

	return models.ConfidenceResult{
		Score:   score,
		Level:   LevelForScore(score),
		Reasons: reasons,
	}
}

// Score uses the built-in signals.
func Score(raw, analysis string) models.ConfidenceResult {
	return defaultScorer.Score(raw, analysis)
}

var defaultScorer = NewScorer()

// LevelForScore maps a score to its level: >=75 HIGH, >=40 MEDIUM, >0 LOW, else NONE.
func LevelForScore(score int) models.ConfidenceLevel {
	switch {
	case score >= 75:
		return models.ConfidenceHigh
	case score >= 40:
		return models.ConfidenceMedium
	case score > 0:
		return models.ConfidenceLow
	default:
		return models.ConfidenceNone
	}
}

// quotesLogLine reports whether a backtick- or double-quote-delimited fragment of the
// analysis appears verbatim in the raw log.
func quotesLogLine(analysis, raw string) bool {
	for _, m := range quotedPattern.FindAllStringSubmatch(analysis, -1) {
		quote := m[1]
		if quote == "" {
			quote = m[2]
		}
		quote = strings.TrimSpace(quote)
		if len(quote) >= minQuoteLen && strings.Contains(raw, quote) {
			return true
		}
	}
	return false
}
