// Package pipeline turns one CI failure log into a stored incident.
//
// An Orchestrator run is strictly sequential: signal extraction, cluster assignment, the
// hard gate, excerpt preparation, indexing and retrieval, analysis, confidence,
// regression, persistence, lineage and notification. Each step reports a StepResult;
// only malformed input, an unreadable log reference, a duplicate incident id and
// cancellation abort a run.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/moolen/faultline/internal/models"
)

var (
	// ErrInvalidSubmission is returned when a submission has neither text nor a log key.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrLogUnavailable is returned when a referenced log cannot be read.
	ErrLogUnavailable = errors.New("log unavailable")
)

// NoSignalSentinel is the analysis text of gated incidents. It contains the confidence
// override marker so gated incidents always score NONE.
const NoSignalSentinel = "NO EXPLICIT ERROR FOUND: no failure signal detected in log"

// Step names.
const (
	StepLoadLog    = "load_log"
	StepStoreLog   = "store_log"
	StepSignal     = "signal"
	StepCluster    = "cluster"
	StepExcerpt    = "excerpt"
	StepIndex      = "index"
	StepRetrieve   = "retrieve"
	StepAnalysis   = "analysis"
	StepConfidence = "confidence"
	StepRegression = "regression"
	StepHistory    = "history"
	StepPersist    = "persist"
	StepLineage    = "lineage"
	StepNotify     = "notify"
)

// gatedSteps are reported as skipped when the hard gate closes.
var gatedSteps = []string{StepExcerpt, StepIndex, StepRetrieve, StepAnalysis, StepRegression, StepHistory, StepNotify}

// StepStatus is the outcome of one step.
type StepStatus int

const (
	StepOK StepStatus = iota
	StepSkipped
	// StepDegraded means a collaborator failed and a default was substituted.
	StepDegraded
	StepFatal
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "ok"
	case StepSkipped:
		return "skipped"
	case StepDegraded:
		return "degraded"
	case StepFatal:
		return "fatal"
	default:
		return fmt.Sprintf("StepStatus(%d)", int(s))
	}
}

// MarshalText renders the status name.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StepResult records how a step ended.
type StepResult struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Submission is one analysis request. Exactly one of LogText and LogKey is normally set;
// LogText wins when both are.
type Submission struct {
	LogText    string
	LogKey     string
	IncidentID string // generated when empty
	Repo       string // owner/name
	PRNumber   int
	// Store writes inline LogText to the object store under <incident_id>.log.
	Store bool
}

// Result is the outcome of a completed run.
type Result struct {
	Incident  *models.Incident `json:"incident"`
	Steps     []StepResult     `json:"steps"`
	Gated     bool             `json:"gated"`
	StoredKey string           `json:"stored_key,omitempty"`
}

// Status returns the status of step, or StepSkipped when it did not run.
func (r *Result) Status(step string) StepStatus {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.Status
		}
	}
	return StepSkipped
}

// Degraded lists steps that substituted a default.
func (r *Result) Degraded() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Status == StepDegraded {
			out = append(out, s.Step)
		}
	}
	return out
}
