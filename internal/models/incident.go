package models

import "time"

// Unknown is recorded for exception and failing line when no signature could be isolated.
const Unknown = "UNKNOWN"

// Incident is one analyzed log submission. Records are immutable once stored;
// callers receive copies.
type Incident struct {
	ID           string           `json:"incident_id"`
	Timestamp    time.Time        `json:"timestamp"`
	Metadata     IncidentMetadata `json:"metadata"`
	Summary      string           `json:"summary"`
	AnalysisText string           `json:"analysis_text"`
	Confidence   ConfidenceResult `json:"confidence"`
	RegressionOf *RegressionMatch `json:"regression_of,omitempty"`
}

// IncidentMetadata carries the signal extracted from the raw log.
type IncidentMetadata struct {
	Language    string `json:"language"`
	Exception   string `json:"exception"`    // UNKNOWN when absent
	FailingLine string `json:"failing_line"` // UNKNOWN when absent
	Fingerprint string `json:"fingerprint"`
	ClusterID   string `json:"cluster_id"`
	Repo        string `json:"repo,omitempty"`
	PRNumber    int    `json:"pr_number,omitempty"`
	LogKey      string `json:"log_key,omitempty"`
	Gated       bool   `json:"gated,omitempty"`
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	out := *i
	out.Confidence = i.Confidence.Clone()
	if i.RegressionOf != nil {
		match := *i.RegressionOf
		out.RegressionOf = &match
	}
	return &out
}

// FailureSignature is the transient {fingerprint, exception, failing_line} triple.
// Exception and FailingLine are empty when not found.
type FailureSignature struct {
	Fingerprint string `json:"fingerprint"`
	Exception   string `json:"exception,omitempty"`
	FailingLine string `json:"failing_line,omitempty"`
}

// ExceptionOrUnknown returns the exception text or UNKNOWN.
func (s FailureSignature) ExceptionOrUnknown() string {
	if s.Exception == "" {
		return Unknown
	}
	return s.Exception
}

// FailingLineOrUnknown returns the failing line or UNKNOWN.
func (s FailureSignature) FailingLineOrUnknown() string {
	if s.FailingLine == "" {
		return Unknown
	}
	return s.FailingLine
}

// RegressionMatch references a prior incident whose analysis is similar to the current one.
type RegressionMatch struct {
	MatchedIncident string  `json:"matched_incident"`
	Similarity      float64 `json:"similarity"`
}
