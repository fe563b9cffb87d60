// Package metrics holds Prometheus metrics for the incident pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Incident outcomes.
const (
	OutcomeAnalyzed = "analyzed"
	OutcomeGated    = "gated"
	OutcomeFailed   = "failed"
)

// Metrics holds pipeline counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	IncidentsTotal       *prometheus.CounterVec
	GateShortCircuits    prometheus.Counter
	LLMRequestsTotal     *prometheus.CounterVec
	RegressionsDetected  prometheus.Counter
	CollaboratorFailures *prometheus.CounterVec
	PipelineDuration     prometheus.Histogram
	InFlight             prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	incidents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_incidents_total",
		Help: "Total number of incidents by pipeline outcome",
	}, []string{"outcome"})

	gate := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultline_gate_short_circuits_total",
		Help: "Total number of submissions with no failure signal",
	})

	llmRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_llm_requests_total",
		Help: "Total number of language model completions by result",
	}, []string{"result"})

	regressions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "faultline_regressions_detected_total",
		Help: "Total number of incidents matched to a prior incident",
	})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_collaborator_failures_total",
		Help: "Total number of degraded collaborator calls",
	}, []string{"collaborator"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "faultline_pipeline_duration_seconds",
		Help:    "Duration of a pipeline run",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "faultline_pipeline_in_flight",
		Help: "Current number of running pipeline runs",
	})

	reg.MustRegister(incidents, gate, llmRequests, regressions, failures, duration, inFlight)

	return &Metrics{
		IncidentsTotal:       incidents,
		GateShortCircuits:    gate,
		LLMRequestsTotal:     llmRequests,
		RegressionsDetected:  regressions,
		CollaboratorFailures: failures,
		PipelineDuration:     duration,
		InFlight:             inFlight,
	}
}

// RunStarted marks the start of a run and returns a func that records its end.
func (m *Metrics) RunStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.InFlight.Inc()
	return func(outcome string) {
		m.InFlight.Dec()
		m.PipelineDuration.Observe(time.Since(start).Seconds())
		m.IncidentsTotal.WithLabelValues(outcome).Inc()
	}
}

// GateShortCircuit counts a gated submission.
func (m *Metrics) GateShortCircuit() {
	if m != nil {
		m.GateShortCircuits.Inc()
	}
}

// LLMRequest counts a completion with result "ok" or "error".
func (m *Metrics) LLMRequest(result string) {
	if m != nil {
		m.LLMRequestsTotal.WithLabelValues(result).Inc()
	}
}

// Regression counts a detected regression.
func (m *Metrics) Regression() {
	if m != nil {
		m.RegressionsDetected.Inc()
	}
}

// CollaboratorFailure counts a degraded call to collaborator.
func (m *Metrics) CollaboratorFailure(collaborator string) {
	if m != nil {
		m.CollaboratorFailures.WithLabelValues(collaborator).Inc()
	}
}
