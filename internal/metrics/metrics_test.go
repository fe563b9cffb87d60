package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RunLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	done := m.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	done(OutcomeGated)
	m.GateShortCircuit()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IncidentsTotal.WithLabelValues(OutcomeGated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateShortCircuits))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PipelineDuration))
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.LLMRequest("ok")
	m.LLMRequest("error")
	m.LLMRequest("error")
	m.Regression()
	m.CollaboratorFailure("vector_index")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegressionsDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollaboratorFailures.WithLabelValues("vector_index")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunStarted()(OutcomeAnalyzed)
		m.GateShortCircuit()
		m.LLMRequest("ok")
		m.Regression()
		m.CollaboratorFailure("llm")
	})
}
