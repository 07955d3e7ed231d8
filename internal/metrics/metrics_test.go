package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.RecordGate("answerable", 0.8)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.GateDecisionsTotal.WithLabelValues("answerable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GateDecisionsTotal.WithLabelValues("answerable")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordGate("rejected_form", 0)
		m.RecordHomework()
		m.RecordToggle("ok")
		m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/health", http.StatusOK, 5*time.Millisecond)
	m.RecordHomework()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tutor_http_requests_total")
	assert.Contains(t, body, "tutor_homework_policy_total 1")
}

func TestTaskLifecycleGauges(t *testing.T) {
	m := New()

	m.TaskQueued()
	m.TaskQueued()
	m.TaskStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestQueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestInFlight))

	m.TaskFinished("failed", time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.IngestInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestTasksTotal.WithLabelValues("failed")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.TaskQueued()
		nilMetrics.TaskStarted()
		nilMetrics.TaskFinished("succeeded", 0)
	})
}
