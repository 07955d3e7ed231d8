// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	IngestQueueDepth  prometheus.Gauge
	IngestInFlight    prometheus.Gauge
	IngestTasksTotal  *prometheus.CounterVec
	IngestTaskSeconds prometheus.Histogram

	// Retrieval gate metrics
	GateDecisionsTotal *prometheus.CounterVec
	GateTopScore       prometheus.Histogram
	HomeworkTriggered  prometheus.Counter

	// Knowledge store metrics
	AvailabilityToggles *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tutor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		IngestQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tutor_ingest_queue_depth",
				Help: "Documents waiting for an ingestion worker",
			},
		),
		IngestInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tutor_ingest_in_flight",
				Help: "Documents currently being ingested",
			},
		),
		IngestTasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_ingest_tasks_total",
				Help: "Finished ingestion tasks by outcome",
			},
			[]string{"outcome"},
		),
		IngestTaskSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tutor_ingest_task_duration_seconds",
				Help:    "Wall time of one ingestion task",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),

		GateDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_gate_decisions_total",
				Help: "Relevance gate outcomes",
			},
			[]string{"decision"},
		),
		GateTopScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tutor_gate_top_score",
				Help:    "Top-1 similarity observed by the relevance gate",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		HomeworkTriggered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tutor_homework_policy_total",
				Help: "Chat turns answered under the hint-only homework policy",
			},
		),

		AvailabilityToggles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tutor_availability_toggles_total",
				Help: "Document availability toggles by result",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGate records one relevance gate decision.
func (m *Metrics) RecordGate(decision string, topScore float64) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(decision).Inc()
	m.GateTopScore.Observe(topScore)
}

// RecordHomework counts a turn answered under the homework policy.
func (m *Metrics) RecordHomework() {
	if m == nil {
		return
	}
	m.HomeworkTriggered.Inc()
}

// RecordToggle counts an availability toggle outcome.
func (m *Metrics) RecordToggle(result string) {
	if m == nil {
		return
	}
	m.AvailabilityToggles.WithLabelValues(result).Inc()
}

// TaskQueued counts a task entering the ingestion queue.
func (m *Metrics) TaskQueued() {
	if m == nil {
		return
	}
	m.IngestQueueDepth.Inc()
}

// TaskStarted moves a task from the queue to in-flight.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.IngestQueueDepth.Dec()
	m.IngestInFlight.Inc()
}

// TaskFinished records the outcome of an in-flight task.
func (m *Metrics) TaskFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.IngestInFlight.Dec()
	m.IngestTasksTotal.WithLabelValues(outcome).Inc()
	m.IngestTaskSeconds.Observe(duration.Seconds())
}
