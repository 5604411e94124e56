package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDurationMs  *prometheus.HistogramVec
	RateLimitHits      *prometheus.CounterVec
	TaskTotal          *prometheus.CounterVec
	GatewayLatencyMs   *prometheus.HistogramVec
	DispatchRejected   *prometheus.CounterVec
	SinkFailures       *prometheus.CounterVec
	SecretDetections   *prometheus.CounterVec
	InjectionSignals   *prometheus.CounterVec
	CircuitBreakerOpen *prometheus.GaugeVec
}

// NewMetrics registers the metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_request_total",
			Help: "Total number of webhook requests handled.",
		}, []string{"route", "status"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_request_duration_ms",
			Help:    "Synchronous handling time of webhook requests in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"route"}),

		RateLimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_rate_limit_hits_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}, []string{"route"}),

		TaskTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_task_total",
			Help: "Background tasks by kind, outcome and failure category.",
		}, []string{"kind", "outcome", "category"}),

		GatewayLatencyMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_gateway_latency_ms",
			Help:    "Latency of outbound gateway calls in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"kind"}),

		DispatchRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatch_rejected_total",
			Help: "Background tasks that could not be queued.",
		}, []string{"kind", "reason"}),

		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_persistence_failures_total",
			Help: "Failed writes per history sink.",
		}, []string{"sink"}),

		SecretDetections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_secret_detections_total",
			Help: "Credentials detected in inbound event text.",
		}, []string{"pattern"}),

		InjectionSignals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_injection_signals_total",
			Help: "Prompt injection patterns matched in inbound questions and context.",
		}, []string{"category"}),

		CircuitBreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_open",
			Help: "1 while the gateway circuit breaker is open, 0.5 half-open, 0 closed.",
		}, []string{"gateway"}),
	}
}

// RecordRequest records a handled webhook request.
func (m *Metrics) RecordRequest(route, status string, durationMs float64) {
	m.RequestTotal.WithLabelValues(route, status).Inc()
	m.RequestDurationMs.WithLabelValues(route).Observe(durationMs)
}

func (m *Metrics) RecordRateLimitHit(route string) {
	m.RateLimitHits.WithLabelValues(route).Inc()
}

// RecordTask records a finished background task. category is empty on success.
func (m *Metrics) RecordTask(kind, outcome, category string) {
	m.TaskTotal.WithLabelValues(kind, outcome, category).Inc()
}

func (m *Metrics) RecordGatewayLatency(kind string, ms float64) {
	m.GatewayLatencyMs.WithLabelValues(kind).Observe(ms)
}

func (m *Metrics) RecordDispatchRejected(kind, reason string) {
	m.DispatchRejected.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) RecordSinkFailure(sink string) {
	m.SinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) RecordSecretDetection(pattern string) {
	m.SecretDetections.WithLabelValues(pattern).Inc()
}

func (m *Metrics) RecordInjectionSignal(category string) {
	m.InjectionSignals.WithLabelValues(category).Inc()
}

func (m *Metrics) SetBreakerState(gateway string, value float64) {
	m.CircuitBreakerOpen.WithLabelValues(gateway).Set(value)
}
