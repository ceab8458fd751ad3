// Package metrics holds the Prometheus collectors shared by the chat server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat outcomes recorded by the pipeline.
const (
	OutcomeOK              = "ok"
	OutcomeRefused         = "refused"
	OutcomeExtractionError = "extraction_error"
	OutcomeProviderError   = "provider_error"
	OutcomeCanceled        = "canceled"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   prometheus.Counter

	ChatOutcomes       *prometheus.CounterVec
	AttachmentsTotal   *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	CompletionErrors   *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	ActiveSessions     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parley_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_rate_limit_hits_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
		ChatOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_chat_outcomes_total",
				Help: "Chat exchanges by outcome",
			},
			[]string{"outcome"},
		),
		AttachmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_attachments_total",
				Help: "Uploaded attachments by kind",
			},
			[]string{"kind"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_completion_duration_seconds",
				Help:    "Latency of completion calls by provider",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"provider"},
		),
		CompletionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_completion_errors_total",
				Help: "Failed completion calls by provider",
			},
			[]string{"provider"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parley_circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "parley_sessions",
				Help: "Number of conversation sessions held in memory",
			},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize some default metrics
	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	for _, outcome := range []string{OutcomeOK, OutcomeRefused, OutcomeExtractionError, OutcomeProviderError} {
		m.ChatOutcomes.WithLabelValues(outcome).Add(0)
	}

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
