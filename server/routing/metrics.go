package routing

import (
	"github.com/go-chi/chi/v5"
	"github.com/teilomillet/parley/server/metrics"
)

// RegisterMetricsRoutes adds routes for Prometheus metrics
func RegisterMetricsRoutes(r chi.Router, m *metrics.Metrics) {
	r.Method("GET", "/metrics", m.Handler())
}
