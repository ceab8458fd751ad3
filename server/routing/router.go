// Package routing wires the chat server's handlers and middleware into a
// chi router.
package routing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/handlers"
	"github.com/teilomillet/parley/server/metrics"
	"github.com/teilomillet/parley/server/middleware"
	"github.com/teilomillet/parley/server/processing"
	"github.com/teilomillet/parley/server/provider"
	"github.com/teilomillet/parley/server/validation"
	"go.uber.org/zap"
)

// Dependencies are the components the router serves.
type Dependencies struct {
	Processor *processing.Processor
	// Completer is inspected for availability on /health; it may be nil
	Completer provider.Completer
	// Metrics enables HTTP metrics and /metrics when set
	Metrics *metrics.Metrics
}

// Router handles HTTP routing for the chat server.
type Router struct {
	router chi.Router
	logger *zap.Logger
}

// NewRouter builds the route table:
//
//	GET  /         chat page
//	POST /chat     one exchange
//	POST /reset    clear a session
//	GET  /history  stored turns of a session
//	GET  /health   liveness and completion availability
//	GET  /metrics  Prometheus metrics
func NewRouter(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Router {
	r := &Router{
		router: chi.NewRouter(),
		logger: logger,
	}

	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RequestTimer)
	r.router.Use(middleware.Logging(logger))
	r.router.Use(middleware.Recovery(logger))
	r.router.Use(middleware.CORS)
	if deps.Metrics != nil {
		r.router.Use(middleware.PrometheusMetrics(deps.Metrics))
	}

	v := validation.New()

	r.router.Get("/", handlers.Index)
	r.router.Get("/health", healthHandler(deps.Completer))
	if deps.Metrics != nil {
		RegisterMetricsRoutes(r.router, deps.Metrics)
	}

	r.router.Group(func(router chi.Router) {
		if cfg.RateLimit.Enabled {
			limiter := middleware.NewRateLimiter(cfg.RateLimit, deps.Metrics)
			router.Use(limiter.Handler)
			logger.Info("Rate limiting enabled",
				zap.Int("requests_per_minute", cfg.RateLimit.RequestsPerMinute),
				zap.Int("burst", cfg.RateLimit.Burst),
			)
		}

		router.With(validation.RequireForm).
			Method(http.MethodPost, "/chat", handlers.NewChatHandler(deps.Processor, v, cfg.Upload.MaxUploadBytes, logger))
		router.Post("/reset", handlers.ResetHandler(deps.Processor, v))
		router.Get("/history", handlers.HistoryHandler(deps.Processor, v))
	})

	return r
}

// ServeHTTP implements the http.Handler interface.
// Delegates request handling to the underlying Chi router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
