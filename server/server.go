// Package server assembles the chat server: completion provider, chat
// processor, router and HTTP listener, plus configuration hot reload.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/errors"
	"github.com/teilomillet/parley/server/metrics"
	"github.com/teilomillet/parley/server/processing"
	"github.com/teilomillet/parley/server/provider"
	"github.com/teilomillet/parley/server/routing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	watcher         config.Watcher
	processor       *processing.Processor
	metrics         *metrics.Metrics
	logger          *zap.Logger
	shutdownTimeout time.Duration
}

// NewServer builds a server whose completion provider comes from the
// watcher's current configuration.
func NewServer(watcher config.Watcher, logger *zap.Logger) (*Server, error) {
	cfg := watcher.GetCurrentConfig()
	m := metrics.NewMetrics()

	completer, err := provider.New(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	return newServer(watcher, completer, m, logger)
}

// NewServerWithConfig builds a server around an existing completer.
func NewServerWithConfig(watcher config.Watcher, completer provider.Completer, logger *zap.Logger) (*Server, error) {
	return newServer(watcher, completer, metrics.NewMetrics(), logger)
}

func newServer(watcher config.Watcher, completer provider.Completer, m *metrics.Metrics, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg := watcher.GetCurrentConfig()

	p, err := processing.NewProcessor(cfg, completer, logger, processing.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("create processor: %w", err)
	}

	router := routing.NewRouter(cfg, routing.Dependencies{
		Processor: p,
		Completer: completer,
		Metrics:   m,
	}, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Addr(),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			ErrorLog:       zap.NewStdLog(logger),
		},
		watcher:         watcher,
		processor:       p,
		metrics:         m,
		logger:          logger,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Processor returns the chat processor.
func (s *Server) Processor() *processing.Processor {
	return s.processor
}

// Start listens on the configured address and blocks until ctx is done or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
// Configuration updates from the watcher are applied while serving.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server started", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Info("Shutting down server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.watchConfig(gctx)
		return nil
	})

	return g.Wait()
}

// watchConfig applies reloadable settings until ctx is done or the watcher
// closes. Listener and middleware settings need a restart.
func (s *Server) watchConfig(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			s.processor.ApplyConfig(cfg)
			if cfg.Server.Addr() != s.httpServer.Addr {
				s.logger.Warn("Server address change requires a restart",
					zap.String("current", s.httpServer.Addr),
					zap.String("configured", cfg.Server.Addr()),
				)
			}
		}
	}
}

// NewLogger builds the process logger from the logging config and makes it
// the errors package default.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	errors.SetLogger(logger)
	return logger, nil
}
