package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (environment only when empty)")
	validate   = flag.Bool("validate", false, "Validate configuration and exit")
	version    = flag.Bool("version", false, "Print version and exit")
)

const Version = "v0.1.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("parley %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Resolve(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := server.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var watcher config.Watcher
	if *configFile != "" {
		w, err := config.NewConfigWatcher(*configFile, logger)
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer w.Close()
		watcher = w
	} else {
		watcher = staticConfig{cfg: cfg}
	}

	srv, err := server.NewServer(watcher, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting parley",
		zap.String("version", Version),
		zap.String("address", cfg.Server.Addr()),
		zap.String("provider", cfg.LLM.Provider),
	)
	return srv.Start(ctx)
}

// staticConfig serves a configuration that never changes.
type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) GetCurrentConfig() *config.Config { return s.cfg }

func (s staticConfig) Subscribe() <-chan *config.Config { return make(chan *config.Config) }

func (s staticConfig) Close() error { return nil }
