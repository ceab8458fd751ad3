// Package provider sends assembled conversations to the completion model.
//
// Two backends exist: OpenAI speaks to OpenAI and Azure OpenAI through the
// go-openai client and accepts images; Gollm covers the other providers gollm
// supports, text only. New wraps the backend with metrics, a per-call timeout
// and, when enabled, a fail-fast circuit breaker. Nothing is retried.
package provider

import (
	"context"
	"fmt"

	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/metrics"
	"go.uber.org/zap"
)

// Options are the per-call generation settings.
type Options struct {
	MaxOutputTokens int
	Temperature     float32
}

// OptionsFromConfig reads generation settings from the LLM config.
func OptionsFromConfig(cfg config.LLMConfig) Options {
	return Options{
		MaxOutputTokens: cfg.MaxOutputTokens,
		Temperature:     cfg.Temperature,
	}
}

// Completer produces the assistant answer for a conversation. The first turn
// is the system turn; the rest is history plus the new user turns.
type Completer interface {
	Complete(ctx context.Context, turns []conversation.Turn, opts Options) (string, error)
}

// StateReporter is implemented by completers that track availability.
type StateReporter interface {
	State() string
}

// New builds the configured completer chain.
func New(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (Completer, error) {
	var (
		backend Completer
		err     error
	)
	switch cfg.LLM.Provider {
	case "azure", "openai":
		backend, err = NewOpenAI(cfg.LLM, nil)
	default:
		backend, err = NewGollm(cfg.LLM)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.LLM.Provider, err)
	}

	logger.Info("Completion provider ready",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("deployment", cfg.LLM.Deployment),
	)

	var c Completer = Instrument(backend, cfg.LLM.Provider, cfg.LLM.Timeout, logger, m)
	if cfg.CircuitBreaker.Enabled {
		c = NewBreaker(c, cfg.LLM.Provider, cfg.CircuitBreaker, logger, m)
	}
	return c, nil
}
