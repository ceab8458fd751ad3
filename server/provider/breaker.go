package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/metrics"
	"go.uber.org/zap"
)

// ErrUnavailable is returned while the breaker rejects calls.
var ErrUnavailable = errors.New("completion provider unavailable")

// Breaker stops calling a failing provider for a while. Rejected calls
// fail immediately with ErrUnavailable; nothing is retried.
type Breaker struct {
	next Completer
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker named name. m may be nil.
func NewBreaker(next Completer, name string, cfg config.CircuitBreakerConfig, logger *zap.Logger, m *metrics.Metrics) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		// A caller hanging up says nothing about the provider.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	if m != nil {
		m.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *Breaker) Complete(ctx context.Context, turns []conversation.Turn, opts Options) (string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, turns, opts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// State reports "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
