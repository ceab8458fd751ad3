package provider

import (
	"context"
	"time"

	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/metrics"
	"go.uber.org/zap"
)

// Instrumented bounds each call with a timeout and records latency and
// failures per provider.
type Instrumented struct {
	next    Completer
	name    string
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Instrument wraps next. A zero timeout leaves the caller's deadline alone;
// m may be nil.
func Instrument(next Completer, name string, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *Instrumented {
	return &Instrumented{
		next:    next,
		name:    name,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

func (i *Instrumented) Complete(ctx context.Context, turns []conversation.Turn, opts Options) (string, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := i.next.Complete(ctx, turns, opts)
	duration := time.Since(start)

	if i.metrics != nil {
		i.metrics.CompletionDuration.WithLabelValues(i.name).Observe(duration.Seconds())
		if err != nil {
			i.metrics.CompletionErrors.WithLabelValues(i.name).Inc()
		}
	}

	if err != nil {
		i.logger.Warn("Completion failed",
			zap.String("provider", i.name),
			zap.Int("messages", len(turns)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", err
	}

	i.logger.Debug("Completion succeeded",
		zap.String("provider", i.name),
		zap.Int("messages", len(turns)),
		zap.Duration("duration", duration),
	)
	return answer, nil
}
