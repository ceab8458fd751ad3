package mocks

import (
	"context"
	"sync"

	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/provider"
)

// Completer is a scripted provider.Completer that records every call.
//
// Example usage:
//
//	c := mocks.NewCompleter(func(ctx context.Context, turns []conversation.Turn, opts provider.Options) (string, error) {
//	    return "Hi there!", nil
//	})
type Completer struct {
	CompleteFunc func(context.Context, []conversation.Turn, provider.Options) (string, error)

	mu    sync.Mutex
	calls []CompleterCall
}

// CompleterCall is one recorded Complete invocation.
type CompleterCall struct {
	Turns   []conversation.Turn
	Options provider.Options
}

var _ provider.Completer = (*Completer)(nil)

// NewCompleter creates a Completer. A nil fn answers "ok".
func NewCompleter(fn func(context.Context, []conversation.Turn, provider.Options) (string, error)) *Completer {
	return &Completer{CompleteFunc: fn}
}

// StaticCompleter always returns answer.
func StaticCompleter(answer string) *Completer {
	return NewCompleter(func(context.Context, []conversation.Turn, provider.Options) (string, error) {
		return answer, nil
	})
}

// Complete implements provider.Completer.
func (c *Completer) Complete(ctx context.Context, turns []conversation.Turn, opts provider.Options) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, CompleterCall{
		Turns:   append([]conversation.Turn(nil), turns...),
		Options: opts,
	})
	c.mu.Unlock()

	if c.CompleteFunc != nil {
		return c.CompleteFunc(ctx, turns, opts)
	}
	return "ok", nil
}

// Calls returns the recorded calls, oldest first.
func (c *Completer) Calls() []CompleterCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CompleterCall(nil), c.calls...)
}

// LastCall returns the most recent call.
func (c *Completer) LastCall() (CompleterCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return CompleterCall{}, false
	}
	return c.calls[len(c.calls)-1], true
}
