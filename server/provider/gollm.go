package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/teilomillet/gollm"
	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/conversation"
)

// Gollm completes through any provider gollm supports (anthropic, ollama,
// groq, ...). It accepts text only.
type Gollm struct {
	llm gollm.LLM

	// mu guards the generation options stored on the shared LLM:
	// Generate runs under the read lock, option changes under the write lock.
	mu      sync.RWMutex
	applied Options
}

// NewGollm creates the backend from config.
func NewGollm(cfg config.LLMConfig) (*Gollm, error) {
	llm, err := gollm.NewLLM(
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(cfg.Model),
		gollm.SetAPIKey(cfg.APIKey),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		llm.SetEndpoint(cfg.Endpoint)
	}
	return NewGollmWithLLM(llm), nil
}

// NewGollmWithLLM wraps an existing LLM, such as a test double.
func NewGollmWithLLM(llm gollm.LLM) *Gollm {
	return &Gollm{llm: llm}
}

// Complete converts the turns to a gollm prompt and generates.
func (g *Gollm) Complete(ctx context.Context, turns []conversation.Turn, opts Options) (string, error) {
	if len(turns) == 0 {
		return "", ErrNoTurns
	}

	messages := make([]gollm.PromptMessage, 0, len(turns))
	for _, t := range turns {
		if _, ok := t.Content().(conversation.Parts); ok {
			return "", fmt.Errorf("%w: %s", ErrImagesUnsupported, g.llm.GetProvider())
		}
		messages = append(messages, gollm.PromptMessage{
			Role:    string(t.Role()),
			Content: t.Text(),
		})
	}

	g.applyOptions(opts)

	g.mu.RLock()
	defer g.mu.RUnlock()

	response, err := g.llm.Generate(ctx, &gollm.Prompt{Messages: messages})
	if err != nil {
		return "", err
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return "", ErrEmptyResponse
	}
	return response, nil
}

func (g *Gollm) applyOptions(opts Options) {
	g.mu.RLock()
	same := g.applied == opts
	g.mu.RUnlock()
	if same {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.applied == opts {
		return
	}
	if opts.MaxOutputTokens > 0 {
		g.llm.SetOption("max_tokens", opts.MaxOutputTokens)
	}
	g.llm.SetOption("temperature", float64(opts.Temperature))
	g.applied = opts
}
