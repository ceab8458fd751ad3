package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/conversation"
	"github.com/teilomillet/parley/server/metrics"
	"github.com/teilomillet/parley/server/mocks"
	"github.com/teilomillet/parley/server/provider"
	"go.uber.org/zap/zaptest"
)

type chatRequest struct {
	Model       string            `json:"model"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Messages    []json.RawMessage `json:"messages"`
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

// fakeOpenAI serves chat completions and hands each decoded request to inspect.
// inspect runs on the server goroutine, so it must use assert, not require.
func fakeOpenAI(t *testing.T, path string, inspect func(*http.Request, chatRequest), answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("unexpected path %s, want %s", r.URL.Path, path)
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if inspect != nil {
			inspect(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody(answer)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func turns(t *testing.T) []conversation.Turn {
	t.Helper()
	sys, err := conversation.SystemText("You are an AI assistant that remembers past conversations.")
	require.NoError(t, err)
	user, err := conversation.UserText("Hello")
	require.NoError(t, err)
	return []conversation.Turn{sys, user}
}

func TestOpenAICompletion(t *testing.T) {
	t.Parallel()

	srv := fakeOpenAI(t, "/v1/chat/completions", func(r *http.Request, req chatRequest) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.Equal(t, 350, req.MaxTokens)
		assert.InDelta(t, 0.7, req.Temperature, 0.0001)
		if !assert.Len(t, req.Messages, 2) {
			return
		}

		var first, second chatMessage
		assert.NoError(t, json.Unmarshal(req.Messages[0], &first))
		assert.NoError(t, json.Unmarshal(req.Messages[1], &second))
		assert.Equal(t, "system", first.Role)
		assert.Equal(t, "user", second.Role)
		assert.JSONEq(t, `"Hello"`, string(second.Content))
	}, "\n  Hi there!  \n")

	c, err := provider.NewOpenAI(config.LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o",
		APIKey:   "sk-test",
		Endpoint: srv.URL + "/v1/",
	}, srv.Client())
	require.NoError(t, err)

	answer, err := c.Complete(context.Background(), turns(t), provider.Options{MaxOutputTokens: 350, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", answer)
}

func TestOpenAIImageParts(t *testing.T) {
	t.Parallel()

	srv := fakeOpenAI(t, "/v1/chat/completions", func(r *http.Request, req chatRequest) {
		if !assert.Len(t, req.Messages, 2) {
			return
		}
		var msg chatMessage
		assert.NoError(t, json.Unmarshal(req.Messages[1], &msg))

		var parts []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		}
		assert.NoError(t, json.Unmarshal(msg.Content, &parts))
		if !assert.Len(t, parts, 2) {
			return
		}
		assert.Equal(t, "text", parts[0].Type)
		assert.Equal(t, "Describe the image.", parts[0].Text)
		assert.Equal(t, "image_url", parts[1].Type)
		assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", parts[1].ImageURL.URL)
	}, "A cat.")

	c, err := provider.NewOpenAI(config.LLMConfig{
		Provider: "openai",
		Model:    "gpt-4o",
		APIKey:   "sk-test",
		Endpoint: srv.URL + "/v1",
	}, srv.Client())
	require.NoError(t, err)

	sys, _ := conversation.SystemText("system")
	image, err := conversation.NewTurn(conversation.RoleUser, conversation.Parts{
		conversation.TextPart{Text: "Describe the image."},
		conversation.ImagePart{MIMEType: "image/png", Data: "iVBORw0KGgo="},
	})
	require.NoError(t, err)

	answer, err := c.Complete(context.Background(), []conversation.Turn{sys, image}, provider.Options{MaxOutputTokens: 350})
	require.NoError(t, err)
	assert.Equal(t, "A cat.", answer)
}

func TestAzureRouting(t *testing.T) {
	t.Parallel()

	srv := fakeOpenAI(t, "/openai/deployments/chat-deployment/chat/completions", func(r *http.Request, req chatRequest) {
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
	}, "Hello from Azure")

	c, err := provider.NewOpenAI(config.LLMConfig{
		Provider:   "azure",
		APIKey:     "azure-key",
		Endpoint:   srv.URL,
		Deployment: "chat-deployment",
		APIVersion: "2024-02-01",
	}, srv.Client())
	require.NoError(t, err)

	answer, err := c.Complete(context.Background(), turns(t), provider.Options{MaxOutputTokens: 350, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Hello from Azure", answer)
}

func TestOpenAIFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
			},
			wantErr: provider.ErrEmptyResponse,
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(completionBody("   ")))
			},
			wantErr: provider.ErrEmptyResponse,
		},
		{
			name: "quota exceeded",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, err := provider.NewOpenAI(config.LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o",
				APIKey:   "sk-test",
				Endpoint: srv.URL,
			}, srv.Client())
			require.NoError(t, err)

			_, err = c.Complete(context.Background(), turns(t), provider.Options{})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIRejectsNoTurns(t *testing.T) {
	c, err := provider.NewOpenAI(config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o"}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), nil, provider.Options{})
	assert.ErrorIs(t, err, provider.ErrNoTurns)
}

func TestNewOpenAIValidation(t *testing.T) {
	_, err := provider.NewOpenAI(config.LLMConfig{Provider: "azure", APIKey: "k"}, nil)
	assert.Error(t, err)

	_, err = provider.NewOpenAI(config.LLMConfig{Provider: "ollama"}, nil)
	assert.Error(t, err)
}

func TestGollmCompletion(t *testing.T) {
	t.Parallel()

	mockLLM := mocks.NewMockLLM(func(ctx context.Context, p *gollm.Prompt) (string, error) {
		return " Hello from gollm\n", nil
	})
	c := provider.NewGollmWithLLM(mockLLM)

	answer, err := c.Complete(context.Background(), turns(t), provider.Options{MaxOutputTokens: 200, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "Hello from gollm", answer)

	prompts := mockLLM.Prompts()
	require.Len(t, prompts, 1)
	require.Len(t, prompts[0].Messages, 2)
	assert.Equal(t, "system", prompts[0].Messages[0].Role)
	assert.Equal(t, "user", prompts[0].Messages[1].Role)
	assert.Equal(t, "Hello", prompts[0].Messages[1].Content)

	maxTokens, ok := mockLLM.Option("max_tokens")
	require.True(t, ok)
	assert.Equal(t, 200, maxTokens)
	temperature, ok := mockLLM.Option("temperature")
	require.True(t, ok)
	assert.InDelta(t, 0.5, temperature, 0.0001)
}

func TestGollmRejectsImages(t *testing.T) {
	t.Parallel()

	mockLLM := mocks.NewMockLLM(nil)
	c := provider.NewGollmWithLLM(mockLLM)

	image, err := conversation.NewTurn(conversation.RoleUser, conversation.Parts{
		conversation.TextPart{Text: "What is this?"},
		conversation.ImagePart{MIMEType: "image/png", Data: "AAAA"},
	})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), []conversation.Turn{image}, provider.Options{})
	assert.ErrorIs(t, err, provider.ErrImagesUnsupported)
	assert.Empty(t, mockLLM.Prompts())
}

func TestGollmFailures(t *testing.T) {
	t.Parallel()

	empty := provider.NewGollmWithLLM(mocks.NewMockLLM(nil))
	_, err := empty.Complete(context.Background(), turns(t), provider.Options{})
	assert.ErrorIs(t, err, provider.ErrEmptyResponse)

	boom := errors.New("connection refused")
	failing := provider.NewGollmWithLLM(mocks.NewMockLLM(func(context.Context, *gollm.Prompt) (string, error) {
		return "", boom
	}))
	_, err = failing.Complete(context.Background(), turns(t), provider.Options{})
	assert.ErrorIs(t, err, boom)
}

func TestInstrumentTimeout(t *testing.T) {
	t.Parallel()

	m := metrics.NewMetrics()
	slow := mocks.NewCompleter(func(ctx context.Context, _ []conversation.Turn, _ provider.Options) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := provider.Instrument(slow, "test", 20*time.Millisecond, zaptest.NewLogger(t), m)

	_, err := c.Complete(context.Background(), turns(t), provider.Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionErrors.WithLabelValues("test")))
}

func TestInstrumentPassesThrough(t *testing.T) {
	t.Parallel()

	inner := mocks.StaticCompleter("fine")
	c := provider.Instrument(inner, "test", 0, zaptest.NewLogger(t), nil)

	answer, err := c.Complete(context.Background(), turns(t), provider.Options{MaxOutputTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, "fine", answer)

	call, ok := inner.LastCall()
	require.True(t, ok)
	assert.Equal(t, 10, call.Options.MaxOutputTokens)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	var calls int32
	failing := mocks.NewCompleter(func(context.Context, []conversation.Turn, provider.Options) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("upstream down")
	})

	m := metrics.NewMetrics()
	b := provider.NewBreaker(failing, "test", config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}, zaptest.NewLogger(t), m)

	for i := 0; i < 2; i++ {
		_, err := b.Complete(context.Background(), turns(t), provider.Options{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, provider.ErrUnavailable)
	}
	assert.Equal(t, "open", b.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("test")))

	_, err := b.Complete(context.Background(), turns(t), provider.Options{})
	assert.ErrorIs(t, err, provider.ErrUnavailable)
	assert.True(t, strings.HasPrefix(err.Error(), "completion provider unavailable"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open breaker must not call the provider")
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	canceled := mocks.NewCompleter(func(context.Context, []conversation.Turn, provider.Options) (string, error) {
		return "", context.Canceled
	})
	b := provider.NewBreaker(canceled, "test", config.CircuitBreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}, zaptest.NewLogger(t), nil)

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), turns(t), provider.Options{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", b.State())
}

func TestNewBuildsChain(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"

	c, err := provider.New(cfg, zaptest.NewLogger(t), metrics.NewMetrics())
	require.NoError(t, err)
	_, reports := c.(provider.StateReporter)
	assert.False(t, reports)

	cfg.CircuitBreaker.Enabled = true
	c, err = provider.New(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	sr, reports := c.(provider.StateReporter)
	require.True(t, reports)
	assert.Equal(t, "closed", sr.State())
}

func TestOptionsFromConfig(t *testing.T) {
	opts := provider.OptionsFromConfig(config.DefaultConfig().LLM)
	assert.Equal(t, provider.Options{MaxOutputTokens: 350, Temperature: 0.7}, opts)
}
