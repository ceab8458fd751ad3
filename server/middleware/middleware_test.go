package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/parley/config"
	"go.uber.org/zap/zaptest"
)

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
	}))

	tests := []struct {
		name           string
		providedReqID  string
		shouldBeReused bool
	}{
		{name: "generates new request ID", providedReqID: "", shouldBeReused: false},
		{name: "reuses provided request ID", providedReqID: "test-id-123", shouldBeReused: true},
		{name: "replaces request ID with spaces", providedReqID: "bad id", shouldBeReused: false},
		{name: "replaces oversized request ID", providedReqID: strings.Repeat("a", 200), shouldBeReused: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.providedReqID != "" {
				req.Header.Set(RequestIDHeader, tt.providedReqID)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			respID := rec.Header().Get(RequestIDHeader)
			require.NotEmpty(t, respID)
			assert.Equal(t, respID, seen)

			if tt.shouldBeReused {
				assert.Equal(t, tt.providedReqID, respID)
			} else {
				assert.NotEqual(t, tt.providedReqID, respID)
			}
		})
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", GetRequestID(req.Context()))
}

func TestRequestTimer(t *testing.T) {
	t.Run("handler writes nothing", func(t *testing.T) {
		handler := RequestTimer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(10 * time.Millisecond)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		duration, err := time.ParseDuration(rec.Header().Get("X-Response-Time"))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
	})

	t.Run("header is sent with the body", func(t *testing.T) {
		handler := RequestTimer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		srv := httptest.NewServer(handler)
		defer srv.Close()

		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.NotEmpty(t, resp.Header.Get("X-Response-Time"))
	})
}

func TestRecovery(t *testing.T) {
	handler := RequestID(Recovery(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "panic-req")
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() { handler.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal_error", body["type"])
	assert.Equal(t, "panic-req", body["request_id"])
}

func TestLogging(t *testing.T) {
	handler := Logging(zaptest.NewLogger(t))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCORS(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Session-ID")
	})

	t.Run("regular request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	// 60 per minute with a burst of 2 refills in two seconds.
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 60, Burst: 2}, nil)
	require.Equal(t, 2*time.Second, l.idle)

	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }
	l.lastSweep = clock

	for i := 0; i < 100; i++ {
		l.get(fmt.Sprintf("203.0.113.%d", i))
	}
	assert.Equal(t, 100, len(l.visitors))

	clock = clock.Add(time.Second)
	l.get("203.0.113.7")
	assert.Equal(t, 100, len(l.visitors), "nothing is idle long enough yet")

	clock = clock.Add(1500 * time.Millisecond)
	l.get("198.51.100.1")
	assert.Equal(t, 2, len(l.visitors), "only the recently seen client and the new one remain")
}
