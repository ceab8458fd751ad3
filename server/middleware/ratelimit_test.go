package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/parley/config"
	"github.com/teilomillet/parley/server/metrics"
	"github.com/teilomillet/parley/server/middleware"
)

func TestRateLimitMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	limiter := middleware.NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             10,
	}, m)

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	testIP := "192.0.2.10"

	// Burst of 10, the 11th request is rejected.
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = testIP + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 10 {
			assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
			continue
		}

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "rate_limit_error", body["type"])
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits))
}

func TestRateLimitPerClient(t *testing.T) {
	limiter := middleware.NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, nil)
	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("198.51.100.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, do("198.51.100.1:2000"))
	assert.Equal(t, http.StatusOK, do("198.51.100.2:1000"))
}
