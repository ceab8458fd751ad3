package routing

import (
	"encoding/json"
	"net/http"

	"github.com/teilomillet/parley/server/provider"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Completion string `json:"completion,omitempty"`
}

// healthHandler reports "degraded" with 503 while the completion breaker
// is open. Completers without a breaker always look healthy.
func healthHandler(c provider.Completer) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		resp := HealthResponse{Status: "healthy"}
		status := http.StatusOK

		if sr, ok := c.(provider.StateReporter); ok {
			resp.Completion = sr.State()
			if resp.Completion == "open" {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
