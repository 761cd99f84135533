package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/flemzord/tgbridge/internal/transport"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Client string `json:"client"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the chat client is running, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "degraded", Client: "absent"}
		if g.client != nil {
			state := g.client.Info().State
			resp.Client = state.String()
			if state == transport.StateRunning {
				resp.Status = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
