package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/telegram"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime int64            `json:"uptime_seconds"`
	Client *telegram.Info   `json:"client,omitempty"`
	Jobs   []cron.RunRecord `json:"jobs,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime: int64(time.Since(g.startedAt).Seconds()),
		}
		if g.client != nil {
			info := g.client.Info()
			resp.Client = &info
		}
		if g.jobs != nil {
			resp.Jobs = g.jobs.Records()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
