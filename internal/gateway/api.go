package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/store"
)

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

// maxBodySize bounds API request bodies.
const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSendMessage returns an http.HandlerFunc for POST /api/messages.
// The stored message is returned whether or not delivery succeeded.
func (g *Gateway) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Peer = strings.TrimSpace(req.Peer)
		if req.Peer == "" || strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "peer and text are required")
			return
		}

		msg := &store.Message{Peer: req.Peer, Text: req.Text}
		if err := g.sender.SendMessage(r.Context(), msg); err != nil {
			g.logger.Warn("gateway: send failed", "peer", req.Peer, "error", err)
			if msg.OID == "" {
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeJSON(w, http.StatusBadGateway, msg)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

// handleRunJob returns an http.HandlerFunc for POST /api/jobs/{name}.
func (g *Gateway) handleRunJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		rec, err := g.jobs.RunNow(r.Context(), name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			writeError(w, http.StatusNotFound, "unknown job")
		case err != nil:
			writeJSON(w, http.StatusInternalServerError, rec)
		default:
			writeJSON(w, http.StatusOK, rec)
		}
	}
}
