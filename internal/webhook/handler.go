package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/tgbridge/internal/store"
)

// maxBodySize bounds inbound request bodies.
const maxBodySize = 64 << 10

// Sender sends and stores one outgoing message.
type Sender interface {
	SendMessage(ctx context.Context, msg *store.Message) error
}

// SendRequest is the body the host posts to have a message sent.
type SendRequest struct {
	Peer string `json:"peer"`
	Text string `json:"text"`
}

// HandlerConfig configures the inbound handler.
type HandlerConfig struct {
	Sender Sender
	Secret string
	Logger *slog.Logger
}

// Handler accepts signed send requests from the host.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler returns a Handler. Both a sender and a secret are required:
// the signature is the only authentication the endpoint has.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Sender == nil {
		return nil, errors.New("webhook: handler requires a Sender")
	}
	if cfg.Secret == "" {
		return nil, errors.New("webhook: handler requires a secret")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{cfg: cfg}, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !Verify(h.cfg.Secret, body, r.Header.Get(SignatureHeader)) {
		h.cfg.Logger.Warn("webhook: invalid signature", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var req SendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Peer = strings.TrimSpace(req.Peer)
	if req.Peer == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "peer and text are required", http.StatusBadRequest)
		return
	}

	msg := &store.Message{Peer: req.Peer, Text: req.Text}
	status := http.StatusCreated
	if err := h.cfg.Sender.SendMessage(r.Context(), msg); err != nil {
		h.cfg.Logger.Error("webhook: send failed", "peer", req.Peer, "error", err)
		if msg.OID == "" {
			http.Error(w, "send failed", http.StatusBadGateway)
			return
		}
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(msg)
}
