package events

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 10 * time.Second

// Handler returns an http.Handler streaming hub events to websocket
// clients as JSON text messages. Incoming messages are ignored.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.serveWebSocket)
}

func (h *Hub) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	sub := h.Subscribe()
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("events subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("events subscriber gone", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
