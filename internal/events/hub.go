// Package events fans stored messages out to live subscribers, such as
// websocket clients of the gateway.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/tgbridge/internal/store"
)

// Event types.
const (
	TypeMessage = "message"
)

// Event is one notification sent to subscribers.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// MessagePayload is the payload of a TypeMessage event.
type MessagePayload struct {
	OID        string `json:"oid"`
	TelegramID string `json:"telegram_id,omitempty"`
	Peer       string `json:"peer"`
	Name       string `json:"name,omitempty"`
	Direction  string `json:"direction"`
	Status     string `json:"status"`
	Text       string `json:"text"`
	Date       string `json:"date,omitempty"`
}

// Hub delivers events to subscribers. A subscriber that falls behind by
// more than its buffer loses events rather than blocking publishers.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	buffer  int
	dropped int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub returns a hub giving each subscriber buffer pending events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
		now:    time.Now,
	}
}

// Subscription receives events until it is closed.
type Subscription struct {
	hub  *Hub
	ch   chan Event
	once sync.Once
}

// C returns the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Event, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were lost to full buffers.
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Publish sends m to every subscriber as a TypeMessage event.
func (h *Hub) Publish(m store.Message) {
	p := MessagePayload{
		OID:        m.OID,
		TelegramID: m.TelegramID,
		Peer:       m.Peer,
		Name:       m.Name,
		Direction:  m.Direction,
		Status:     string(m.Status),
		Text:       m.Text,
	}
	if !m.Date.IsZero() {
		p.Date = m.Date.Format(time.RFC3339)
	}
	data, err := json.Marshal(p)
	if err != nil {
		h.logger.Error("events: encoding message", "error", err)
		return
	}
	h.Broadcast(Event{Type: TypeMessage, Timestamp: h.now(), Payload: data})
}

// Broadcast delivers ev to every subscriber without blocking.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.dropped++
		}
	}
}

// CloseAll closes every subscription.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}
