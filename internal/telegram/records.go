package telegram

import (
	"strings"
	"time"

	"github.com/flemzord/tgbridge/internal/protocol"
)

// Optional holds a value that the client may not have reported.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a present Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Valid
}

// Direction tells who sent a message.
type Direction string

const (
	DirectionUnknown  Direction = ""
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Contact status values reported by the client.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Contact is one entry of the contact list.
type Contact struct {
	ID       string
	Name     string
	Peer     string
	Phone    string
	Status   string
	LastSeen Optional[time.Time]
	Raw      protocol.Fields
}

// Online reports whether the contact was online when listed.
func (c Contact) Online() bool { return c.Status == StatusOnline }

// DialogEntry is one line of the dialog list.
type DialogEntry struct {
	User     string
	Peer     string
	Messages int
	State    string
	Raw      protocol.Fields
}

// Unread reports whether the dialog has unread messages.
func (d DialogEntry) Unread() bool { return d.Messages > 0 }

// Message is one line of a conversation history.
type Message struct {
	ID        string
	Date      string
	Time      Optional[time.Time]
	Name      string
	Peer      string
	Direction Direction
	Text      string
	Raw       protocol.Fields
}

// ContactInfo is the detail view of one user.
type ContactInfo struct {
	Name     string
	RealName string
	Phone    string
	Peer     string
	Status   string
	LastSeen Optional[time.Time]
	Raw      []protocol.Fields
}

// PeerName converts a display name to the peer identifier the client
// expects: spaces become underscores.
func PeerName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

var stampLayouts = []struct {
	layout  string
	hasDate bool
	hasYear bool
}{
	{"2006/01/02 15:04:05", true, true},
	{"2006/01/02 15:04", true, true},
	{"2006-01-02 15:04:05", true, true},
	{"Jan 02 15:04", true, false},
	{"02 Jan 15:04", true, false},
	{"15:04:05", false, false},
	{"15:04", false, false},
}

// parseStamp reads the timestamps the client prints. Missing date or
// year parts are taken from now.
func parseStamp(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	loc := now.Location()
	for _, l := range stampLayouts {
		t, err := time.ParseInLocation(l.layout, s, loc)
		if err != nil {
			continue
		}
		switch {
		case !l.hasDate:
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		case !l.hasYear:
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		}
		return t, true
	}
	return time.Time{}, false
}
