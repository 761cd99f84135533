// Package store persists contacts and messages exchanged through the
// bridge.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when no record has the requested OID.
	ErrNotFound = errors.New("store: not found")

	// ErrUnknownField is returned for conditions on fields that cannot be
	// filtered on.
	ErrUnknownField = errors.New("store: unknown condition field")
)

// MessageStatus tracks delivery of outgoing messages.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusDone    MessageStatus = "done"
	StatusError   MessageStatus = "error"
)

// Message directions.
const (
	Incoming = "incoming"
	Outgoing = "outgoing"
)

// Contact is a stored contact. OID is assigned on first save.
type Contact struct {
	OID          string
	UID          int64
	Source       string
	Phone        string
	Name         string
	Peer         string
	Status       string
	LastSeen     time.Time
	Verification string
	Verified     bool
	Created      time.Time
	Updated      time.Time
}

// Message is a stored message. OID is assigned on first save.
type Message struct {
	OID        string        `json:"oid"`
	TelegramID string        `json:"telegram_id,omitempty"`
	Peer       string        `json:"peer"`
	Name       string        `json:"name,omitempty"`
	Direction  string        `json:"direction"`
	Text       string        `json:"text"`
	Status     MessageStatus `json:"status"`
	Date       time.Time     `json:"date,omitzero"`
	Sent       time.Time     `json:"sent,omitzero"`
	Created    time.Time     `json:"created"`
	Updated    time.Time     `json:"updated"`
}

// Conditions filter loads and deletes by field equality. All conditions
// must hold.
type Conditions map[string]string

// ContactFields are the contact fields Conditions may name.
var ContactFields = []string{"oid", "uid", "source", "phone", "peer", "status", "verified"}

// MessageFields are the message fields Conditions may name.
var MessageFields = []string{"oid", "telegram_id", "peer", "direction", "status"}

// Check returns ErrUnknownField when c names a field outside allowed.
func (c Conditions) Check(allowed []string) error {
	for field := range c {
		if !slices.Contains(allowed, field) {
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
	}
	return nil
}

// ContactStore persists contacts.
type ContactStore interface {
	// SaveContact inserts c when it has no OID, assigning one, and
	// updates it otherwise.
	SaveContact(ctx context.Context, c *Contact) error
	LoadContacts(ctx context.Context, cond Conditions) ([]Contact, error)
	DeleteContact(ctx context.Context, oid string) error
}

// MessageStore persists messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *Message) error
	LoadMessages(ctx context.Context, cond Conditions) ([]Message, error)
	DeleteMessage(ctx context.Context, oid string) error
	DeleteMessages(ctx context.Context, cond Conditions) (int, error)
}

// Store is the full persistence surface.
// Implementations must be safe for concurrent use.
type Store interface {
	ContactStore
	MessageStore
}

func contactField(c *Contact, field string) string {
	switch field {
	case "oid":
		return c.OID
	case "uid":
		return strconv.FormatInt(c.UID, 10)
	case "source":
		return c.Source
	case "phone":
		return c.Phone
	case "peer":
		return c.Peer
	case "status":
		return c.Status
	case "verified":
		return strconv.FormatBool(c.Verified)
	}
	return ""
}

func messageField(m *Message, field string) string {
	switch field {
	case "oid":
		return m.OID
	case "telegram_id":
		return m.TelegramID
	case "peer":
		return m.Peer
	case "direction":
		return m.Direction
	case "status":
		return string(m.Status)
	}
	return ""
}
