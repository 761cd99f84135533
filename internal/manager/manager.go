// Package manager keeps the stored contacts and messages in step with the
// live client.
package manager

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/flemzord/tgbridge/internal/lock"
	"github.com/flemzord/tgbridge/internal/store"
	"github.com/flemzord/tgbridge/internal/telegram"
)

// Client is the part of telegram.Client the manager drives.
type Client interface {
	ContactList(ctx context.Context) (map[string]telegram.Contact, error)
	DialogList(ctx context.Context, filter telegram.DialogFilter) ([]telegram.DialogEntry, error)
	History(ctx context.Context, peer string, limit int) (map[string]telegram.Message, []telegram.Message, error)
	MarkAsRead(ctx context.Context, peer string) error
	SendMessage(ctx context.Context, peer, text string) error
	AddContact(ctx context.Context, phone, firstName, lastName string) (*telegram.Contact, error)
}

// Publisher is notified of every message the manager stores.
type Publisher interface {
	Publish(m store.Message)
}

var _ Client = (*telegram.Client)(nil)

// Config holds manager settings.
type Config struct {
	// SiteName appears in verification messages.
	SiteName string
	// ContactFirstName is the first name given to contacts created for
	// users; the last name is "User" followed by the user id.
	ContactFirstName string
}

func (c *Config) defaults() {
	if c.SiteName == "" {
		c.SiteName = "tgbridge"
	}
	if c.ContactFirstName == "" {
		c.ContactFirstName = "Bridge"
	}
}

// Manager combines the client and the store.
type Manager struct {
	client    Client
	store     store.Store
	lock      lock.ExclusiveAccess
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Manager. A nil lock means no serialization beyond the
// client's own.
func New(client Client, st store.Store, l lock.ExclusiveAccess, cfg Config, logger *slog.Logger) *Manager {
	if l == nil {
		l = lock.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.defaults()
	return &Manager{
		client: client,
		store:  st,
		lock:   l,
		cfg:    cfg,
		logger: logger.With("component", "manager"),
		now:    time.Now,
	}
}

// SetPublisher registers p to receive stored messages.
func (m *Manager) SetPublisher(p Publisher) {
	m.publisher = p
}

// RefreshContacts merges the live contact list into the store: stored
// contacts are updated by phone and unknown ones are inserted. Stored
// contacts missing from the live list are left alone.
func (m *Manager) RefreshContacts(ctx context.Context) (added, updated int, err error) {
	err = lock.With(ctx, m.lock, func(ctx context.Context) error {
		live, err := m.client.ContactList(ctx)
		if err != nil {
			return fmt.Errorf("listing contacts: %w", err)
		}
		stored, err := m.store.LoadContacts(ctx, nil)
		if err != nil {
			return fmt.Errorf("loading contacts: %w", err)
		}

		for i := range stored {
			c := &stored[i]
			l, ok := live[c.Phone]
			if !ok {
				continue
			}
			applyLive(c, l)
			if err := m.store.SaveContact(ctx, c); err != nil {
				return fmt.Errorf("updating contact %s: %w", c.OID, err)
			}
			delete(live, c.Phone)
			updated++
		}

		for _, l := range live {
			c := &store.Contact{Source: "telegram"}
			applyLive(c, l)
			if err := m.store.SaveContact(ctx, c); err != nil {
				return fmt.Errorf("adding contact %s: %w", l.Phone, err)
			}
			added++
		}
		return nil
	})
	if err == nil {
		m.logger.Info("contacts refreshed", "added", added, "updated", updated)
	}
	return added, updated, err
}

func applyLive(c *store.Contact, l telegram.Contact) {
	c.Phone = l.Phone
	c.Name = l.Name
	c.Peer = l.Peer
	c.Status = l.Status
	if seen, ok := l.LastSeen.Get(); ok {
		c.LastSeen = seen
	}
}

// SendMessage sends msg to its peer and stores it as outgoing with status
// done, or error when the client failed.
func (m *Manager) SendMessage(ctx context.Context, msg *store.Message) error {
	if msg.Peer == "" {
		return errors.New("manager: message has no peer")
	}
	msg.Direction = store.Outgoing

	sendErr := lock.With(ctx, m.lock, func(ctx context.Context) error {
		return m.client.SendMessage(ctx, msg.Peer, msg.Text)
	})
	if sendErr != nil {
		msg.Status = store.StatusError
		m.logger.Error("send failed", "peer", msg.Peer, "error", sendErr)
	} else {
		msg.Status = store.StatusDone
		msg.Sent = m.now()
	}

	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return errors.Join(sendErr, fmt.Errorf("storing message: %w", err))
	}
	m.publish(*msg)
	return sendErr
}

// ReadNewMessages fetches the history of every unread dialog, stores the
// incoming messages not seen before and marks the dialogs read.
func (m *Manager) ReadNewMessages(ctx context.Context) ([]store.Message, error) {
	var fresh []store.Message
	err := lock.With(ctx, m.lock, func(ctx context.Context) error {
		dialogs, err := m.client.DialogList(ctx, telegram.DialogsUnread)
		if err != nil {
			return fmt.Errorf("listing dialogs: %w", err)
		}
		for _, d := range dialogs {
			msgs, err := m.readDialog(ctx, d)
			if err != nil {
				return err
			}
			fresh = append(fresh, msgs...)
		}
		return nil
	})
	if len(fresh) > 0 {
		m.logger.Info("new messages stored", "count", len(fresh))
	}
	return fresh, err
}

func (m *Manager) readDialog(ctx context.Context, d telegram.DialogEntry) ([]store.Message, error) {
	_, history, err := m.client.History(ctx, d.Peer, d.Messages)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", d.Peer, err)
	}

	var fresh []store.Message
	for _, h := range history {
		if h.Direction != telegram.DirectionIncoming {
			continue
		}
		seen, err := m.store.LoadMessages(ctx, store.Conditions{"peer": d.Peer, "telegram_id": h.ID})
		if err != nil {
			return nil, fmt.Errorf("checking message %s: %w", h.ID, err)
		}
		if len(seen) > 0 {
			continue
		}
		msg := store.Message{
			TelegramID: h.ID,
			Peer:       d.Peer,
			Name:       h.Name,
			Direction:  store.Incoming,
			Text:       h.Text,
			Status:     store.StatusDone,
		}
		if t, ok := h.Time.Get(); ok {
			msg.Date = t
		}
		if err := m.store.SaveMessage(ctx, &msg); err != nil {
			return nil, fmt.Errorf("storing message %s: %w", h.ID, err)
		}
		m.publish(msg)
		fresh = append(fresh, msg)
	}

	if err := m.client.MarkAsRead(ctx, d.Peer); err != nil {
		return fresh, fmt.Errorf("marking %s read: %w", d.Peer, err)
	}
	return fresh, nil
}

func (m *Manager) publish(msg store.Message) {
	if m.publisher != nil {
		m.publisher.Publish(msg)
	}
}

// UserContact returns the contact linked to uid, or store.ErrNotFound.
func (m *Manager) UserContact(ctx context.Context, uid int64) (*store.Contact, error) {
	return m.first(ctx, store.Conditions{"uid": strconv.FormatInt(uid, 10)})
}

// ContactByPhone returns the stored contact for phone, or store.ErrNotFound.
func (m *Manager) ContactByPhone(ctx context.Context, phone string) (*store.Contact, error) {
	return m.first(ctx, store.Conditions{"phone": phone})
}

func (m *Manager) first(ctx context.Context, cond store.Conditions) (*store.Contact, error) {
	found, err := m.store.LoadContacts(ctx, cond)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return &found[0], nil
}

// CreateUserContact links phone to uid. When the phone is unknown a
// contact is added to the client first. The contact is left unverified
// with a fresh verification code.
func (m *Manager) CreateUserContact(ctx context.Context, uid int64, phone string) (*store.Contact, error) {
	contact, err := m.ContactByPhone(ctx, phone)
	switch {
	case errors.Is(err, store.ErrNotFound):
		first, last := m.cfg.ContactFirstName, "User"+strconv.FormatInt(uid, 10)
		contact = &store.Contact{
			Source: "bridge",
			Phone:  phone,
			Name:   first + " " + last,
			Peer:   telegram.PeerName(first + " " + last),
		}
		err = lock.With(ctx, m.lock, func(ctx context.Context) error {
			_, err := m.client.AddContact(ctx, phone, first, last)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("adding contact: %w", err)
		}
	case err != nil:
		return nil, err
	}

	contact.UID = uid
	contact.Verified = false
	if contact.Verification, err = verificationCode(); err != nil {
		return nil, err
	}
	if err := m.store.SaveContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("saving contact: %w", err)
	}
	return contact, nil
}

// RemoveUserContact deletes the contact linked to uid, if any. The entry
// in the client's own contact list is kept.
func (m *Manager) RemoveUserContact(ctx context.Context, uid int64) error {
	contact, err := m.UserContact(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return m.store.DeleteContact(ctx, contact.OID)
}

// SendVerification messages the contact its verification code, creating
// a new code first when recreate is set or none exists.
func (m *Manager) SendVerification(ctx context.Context, contact *store.Contact, recreate bool) error {
	if recreate || contact.Verification == "" {
		code, err := verificationCode()
		if err != nil {
			return err
		}
		contact.Verification = code
		if err := m.store.SaveContact(ctx, contact); err != nil {
			return fmt.Errorf("saving contact: %w", err)
		}
	}
	text := fmt.Sprintf("Your %s verification code is: %s", m.cfg.SiteName, contact.Verification)
	return m.SendMessage(ctx, &store.Message{Peer: contact.Peer, Name: contact.Name, Text: text})
}

// VerifyContact marks the contact verified when code matches.
func (m *Manager) VerifyContact(ctx context.Context, contact *store.Contact, code string) (bool, error) {
	if contact.Verification == "" || contact.Verification != code {
		return false, nil
	}
	contact.Verified = true
	if err := m.store.SaveContact(ctx, contact); err != nil {
		return false, fmt.Errorf("saving contact: %w", err)
	}
	return true, nil
}

// verificationCode returns a random six digit code.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
