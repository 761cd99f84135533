package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in maps. Records are returned in insertion
// order.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts []*Contact
	messages []*Message
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SaveContact implements ContactStore.
func (s *MemoryStore) SaveContact(_ context.Context, c *Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	c.Updated = ts
	if c.OID == "" {
		c.OID = uuid.NewString()
		c.Created = ts
		cp := *c
		s.contacts = append(s.contacts, &cp)
		return nil
	}
	for i, existing := range s.contacts {
		if existing.OID == c.OID {
			cp := *c
			s.contacts[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

// LoadContacts implements ContactStore.
func (s *MemoryStore) LoadContacts(_ context.Context, cond Conditions) ([]Contact, error) {
	if err := cond.Check(ContactFields); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contact
	for _, c := range s.contacts {
		if matches(cond, func(f string) string { return contactField(c, f) }) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// DeleteContact implements ContactStore.
func (s *MemoryStore) DeleteContact(_ context.Context, oid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.contacts {
		if c.OID == oid {
			s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// SaveMessage implements MessageStore.
func (s *MemoryStore) SaveMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	m.Updated = ts
	if m.OID == "" {
		m.OID = uuid.NewString()
		m.Created = ts
		cp := *m
		s.messages = append(s.messages, &cp)
		return nil
	}
	for i, existing := range s.messages {
		if existing.OID == m.OID {
			cp := *m
			s.messages[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

// LoadMessages implements MessageStore.
func (s *MemoryStore) LoadMessages(_ context.Context, cond Conditions) ([]Message, error) {
	if err := cond.Check(MessageFields); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Message
	for _, m := range s.messages {
		if matches(cond, func(f string) string { return messageField(m, f) }) {
			out = append(out, *m)
		}
	}
	return out, nil
}

// DeleteMessage implements MessageStore.
func (s *MemoryStore) DeleteMessage(_ context.Context, oid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.OID == oid {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteMessages implements MessageStore.
func (s *MemoryStore) DeleteMessages(_ context.Context, cond Conditions) (int, error) {
	if err := cond.Check(MessageFields); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	removed := 0
	for _, m := range s.messages {
		if matches(cond, func(f string) string { return messageField(m, f) }) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	clear(s.messages[len(kept):])
	s.messages = kept
	return removed, nil
}

func matches(cond Conditions, get func(string) string) bool {
	for field, want := range cond {
		if get(field) != want {
			return false
		}
	}
	return true
}
