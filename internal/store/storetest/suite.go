// Package storetest holds behavior tests shared by store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/tgbridge/internal/store"
)

// Run exercises s against the store.Store contract. newStore must return
// an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("ContactInsertAssignsOID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := &store.Contact{Phone: "34111", Name: "Jane Doe", Peer: "Jane_Doe", Status: "online"}
		if err := s.SaveContact(ctx, c); err != nil {
			t.Fatalf("SaveContact: %v", err)
		}
		if c.OID == "" {
			t.Fatal("OID not assigned")
		}
		if c.Created.IsZero() || c.Updated.IsZero() {
			t.Error("timestamps not set")
		}

		got, err := s.LoadContacts(ctx, store.Conditions{"phone": "34111"})
		if err != nil {
			t.Fatalf("LoadContacts: %v", err)
		}
		if len(got) != 1 || got[0].OID != c.OID || got[0].Peer != "Jane_Doe" {
			t.Errorf("loaded %+v", got)
		}
	})

	t.Run("ContactUpdateKeepsOID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := &store.Contact{Phone: "34222", Name: "Bob"}
		if err := s.SaveContact(ctx, c); err != nil {
			t.Fatal(err)
		}
		oid := c.OID
		c.Name = "Robert"
		c.Verified = true
		c.LastSeen = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
		if err := s.SaveContact(ctx, c); err != nil {
			t.Fatalf("update: %v", err)
		}
		if c.OID != oid {
			t.Errorf("OID changed on update")
		}

		all, err := s.LoadContacts(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 1 || all[0].Name != "Robert" || !all[0].Verified {
			t.Errorf("after update: %+v", all)
		}
		if !all[0].LastSeen.Equal(c.LastSeen) {
			t.Errorf("LastSeen = %v, want %v", all[0].LastSeen, c.LastSeen)
		}

		verified, err := s.LoadContacts(ctx, store.Conditions{"verified": "true"})
		if err != nil || len(verified) != 1 {
			t.Errorf("verified filter = %v, %v", verified, err)
		}
	})

	t.Run("ContactUpdateMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveContact(context.Background(), &store.Contact{OID: "missing"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("ContactDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := &store.Contact{Phone: "1", UID: 7}
		if err := s.SaveContact(ctx, c); err != nil {
			t.Fatal(err)
		}
		byUID, err := s.LoadContacts(ctx, store.Conditions{"uid": "7"})
		if err != nil || len(byUID) != 1 {
			t.Fatalf("uid filter = %v, %v", byUID, err)
		}
		if err := s.DeleteContact(ctx, c.OID); err != nil {
			t.Fatalf("DeleteContact: %v", err)
		}
		if err := s.DeleteContact(ctx, c.OID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("second delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("UnknownConditionField", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadContacts(context.Background(), store.Conditions{"name; DROP TABLE": "x"})
		if !errors.Is(err, store.ErrUnknownField) {
			t.Errorf("err = %v, want ErrUnknownField", err)
		}
		_, err = s.LoadMessages(context.Background(), store.Conditions{"text": "x"})
		if !errors.Is(err, store.ErrUnknownField) {
			t.Errorf("err = %v, want ErrUnknownField", err)
		}
	})

	t.Run("Messages", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		in := &store.Message{TelegramID: "101", Peer: "Jane_Doe", Direction: store.Incoming, Text: "hi", Status: store.StatusDone}
		out := &store.Message{Peer: "Jane_Doe", Direction: store.Outgoing, Text: "hello", Status: store.StatusPending}
		for _, m := range []*store.Message{in, out} {
			if err := s.SaveMessage(ctx, m); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}
		}
		if in.OID == "" || in.OID == out.OID {
			t.Fatalf("OIDs = %q, %q", in.OID, out.OID)
		}

		out.Status = store.StatusDone
		out.Sent = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
		if err := s.SaveMessage(ctx, out); err != nil {
			t.Fatalf("update: %v", err)
		}

		incoming, err := s.LoadMessages(ctx, store.Conditions{"direction": store.Incoming})
		if err != nil || len(incoming) != 1 || incoming[0].Text != "hi" {
			t.Errorf("incoming = %+v, %v", incoming, err)
		}
		done, err := s.LoadMessages(ctx, store.Conditions{"peer": "Jane_Doe", "status": string(store.StatusDone)})
		if err != nil || len(done) != 2 {
			t.Errorf("done = %+v, %v", done, err)
		}
		for _, m := range done {
			if m.OID == out.OID && !m.Sent.Equal(out.Sent) {
				t.Errorf("Sent = %v, want %v", m.Sent, out.Sent)
			}
		}

		if err := s.DeleteMessage(ctx, in.OID); err != nil {
			t.Fatalf("DeleteMessage: %v", err)
		}
		n, err := s.DeleteMessages(ctx, store.Conditions{"peer": "Jane_Doe"})
		if err != nil || n != 1 {
			t.Errorf("DeleteMessages = %d, %v; want 1", n, err)
		}
		left, _ := s.LoadMessages(ctx, nil)
		if len(left) != 0 {
			t.Errorf("left = %+v", left)
		}
	})
}
