package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgbridge/internal/lock"
	"github.com/flemzord/tgbridge/internal/store"
	"github.com/flemzord/tgbridge/internal/telegram"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient is an in-memory stand-in for the chat client.
type fakeClient struct {
	mu       sync.Mutex
	contacts map[string]telegram.Contact
	dialogs  []telegram.DialogEntry
	history  map[string][]telegram.Message
	sendErr  error
	sent     []string
	read     []string
	added    []string
}

func (f *fakeClient) ContactList(context.Context) (map[string]telegram.Contact, error) {
	out := make(map[string]telegram.Contact, len(f.contacts))
	for k, v := range f.contacts {
		out[k] = v
	}
	return out, nil
}

func (f *fakeClient) DialogList(_ context.Context, filter telegram.DialogFilter) ([]telegram.DialogEntry, error) {
	var out []telegram.DialogEntry
	for _, d := range f.dialogs {
		if filter == telegram.DialogsUnread && !d.Unread() {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeClient) History(_ context.Context, peer string, _ int) (map[string]telegram.Message, []telegram.Message, error) {
	msgs := f.history[peer]
	idx := make(map[string]telegram.Message, len(msgs))
	for _, m := range msgs {
		idx[m.ID] = m
	}
	return idx, msgs, nil
}

func (f *fakeClient) MarkAsRead(_ context.Context, peer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, peer)
	return nil
}

func (f *fakeClient) SendMessage(_ context.Context, peer, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, peer+": "+text)
	return nil
}

func (f *fakeClient) AddContact(_ context.Context, phone, first, last string) (*telegram.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, phone+" "+first+" "+last)
	return &telegram.Contact{Phone: phone, Name: first + " " + last}, nil
}

type collector struct{ got []store.Message }

func (c *collector) Publish(m store.Message) { c.got = append(c.got, m) }

func newTestManager(client *fakeClient) (*Manager, *store.MemoryStore) {
	st := store.NewMemoryStore()
	m := New(client, st, lock.NewLocal(time.Second), Config{SiteName: "Example"}, discardLogger())
	return m, st
}

func TestManager_RefreshContacts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{contacts: map[string]telegram.Contact{
		"111": {Phone: "111", Name: "Jane Doe", Peer: "Jane_Doe", Status: "online"},
		"222": {Phone: "222", Name: "Bob", Peer: "Bob", Status: "offline",
			LastSeen: telegram.Some(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC))},
	}}
	m, st := newTestManager(client)
	ctx := context.Background()

	existing := &store.Contact{Phone: "111", Name: "Old Name", UID: 5}
	if err := st.SaveContact(ctx, existing); err != nil {
		t.Fatal(err)
	}

	added, updated, err := m.RefreshContacts(ctx)
	if err != nil {
		t.Fatalf("RefreshContacts: %v", err)
	}
	if added != 1 || updated != 1 {
		t.Errorf("added, updated = %d, %d; want 1, 1", added, updated)
	}

	jane, err := m.ContactByPhone(ctx, "111")
	if err != nil {
		t.Fatal(err)
	}
	if jane.OID != existing.OID || jane.Name != "Jane Doe" || jane.UID != 5 {
		t.Errorf("updated contact = %+v", jane)
	}
	bob, err := m.ContactByPhone(ctx, "222")
	if err != nil {
		t.Fatal(err)
	}
	if bob.LastSeen.Year() != 2020 || bob.Source != "telegram" {
		t.Errorf("added contact = %+v", bob)
	}
}

func TestManager_SendMessageRecordsOutcome(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, st := newTestManager(client)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	ok := &store.Message{Peer: "Jane_Doe", Text: "hello"}
	if err := m.SendMessage(ctx, ok); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if ok.Status != store.StatusDone || !ok.Sent.Equal(fixed) || ok.Direction != store.Outgoing {
		t.Errorf("sent message = %+v", ok)
	}

	client.sendErr = errors.New("pipe closed")
	bad := &store.Message{Peer: "Jane_Doe", Text: "again"}
	if err := m.SendMessage(ctx, bad); err == nil {
		t.Fatal("expected send error")
	}
	if bad.Status != store.StatusError || !bad.Sent.IsZero() {
		t.Errorf("failed message = %+v", bad)
	}

	all, _ := st.LoadMessages(ctx, store.Conditions{"direction": store.Outgoing})
	if len(all) != 2 {
		t.Errorf("stored %d outgoing messages, want 2", len(all))
	}

	if err := m.SendMessage(ctx, &store.Message{Text: "nowhere"}); err == nil {
		t.Error("expected error for message without peer")
	}
}

func TestManager_ReadNewMessages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		dialogs: []telegram.DialogEntry{
			{User: "Jane Doe", Peer: "Jane_Doe", Messages: 2, State: "unread"},
			{User: "Bob", Peer: "Bob", Messages: 0, State: "read"},
		},
		history: map[string][]telegram.Message{
			"Jane_Doe": {
				{ID: "1", Name: "Jane Doe", Peer: "Jane_Doe", Direction: telegram.DirectionIncoming, Text: "first"},
				{ID: "2", Name: "Jane Doe", Peer: "Jane_Doe", Direction: telegram.DirectionOutgoing, Text: "reply"},
				{ID: "3", Name: "Jane Doe", Peer: "Jane_Doe", Direction: telegram.DirectionIncoming, Text: "second"},
			},
		},
	}
	m, _ := newTestManager(client)
	pub := &collector{}
	m.SetPublisher(pub)
	ctx := context.Background()

	fresh, err := m.ReadNewMessages(ctx)
	if err != nil {
		t.Fatalf("ReadNewMessages: %v", err)
	}
	var texts []string
	for _, msg := range fresh {
		texts = append(texts, msg.Text)
	}
	if !slices.Equal(texts, []string{"first", "second"}) {
		t.Errorf("fresh = %v", texts)
	}
	if !slices.Equal(client.read, []string{"Jane_Doe"}) {
		t.Errorf("marked read = %v", client.read)
	}
	if len(pub.got) != 2 {
		t.Errorf("published %d, want 2", len(pub.got))
	}

	again, err := m.ReadNewMessages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second read stored duplicates: %v", again)
	}
}

func TestManager_UserContactVerification(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	m, _ := newTestManager(client)
	ctx := context.Background()

	contact, err := m.CreateUserContact(ctx, 12, "34999")
	if err != nil {
		t.Fatalf("CreateUserContact: %v", err)
	}
	if !slices.Equal(client.added, []string{"34999 Bridge User12"}) {
		t.Errorf("added = %v", client.added)
	}
	if contact.Peer != "Bridge_User12" || contact.UID != 12 || contact.Verified {
		t.Errorf("contact = %+v", contact)
	}
	if len(contact.Verification) != 6 {
		t.Errorf("verification code %q is not six digits", contact.Verification)
	}

	code := contact.Verification
	if err := m.SendVerification(ctx, contact, false); err != nil {
		t.Fatalf("SendVerification: %v", err)
	}
	want := "Bridge_User12: Your Example verification code is: " + code
	if len(client.sent) != 1 || client.sent[0] != want {
		t.Errorf("sent = %v, want [%s]", client.sent, want)
	}

	if ok, err := m.VerifyContact(ctx, contact, "000000"); err != nil || ok {
		t.Errorf("wrong code verified: %v, %v", ok, err)
	}
	if ok, err := m.VerifyContact(ctx, contact, code); err != nil || !ok {
		t.Fatalf("VerifyContact = %v, %v", ok, err)
	}
	stored, err := m.UserContact(ctx, 12)
	if err != nil || !stored.Verified {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	// Linking the same phone again reuses the contact.
	if _, err := m.CreateUserContact(ctx, 12, "34999"); err != nil {
		t.Fatal(err)
	}
	if len(client.added) != 1 {
		t.Errorf("AddContact called again: %v", client.added)
	}

	if err := m.RemoveUserContact(ctx, 12); err != nil {
		t.Fatalf("RemoveUserContact: %v", err)
	}
	if _, err := m.UserContact(ctx, 12); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("after remove err = %v", err)
	}
	if err := m.RemoveUserContact(ctx, 12); err != nil {
		t.Errorf("removing missing contact: %v", err)
	}
}

func TestVerificationCode(t *testing.T) {
	t.Parallel()

	for range 50 {
		code, err := verificationCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != 6 || code[0] == '0' {
			t.Fatalf("bad code %q", code)
		}
	}
}
