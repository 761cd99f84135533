package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgbridge/internal/protocol"
	"github.com/flemzord/tgbridge/internal/transport"
	"github.com/flemzord/tgbridge/internal/transport/transporttest"
)

const (
	janeOffline = "User #42: Jane Doe (Jane_Doe 34123456789) offline. last seen [2020/01/02 03:04:05]"
	bobOnline   = "User #7: Bob (Bob 34600000000) online"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() protocol.Options {
	return protocol.Options{Timeout: 500 * time.Millisecond, Settle: 10 * time.Millisecond}
}

// newTestClient returns a started client whose process answers with replies.
func newTestClient(t *testing.T, replies map[string][]string) (*Client, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.New(transporttest.Script(replies))
	fake.Banner = "Telegram-cli version 1.0.5\n> User Jane Doe: 0 read\n> "
	c := New(fake, testOptions(), discardLogger())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c, fake
}

type countingObserver struct {
	mu       sync.Mutex
	commands int
	unparsed map[string]int
}

func (o *countingObserver) ObserveCommand(string, time.Duration, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands++
}

func (o *countingObserver) ObserveUnparsed(command string, lines int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unparsed == nil {
		o.unparsed = map[string]int{}
	}
	o.unparsed[command] += lines
}

func TestClient_ContactListKeyedByPhone(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, map[string][]string{
		"contact_list": {janeOffline, bobOnline},
	})

	contacts, err := c.ContactList(context.Background())
	if err != nil {
		t.Fatalf("ContactList: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2: %v", len(contacts), contacts)
	}
	if contacts["34600000000"].Name != "Bob" || !contacts["34600000000"].Online() {
		t.Errorf("Bob = %+v", contacts["34600000000"])
	}
	if got := fake.Writes(); !slices.Equal(got, []string{"contact_list"}) {
		t.Errorf("writes = %v", got)
	}
}

func TestClient_ContactMappingRoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string][]string{"contact_list": {janeOffline}})

	contacts, err := c.ContactList(context.Background())
	if err != nil {
		t.Fatalf("ContactList: %v", err)
	}
	jane, ok := contacts["34123456789"]
	if !ok {
		t.Fatalf("missing contact, got %v", contacts)
	}
	want := map[string]string{
		"string": janeOffline,
		"id":     "42",
		"name":   "Jane Doe",
		"peer":   "Jane_Doe",
		"phone":  "34123456789",
		"status": "offline",
		"date":   "2020/01/02",
		"hour":   "03:04:05",
	}
	for k, v := range want {
		if jane.Raw[k] != v {
			t.Errorf("Raw[%q] = %q, want %q", k, jane.Raw[k], v)
		}
	}
	seen, ok := jane.LastSeen.Get()
	if !ok || seen.Year() != 2020 || seen.Month() != time.January || seen.Day() != 2 || seen.Hour() != 3 {
		t.Errorf("LastSeen = %v, %v", seen, ok)
	}
	if jane.Online() {
		t.Error("offline contact reported online")
	}
}

func TestClient_ContactListIndexCollision(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string][]string{"contact_list": {
		"User #1: First Name (First 111) online",
		"User #2: Second Name (Second 111) online",
	}})

	contacts, err := c.ContactList(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 || contacts["111"].ID != "2" {
		t.Errorf("contacts = %v, want the later record", contacts)
	}
}

func TestClient_StderrAtStartupFailsWithoutWriting(t *testing.T) {
	t.Parallel()

	fake := transporttest.New(transporttest.Script(nil))
	fake.StartupStderr = []string{"FATAL: key file missing"}
	c := New(fake, testOptions(), discardLogger())

	if err := c.Start(context.Background()); !errors.Is(err, transport.ErrStartup) {
		t.Fatalf("Start err = %v, want ErrStartup", err)
	}
	if c.State() != transport.StateFailed {
		t.Errorf("state = %v, want failed", c.State())
	}

	contacts, err := c.ContactList(context.Background())
	if err != nil || len(contacts) != 0 {
		t.Errorf("ContactList = %v, %v; want empty", contacts, err)
	}
	if err := c.SendMessage(context.Background(), "Jane_Doe", "hi"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("SendMessage err = %v, want ErrNotRunning", err)
	}
	if len(fake.Writes()) != 0 {
		t.Errorf("writes = %v, want none", fake.Writes())
	}

	// A failed client does not respawn.
	_ = c.Start(context.Background())
	if fake.Starts() != 1 {
		t.Errorf("starts = %d, want 1", fake.Starts())
	}
}

func TestClient_HistoryDirections(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, map[string][]string{"history Jane_Doe 40": {
		"101 [Mar 17 19:32]  Jane Doe ««« hello there",
		"102 [Mar 17 19:33]  Jane Doe »»» hi back",
		"103 [19:34]  Jane Doe <<< plain arrows",
		"104 [19:35]  Jane Doe >>> out again",
	}})

	byID, ordered, err := c.History(context.Background(), "Jane_Doe", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got := fake.Writes(); got[len(got)-1] != "history Jane_Doe 40" {
		t.Errorf("last write = %q", got[len(got)-1])
	}
	if len(ordered) != 4 || len(byID) != 4 {
		t.Fatalf("got %d/%d messages", len(ordered), len(byID))
	}

	first := byID["101"]
	if first.Direction != DirectionIncoming || first.Text != "hello there" || first.Peer != "Jane_Doe" {
		t.Errorf("message 101 = %+v", first)
	}
	wantDirs := []Direction{DirectionIncoming, DirectionOutgoing, DirectionIncoming, DirectionOutgoing}
	for i, m := range ordered {
		if m.Direction != wantDirs[i] {
			t.Errorf("message %s direction = %q, want %q", m.ID, m.Direction, wantDirs[i])
		}
	}
	if _, ok := first.Time.Get(); !ok {
		t.Error("timestamp not parsed")
	}
}

func TestClient_DialogListFilters(t *testing.T) {
	t.Parallel()

	lines := []string{"User Jane Doe: 2 unread", "User Bob: 0 read", "User Ann: 1 unread"}
	tests := []struct {
		filter DialogFilter
		want   []string
	}{
		{DialogsAll, []string{"Jane_Doe", "Bob", "Ann"}},
		{DialogsRead, []string{"Bob"}},
		{DialogsUnread, []string{"Jane_Doe", "Ann"}},
	}
	for _, tt := range tests {
		t.Run(tt.filter.String(), func(t *testing.T) {
			t.Parallel()
			c, _ := newTestClient(t, map[string][]string{"dialog_list": lines})

			entries, err := c.DialogList(context.Background(), tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var peers []string
			for _, e := range entries {
				peers = append(peers, e.Peer)
			}
			if !slices.Equal(peers, tt.want) {
				t.Errorf("peers = %v, want %v", peers, tt.want)
			}
		})
	}
}

func TestClient_AddContactReturnsFirstEntry(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, map[string][]string{
		"add_contact 34111 Drupal User1": {"User #9: Drupal User1 (Drupal_User1 34111) online", bobOnline},
	})

	contact, err := c.AddContact(context.Background(), "34111", "Drupal", "User1")
	if err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if contact == nil || contact.Peer != "Drupal_User1" {
		t.Errorf("contact = %+v", contact)
	}
	if !slices.Contains(fake.Writes(), "add_contact 34111 Drupal User1") {
		t.Errorf("writes = %v", fake.Writes())
	}

	none, err := c.RenameContact(context.Background(), "Nobody", "A", "B")
	if err != nil || none != nil {
		t.Errorf("RenameContact without output = %+v, %v", none, err)
	}
}

func TestClient_ContactInfoTwoStages(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string][]string{"user_info Jose_Reyero": {
		"User Jose Reyero:",
		"real name: Jose Reyero",
		"phone: 34626472653",
		"offline (was online [2014/03/17 19:32:33])",
	}})

	info, err := c.ContactByName(context.Background(), "Jose Reyero")
	if err != nil {
		t.Fatalf("ContactByName: %v", err)
	}
	if info.Name != "Jose Reyero" || info.RealName != "Jose Reyero" || info.Phone != "34626472653" {
		t.Errorf("info = %+v", info)
	}
	if info.Status != StatusOffline {
		t.Errorf("status = %q", info.Status)
	}
	if seen, ok := info.LastSeen.Get(); !ok || seen.Year() != 2014 {
		t.Errorf("LastSeen = %v, %v", seen, ok)
	}

	if _, err := c.ContactInfo(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}
}

func TestClient_ContactByPhone(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string][]string{"contact_list": {janeOffline}})

	jane, err := c.ContactByPhone(context.Background(), "34123456789")
	if err != nil || jane.Peer != "Jane_Doe" {
		t.Fatalf("ContactByPhone = %+v, %v", jane, err)
	}
	if _, err := c.ContactByPhone(context.Background(), "0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestClient_FindPeer(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string][]string{"contact_list": {janeOffline, bobOnline}})
	if got := c.FindPeer("jane"); len(got) != 0 {
		t.Errorf("FindPeer before ContactList = %v", got)
	}
	if _, err := c.ContactList(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := c.FindPeer("JDoe")
	if len(got) == 0 || got[0].Peer != "Jane_Doe" {
		t.Errorf("FindPeer(JDoe) = %v", got)
	}
}

func TestClient_SendAndMarkRead(t *testing.T) {
	t.Parallel()

	c, fake := newTestClient(t, nil)

	if err := c.SendMessage(context.Background(), "Jane_Doe", "line one\nline two"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := c.MarkAsRead(context.Background(), "Jane_Doe"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	want := []string{"msg Jane_Doe line one line two", "mark_read Jane_Doe"}
	if got := fake.Writes(); !slices.Equal(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}
}

func TestClient_StopIsTerminal(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, nil)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := c.SendMessage(context.Background(), "x", "y"); !errors.Is(err, ErrStopped) {
		t.Errorf("SendMessage after stop = %v, want ErrStopped", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after stop = %v, want ErrStopped", err)
	}
}

func TestClient_ReportsUnparsedLines(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, map[string][]string{"contact_list": {janeOffline, "garbage line"}})
	obs := &countingObserver{}
	c.SetObserver(obs)

	if _, err := c.ContactList(context.Background()); err != nil {
		t.Fatal(err)
	}
	if obs.unparsed["contact_list"] != 1 {
		t.Errorf("unparsed = %v, want 1 for contact_list", obs.unparsed)
	}
	if obs.commands != 1 {
		t.Errorf("commands = %d, want 1", obs.commands)
	}
	if got := c.Unparsed(); !slices.Equal(got, []string{"garbage line"}) {
		t.Errorf("Unparsed() = %v", got)
	}
}

func TestPeerName(t *testing.T) {
	t.Parallel()

	if got := PeerName(" Jane  Doe "); got != "Jane__Doe" {
		t.Errorf("PeerName = %q", got)
	}
}
