// Package telegram is the typed facade over the chat client process:
// each operation is one command whose response is decoded into records.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/flemzord/tgbridge/internal/protocol"
	"github.com/flemzord/tgbridge/internal/transport"
)

// Observer receives client level measurements on top of command outcomes.
type Observer interface {
	protocol.Observer
	ObserveUnparsed(command string, lines int)
}

// processInfo is implemented by transports backed by a real process.
type processInfo interface {
	PID() int
	Errors() []string
	ExitCode() (int, bool)
}

// Info is a point-in-time view of the client for status reporting.
type Info struct {
	State    transport.State `json:"state"`
	PID      int             `json:"pid,omitempty"`
	ExitCode *int            `json:"exit_code,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Contacts int             `json:"known_contacts"`
}

// Client runs operations against the chat client. It is safe for
// concurrent use; commands are executed one at a time.
type Client struct {
	t        transport.Transport
	exec     *protocol.Executor
	logger   *slog.Logger
	observer Observer
	peers    peerIndex

	mu        sync.Mutex
	handshook bool
	stopped   bool
}

// New returns a client over t. Nothing is spawned until Start.
func New(t transport.Transport, opts protocol.Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		t:      t,
		exec:   protocol.NewExecutor(t, opts, logger),
		logger: logger.With("component", "telegram"),
	}
}

// SetObserver registers o for command and parse measurements.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
	c.exec.SetObserver(o)
}

// Start spawns the process if needed and consumes its startup banner.
// A failed start is permanent.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	state, err := c.t.Start(ctx)
	if err != nil {
		return err
	}
	if state != transport.StateRunning {
		return fmt.Errorf("%w: transport is %s", ErrNotRunning, state)
	}
	if !c.handshook {
		c.handshook = true
		banner := c.exec.Handshake(ctx)
		c.logger.Info("client started", "banner_lines", len(banner))
	}
	return nil
}

// Stop shuts the process down. The client cannot be restarted.
func (c *Client) Stop() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.logger.Info("client stopping")
	return c.t.Stop()
}

// State returns the transport state.
func (c *Client) State() transport.State {
	return c.t.State()
}

// Running reports whether commands will reach the process.
func (c *Client) Running() bool {
	return c.t.State() == transport.StateRunning
}

// Info returns process details for status pages.
func (c *Client) Info() Info {
	info := Info{State: c.t.State(), Contacts: c.peers.len()}
	if p, ok := c.t.(processInfo); ok {
		info.PID = p.PID()
		info.Errors = p.Errors()
		if code, exited := p.ExitCode(); exited {
			info.ExitCode = &code
		}
	}
	return info
}

// Unparsed returns the lines of the last response no parse consumed.
func (c *Client) Unparsed() []string {
	return c.exec.Unparsed()
}

func (c *Client) ready() error {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return ErrStopped
	}
	if c.t.State() != transport.StateRunning {
		return ErrNotRunning
	}
	return nil
}

func (c *Client) run(ctx context.Context, name string, args ...string) (protocol.Result, error) {
	res, err := c.exec.Execute(ctx, name, args...)
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// leftovers reports response lines that no pattern matched.
func (c *Client) leftovers(res protocol.Result) {
	n := res.Buffer.Len()
	if n == 0 {
		return
	}
	c.logger.Debug("unparsed response lines", "command", res.Command, "lines", res.Buffer.Unparsed())
	if c.observer != nil {
		c.observer.ObserveUnparsed(res.Command, n)
	}
}

// SendMessage sends text to peer. Success means the command reached the
// process; the client reports no delivery status.
func (c *Client) SendMessage(ctx context.Context, peer, text string) error {
	if err := c.ready(); err != nil {
		return err
	}
	_, err := c.run(ctx, cmdMessage, peer, text)
	return err
}

// ContactList returns the contacts keyed by phone number. It returns an
// empty map when the process is not running.
func (c *Client) ContactList(ctx context.Context) (map[string]Contact, error) {
	res, err := c.run(ctx, cmdContactList)
	if err != nil {
		return map[string]Contact{}, err
	}
	parsed := protocol.Parse(res.Buffer, contactDescriptor)
	c.leftovers(res)
	if !res.Skipped {
		c.peers.replace(parsed.Items)
	}
	return parsed.Index, nil
}

// DialogList returns the dialogs selected by filter in output order.
func (c *Client) DialogList(ctx context.Context, filter DialogFilter) ([]DialogEntry, error) {
	res, err := c.run(ctx, cmdDialogList)
	if err != nil {
		return nil, err
	}
	parsed := protocol.Parse(res.Buffer, dialogDescriptor(filter))
	c.leftovers(res)
	return parsed.Items, nil
}

// AddContact adds a contact and returns the first contact line of the
// response, or nil when none was printed.
func (c *Client) AddContact(ctx context.Context, phone, firstName, lastName string) (*Contact, error) {
	return c.contactCommand(ctx, cmdAddContact, phone, firstName, lastName)
}

// RenameContact renames peer and returns the first contact line of the
// response, or nil when none was printed.
func (c *Client) RenameContact(ctx context.Context, peer, firstName, lastName string) (*Contact, error) {
	return c.contactCommand(ctx, cmdRenameContact, peer, firstName, lastName)
}

func (c *Client) contactCommand(ctx context.Context, name string, args ...string) (*Contact, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	res, err := c.run(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	parsed := protocol.Parse(res.Buffer, contactDescriptor)
	c.leftovers(res)
	if len(parsed.Items) == 0 {
		return nil, nil
	}
	contact := parsed.Items[0]
	return &contact, nil
}

// ContactInfo returns the details of peer, or ErrNotFound when the
// response carried no user lines.
func (c *Client) ContactInfo(ctx context.Context, peer string) (*ContactInfo, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	res, err := c.run(ctx, cmdUserInfo, peer)
	if err != nil {
		return nil, err
	}
	info, ok := parseContactInfo(res.Buffer)
	c.leftovers(res)
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, peer)
	}
	return info, nil
}

// ContactByPhone looks phone up in the live contact list.
func (c *Client) ContactByPhone(ctx context.Context, phone string) (*Contact, error) {
	contacts, err := c.ContactList(ctx)
	if err != nil {
		return nil, err
	}
	contact, ok := contacts[phone]
	if !ok {
		return nil, fmt.Errorf("%w: phone %s", ErrNotFound, phone)
	}
	return &contact, nil
}

// ContactByName resolves a display name to its peer and returns its
// details.
func (c *Client) ContactByName(ctx context.Context, name string) (*ContactInfo, error) {
	return c.ContactInfo(ctx, PeerName(name))
}

// FindPeer fuzzy-matches query against the contacts returned by the last
// ContactList call, best match first.
func (c *Client) FindPeer(query string) []Contact {
	return c.peers.find(query)
}

// History returns up to limit messages exchanged with peer, keyed by
// message id and in output order.
func (c *Client) History(ctx context.Context, peer string, limit int) (map[string]Message, []Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	res, err := c.run(ctx, cmdHistory, peer, strconv.Itoa(limit))
	if err != nil {
		return map[string]Message{}, nil, err
	}
	parsed := protocol.Parse(res.Buffer, historyDescriptor)
	c.leftovers(res)
	return parsed.Index, parsed.Items, nil
}

// MarkAsRead marks the dialog with peer as read.
func (c *Client) MarkAsRead(ctx context.Context, peer string) error {
	if err := c.ready(); err != nil {
		return err
	}
	_, err := c.run(ctx, cmdMarkRead, peer)
	return err
}
