// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flemzord/tgbridge/internal/transport"
)

// Fake is a scripted transport.Transport. Every line written is passed to
// Respond and the returned text is queued as process output.
// All methods are safe for concurrent use.
type Fake struct {
	// Banner is queued on a successful Start.
	Banner string
	// Respond produces the output for one written line. Nil means silence.
	Respond func(line string) string
	// Echo queues each written line before its response.
	Echo bool
	// StartErr makes Start fail with transport.ErrStartup.
	StartErr error
	// StartupStderr lines fail Start the way real stderr output would.
	StartupStderr []string
	// WriteErr makes the next Write fail and the fake enter StateFailed.
	WriteErr error

	mu     sync.Mutex
	state  transport.State
	out    []byte
	errs   []string
	writes []string
	starts int
	stops  int
	signal chan struct{}
}

var _ transport.Transport = (*Fake)(nil)

// New returns a Fake answering with respond.
func New(respond func(line string) string) *Fake {
	return &Fake{Respond: respond}
}

// Prompted joins lines and appends the client prompt.
func Prompted(lines ...string) string {
	if len(lines) == 0 {
		return "> "
	}
	return strings.Join(lines, "\n") + "\n> "
}

// Script answers commands by exact line match with Prompted output.
// Unknown commands get a bare prompt.
func Script(replies map[string][]string) func(string) string {
	return func(line string) string {
		return Prompted(replies[line]...)
	}
}

// Start implements transport.Transport.
func (f *Fake) Start(_ context.Context) (transport.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != transport.StateNotStarted {
		return f.state, nil
	}
	f.starts++
	if f.StartErr != nil {
		f.state = transport.StateFailed
		return f.state, fmt.Errorf("%w: %w", transport.ErrStartup, f.StartErr)
	}
	if len(f.StartupStderr) > 0 {
		f.errs = append(f.errs, f.StartupStderr...)
		f.state = transport.StateFailed
		return f.state, transport.ErrStartup
	}
	f.state = transport.StateRunning
	f.enqueueLocked(f.Banner)
	return f.state, nil
}

// Write implements transport.Transport.
func (f *Fake) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != transport.StateRunning {
		return transport.ErrNotRunning
	}
	if f.WriteErr != nil {
		f.state = transport.StateFailed
		return fmt.Errorf("%w: %w", transport.ErrTransportIO, f.WriteErr)
	}
	for _, line := range strings.SplitAfter(string(p), "\n") {
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			continue
		}
		f.writes = append(f.writes, line)
		if f.Echo {
			f.enqueueLocked(line + "\n")
		}
		if f.Respond != nil {
			f.enqueueLocked(f.Respond(line))
		}
	}
	return nil
}

// Emit queues unsolicited output.
func (f *Fake) Emit(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueueLocked(s)
}

// EmitError queues a stderr line.
func (f *Fake) EmitError(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, line)
}

func (f *Fake) enqueueLocked(s string) {
	if s == "" {
		return
	}
	f.out = append(f.out, s...)
	select {
	case f.signalLocked() <- struct{}{}:
	default:
	}
}

func (f *Fake) signalLocked() chan struct{} {
	if f.signal == nil {
		f.signal = make(chan struct{}, 1)
	}
	return f.signal
}

// ReadAvailable implements transport.Transport.
func (f *Fake) ReadAvailable() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.out
	f.out = nil
	return out
}

// Wait implements transport.Transport.
func (f *Fake) Wait(ctx context.Context) bool {
	for {
		f.mu.Lock()
		pending := len(f.out) > 0
		closed := f.state.Terminal()
		signal := f.signalLocked()
		f.mu.Unlock()

		if pending {
			return true
		}
		if closed {
			return false
		}
		select {
		case <-signal:
		case <-ctx.Done():
			return false
		}
	}
}

// ReadErrors implements transport.Transport.
func (f *Fake) ReadErrors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := f.errs
	f.errs = nil
	return errs
}

// Stop implements transport.Transport.
func (f *Fake) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.state != transport.StateFailed {
		f.state = transport.StateStopped
	}
	select {
	case f.signalLocked() <- struct{}{}:
	default:
	}
	return nil
}

// State implements transport.Transport.
func (f *Fake) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Writes returns every line written so far.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Starts returns how many spawn attempts were made.
func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// Stops returns how many times Stop was called.
func (f *Fake) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
