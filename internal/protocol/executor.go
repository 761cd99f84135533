package protocol

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flemzord/tgbridge/internal/transport"
)

const (
	DefaultPrompt  = ">"
	DefaultTimeout = 10 * time.Second
	DefaultSettle  = 100 * time.Millisecond
)

// Options tune an Executor.
type Options struct {
	// Prompt is the token that ends a response.
	Prompt string
	// Timeout bounds how long a response is awaited.
	Timeout time.Duration
	// Settle is the pause after writing a command, and the quiet period
	// that ends a multi-chunk response.
	Settle time.Duration
	// CommandsPerSecond paces commands when positive.
	CommandsPerSecond float64
}

func (o Options) withDefaults() Options {
	if o.Prompt == "" {
		o.Prompt = DefaultPrompt
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Settle <= 0 {
		o.Settle = DefaultSettle
	}
	return o
}

// Observer receives command outcomes.
type Observer interface {
	ObserveCommand(name string, elapsed time.Duration, timedOut bool, err error)
}

// Result is the response to one command.
type Result struct {
	Command string
	Lines   []string
	// TimedOut is set when the prompt never came back. Lines then hold
	// whatever arrived and should be treated as provisional.
	TimedOut bool
	// Skipped is set when the transport was not running and nothing was
	// written.
	Skipped bool
	// Buffer holds Lines for parsing. Parses consume from it.
	Buffer *Buffer
}

// Executor runs one command at a time over a transport and collects the
// response lines up to the prompt.
type Executor struct {
	t        transport.Transport
	reader   *LineReader
	opts     Options
	logger   *slog.Logger
	limiter  *rate.Limiter
	observer Observer

	mu   sync.Mutex
	last *Buffer
}

// NewExecutor returns an Executor over t.
func NewExecutor(t transport.Transport, opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	e := &Executor{
		t:      t,
		reader: NewLineReader(t),
		opts:   opts,
		logger: logger.With("component", "executor"),
		last:   NewBuffer(),
	}
	if opts.CommandsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.CommandsPerSecond), 1)
	}
	return e
}

// SetObserver registers o to receive command outcomes.
func (e *Executor) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = o
}

// Options returns the effective options.
func (e *Executor) Options() Options {
	return e.opts
}

// BuildCommand joins name and args with single spaces. Newlines inside
// args become spaces; nothing else is escaped.
func BuildCommand(name string, args ...string) string {
	if len(args) == 0 {
		return strings.TrimSpace(name)
	}
	joined := strings.Join(args, " ")
	joined = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(joined)
	return name + " " + strings.TrimSpace(joined)
}

// Handshake consumes the startup banner: the license text and the initial
// dialog list, each terminated by a prompt.
func (e *Executor) Handshake(ctx context.Context) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	deadline := time.Now().Add(e.opts.Timeout)
	var banner []string
	for range 2 {
		lines, ok := e.reader.ReadUntil(ctx, e.opts.Prompt, deadline)
		banner = append(banner, lines...)
		if !ok {
			break
		}
	}
	e.logger.Debug("startup banner", "lines", len(banner))
	return banner
}

// Execute writes a command and returns its response. Concurrent calls are
// serialized and each one drains its own response before the next is
// written. When the transport is not running Execute writes nothing and
// returns an empty, skipped Result.
func (e *Executor) Execute(ctx context.Context, name string, args ...string) (Result, error) {
	line := BuildCommand(name, args...)
	res := Result{Command: line, Buffer: NewBuffer()}

	if e.t.State() != transport.StateRunning {
		e.logger.Debug("transport not running, skipping command", "command", name, "state", e.t.State())
		res.Skipped = true
		return res, nil
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return res, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	err := e.exchange(ctx, &res)
	e.last = res.Buffer
	if e.observer != nil {
		e.observer.ObserveCommand(name, time.Since(started), res.TimedOut, err)
	}
	return res, err
}

func (e *Executor) exchange(ctx context.Context, res *Result) error {
	if stale := e.reader.Discard(); len(stale) > 0 {
		e.logger.Debug("flushed stale output", "bytes", len(stale))
	}

	e.logger.Debug("execute", "command", res.Command)
	if err := e.t.Write([]byte(res.Command + "\n")); err != nil {
		return err
	}

	if err := sleepCtx(ctx, e.opts.Settle); err != nil {
		return err
	}

	deadline := time.Now().Add(e.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	lines, ok := e.reader.ReadUntil(ctx, e.opts.Prompt, deadline)
	res.TimedOut = !ok
	if !ok {
		e.logger.Info("response timed out", "command", res.Command, "lines", len(lines))
	}

	for i, l := range lines {
		if l == res.Command {
			lines = append(lines[:i], lines[i+1:]...)
			break
		}
	}

	// Some responses arrive in several chunks after the prompt.
	for time.Now().Before(deadline) && e.waitQuiet(ctx) {
		lines = append(lines, e.reader.Drain(e.opts.Prompt)...)
	}
	lines = append(lines, e.reader.Flush(e.opts.Prompt)...)

	res.Lines = lines
	res.Buffer.Append(lines...)
	e.logger.Debug("response", "command", res.Command, "lines", len(lines), "timed_out", res.TimedOut)
	return ctx.Err()
}

// waitQuiet reports whether more output arrived within one settle period.
func (e *Executor) waitQuiet(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Settle)
	defer cancel()
	return e.t.Wait(ctx)
}

// Unparsed returns the lines of the most recent response that no parse
// consumed.
func (e *Executor) Unparsed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.Unparsed()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
