package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"
)

const readChunkSize = 4096

var _ Transport = (*Process)(nil)

// Process runs the client as a child process. Pipe readers are goroutines
// that feed internal queues, so ReadAvailable and ReadErrors never block.
type Process struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	stopping bool
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	readers  []io.Closer
	pid      int
	exitCode int
	exited   chan struct{}
	stopped  chan struct{}

	out *chunkQueue

	errMu  sync.Mutex
	errNew []string
	errLog []string
}

// NewProcess returns an unstarted Process.
func NewProcess(cfg Config, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{
		cfg:      cfg.WithDefaults(),
		logger:   logger.With("component", "transport"),
		exitCode: -1,
		exited:   make(chan struct{}),
		stopped:  make(chan struct{}),
		out:      newChunkQueue(),
	}
}

// Start spawns the process and watches stderr for the startup grace
// window. Any stderr output in that window, or an early exit, fails the
// transport permanently.
func (p *Process) Start(ctx context.Context) (State, error) {
	p.mu.Lock()
	if p.state != StateNotStarted {
		st := p.state
		p.mu.Unlock()
		return st, nil
	}
	p.state = StateStarting
	p.mu.Unlock()

	if err := os.MkdirAll(p.cfg.HomePath, 0o700); err != nil {
		return p.failStart(fmt.Errorf("creating home path: %w", err))
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.CommandArgs()...)
	cmd.Dir = p.cfg.HomePath
	base := p.cfg.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(slices.Clip(base), p.cfg.Env...)

	var (
		stdout io.ReadCloser
		stderr io.ReadCloser
		err    error
	)
	if p.cfg.PTY {
		stdout, err = p.spawnPTY(cmd)
	} else {
		stdout, stderr, err = p.spawnPipes(cmd)
	}
	if err != nil {
		return p.failStart(err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.state = StateRunning
	p.mu.Unlock()

	p.logger.Info("process started", "pid", p.pid, "command", p.cfg.Command, "pty", p.cfg.PTY)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pump(stdout)
	}()
	if stderr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.scanErrors(stderr)
		}()
	}
	go p.reap(&wg)

	timer := time.NewTimer(p.cfg.StartupGrace)
	defer timer.Stop()

	var cause error
	select {
	case <-timer.C:
	case <-p.exited:
		cause = errors.New("process exited during startup")
	case <-ctx.Done():
		cause = ctx.Err()
	}
	if cause == nil {
		if errs := p.ReadErrors(); len(errs) > 0 {
			cause = fmt.Errorf("stderr during startup: %s", errs[0])
		}
	}
	if cause != nil {
		p.logger.Error("startup errors", "error", cause)
		_ = p.Stop()
		p.setState(StateFailed)
		return StateFailed, fmt.Errorf("%w: %w", ErrStartup, cause)
	}
	return StateRunning, nil
}

func (p *Process) spawnPipes(cmd *exec.Cmd) (io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("spawning %s: %w", p.cfg.Command, err)
	}

	p.mu.Lock()
	p.stdin = stdin
	p.readers = []io.Closer{stdout, stderr}
	p.mu.Unlock()
	return stdout, stderr, nil
}

func (p *Process) failStart(err error) (State, error) {
	p.logger.Error("failed to start process", "command", p.cfg.Command, "error", err)
	p.setState(StateFailed)
	return StateFailed, fmt.Errorf("%w: %w", ErrStartup, err)
}

func (p *Process) pump(r io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if p.cfg.Trace {
				p.logger.Debug("read", "bytes", n, "data", string(buf[:n]))
			}
			p.out.push(buf[:n])
		}
		if err != nil {
			p.out.close()
			p.mu.Lock()
			crashed := p.state == StateRunning && !p.stopping
			if crashed {
				p.state = StateFailed
			}
			p.mu.Unlock()
			if crashed {
				p.logger.Error("process output closed unexpectedly", "error", err)
			}
			return
		}
	}
}

func (p *Process) scanErrors(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.logger.Error("process stderr", "line", line)
		p.errMu.Lock()
		p.errNew = append(p.errNew, line)
		p.errLog = append(p.errLog, line)
		p.errMu.Unlock()
	}
}

// reap waits for the readers to reach EOF, then collects the exit status.
func (p *Process) reap(readers *sync.WaitGroup) {
	readers.Wait()
	err := p.cmd.Wait()

	code := 0
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
	case err != nil:
		code = -1
	}

	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
	close(p.exited)

	p.logger.Info("process exited", "pid", p.pid, "exit_code", code)
}

// Write sends b to the process input.
func (p *Process) Write(b []byte) error {
	p.mu.Lock()
	state, stdin := p.state, p.stdin
	p.mu.Unlock()

	if state != StateRunning || stdin == nil {
		return ErrNotRunning
	}
	if p.cfg.Trace {
		p.logger.Debug("write", "data", string(b))
	}
	if _, err := stdin.Write(b); err != nil {
		p.setState(StateFailed)
		p.logger.Error("write failed", "error", err)
		return fmt.Errorf("%w: %w", ErrTransportIO, err)
	}
	return nil
}

// ReadAvailable returns queued stdout bytes.
func (p *Process) ReadAvailable() []byte {
	return p.out.drain()
}

// Wait blocks until stdout has queued bytes or ctx is done.
func (p *Process) Wait(ctx context.Context) bool {
	return p.out.wait(ctx)
}

// ReadErrors returns stderr lines received since the last call.
func (p *Process) ReadErrors() []string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	lines := p.errNew
	p.errNew = nil
	return lines
}

// Errors returns every stderr line seen so far.
func (p *Process) Errors() []string {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return append([]string(nil), p.errLog...)
}

// Stop asks the process to quit, closes its input and waits for it to
// exit, killing it after StopTimeout. Failed transports stay Failed.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		<-p.stopped
		return nil
	}
	if p.cmd == nil {
		if p.state == StateNotStarted {
			p.state = StateStopped
		}
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	defer close(p.stopped)
	running := p.state == StateRunning
	stdin := p.stdin
	p.mu.Unlock()

	p.logger.Info("closing process", "pid", p.pid)

	if running && stdin != nil {
		if _, err := stdin.Write([]byte("quit\n")); err == nil {
			time.Sleep(p.cfg.QuitDelay)
		}
	}
	if rest := p.out.drain(); len(rest) > 0 {
		p.logger.Debug("discarding output on stop", "data", string(rest))
	}
	if stdin != nil {
		_ = stdin.Close()
	}

	var killErr error
	select {
	case <-p.exited:
	case <-time.After(p.cfg.StopTimeout):
		p.logger.Warn("process did not exit, killing", "pid", p.pid)
		killErr = p.cmd.Process.Kill()
		select {
		case <-p.exited:
		case <-time.After(p.cfg.StopTimeout):
			p.closeReaders()
			<-p.exited
		}
	}

	p.mu.Lock()
	if p.state != StateFailed {
		p.state = StateStopped
	}
	code := p.exitCode
	p.mu.Unlock()

	p.logger.Info("process stopped", "exit_code", code)
	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return fmt.Errorf("killing process: %w", killErr)
	}
	return nil
}

func (p *Process) closeReaders() {
	p.mu.Lock()
	readers := p.readers
	p.mu.Unlock()
	for _, r := range readers {
		_ = r.Close()
	}
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// PID returns the process id, or 0 when never spawned.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// ExitCode returns the exit status and whether the process has exited.
func (p *Process) ExitCode() (int, bool) {
	select {
	case <-p.exited:
	default:
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, true
}
