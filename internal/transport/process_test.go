package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeScript creates an executable shell script standing in for the client.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, command string) Config {
	t.Helper()
	return Config{
		Command:      command,
		HomePath:     t.TempDir(),
		StartupGrace: 100 * time.Millisecond,
		QuitDelay:    10 * time.Millisecond,
		StopTimeout:  2 * time.Second,
	}
}

// readUntil collects output until it contains want or the deadline passes.
func readUntil(t *testing.T, p *Process, want string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var got strings.Builder
	for !strings.Contains(got.String(), want) {
		if !p.Wait(ctx) {
			t.Fatalf("no %q in output %q", want, got.String())
		}
		got.Write(p.ReadAvailable())
	}
	return got.String()
}

const echoScript = `printf 'banner\n> '
while IFS= read -r line; do
  [ "$line" = "quit" ] && exit 0
  printf 'got %s\n> ' "$line"
done
`

func TestConfig_CommandArgs(t *testing.T) {
	t.Parallel()

	cfg := Config{ConfigFile: "/etc/tg.conf", KeyFile: "/etc/tg.pub", Args: []string{"-W"}}
	want := []string{"-N", "-c", "/etc/tg.conf", "-k", "/etc/tg.pub", "-W"}
	if got := cfg.CommandArgs(); !slices.Equal(got, want) {
		t.Errorf("CommandArgs() = %v, want %v", got, want)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()
	if cfg.Command != DefaultCommand || cfg.KeyFile != DefaultKeyFile ||
		cfg.ConfigFile != DefaultConfigFile || cfg.HomePath != DefaultHomePath {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.QuitDelay != 100*time.Millisecond {
		t.Errorf("QuitDelay = %v, want 100ms", cfg.QuitDelay)
	}
}

func TestProcess_WriteAndRead(t *testing.T) {
	t.Parallel()

	p := NewProcess(testConfig(t, writeScript(t, echoScript)), discardLogger())
	state, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state != StateRunning {
		t.Fatalf("state = %v, want running", state)
	}
	if p.PID() == 0 {
		t.Error("PID() = 0 after start")
	}

	readUntil(t, p, "> ")
	if err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	readUntil(t, p, "got hello")

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state after stop = %v", p.State())
	}
	if code, ok := p.ExitCode(); !ok || code != 0 {
		t.Errorf("ExitCode() = %d, %v; want 0, true", code, ok)
	}
}

func TestProcess_StartIsIdempotent(t *testing.T) {
	t.Parallel()

	p := NewProcess(testConfig(t, writeScript(t, echoScript)), discardLogger())
	t.Cleanup(func() { _ = p.Stop() })

	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := p.PID()
	state, err := p.Start(context.Background())
	if err != nil || state != StateRunning {
		t.Fatalf("second Start = %v, %v", state, err)
	}
	if p.PID() != pid {
		t.Error("second Start spawned a new process")
	}
}

func TestProcess_StderrAtStartupFails(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "echo 'cannot open key file' >&2\nexec cat\n")
	cfg := testConfig(t, script)
	cfg.StartupGrace = 300 * time.Millisecond
	p := NewProcess(cfg, discardLogger())

	state, err := p.Start(context.Background())
	if !errors.Is(err, ErrStartup) {
		t.Fatalf("err = %v, want ErrStartup", err)
	}
	if state != StateFailed || p.State() != StateFailed {
		t.Errorf("state = %v / %v, want failed", state, p.State())
	}
	if errs := p.Errors(); len(errs) == 0 || errs[0] != "cannot open key file" {
		t.Errorf("Errors() = %v", errs)
	}
	if err := p.Write([]byte("contact_list\n")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Write after failed start = %v, want ErrNotRunning", err)
	}

	// A failed transport is never retried.
	state, _ = p.Start(context.Background())
	if state != StateFailed {
		t.Errorf("restart state = %v, want failed", state)
	}
}

func TestProcess_SpawnFailure(t *testing.T) {
	t.Parallel()

	p := NewProcess(testConfig(t, filepath.Join(t.TempDir(), "missing")), discardLogger())
	state, err := p.Start(context.Background())
	if !errors.Is(err, ErrStartup) || state != StateFailed {
		t.Fatalf("Start = %v, %v; want failed, ErrStartup", state, err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop after failed spawn: %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("state = %v, want failed", p.State())
	}
}

func TestProcess_CrashMarksFailed(t *testing.T) {
	t.Parallel()

	p := NewProcess(testConfig(t, writeScript(t, "printf '> '\nread line\nexit 3\n")), discardLogger())
	t.Cleanup(func() { _ = p.Stop() })

	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Write([]byte("anything\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for p.State() != StateFailed {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want failed", p.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
	deadline = time.Now().Add(3 * time.Second)
	for {
		if code, ok := p.ExitCode(); ok {
			if code != 3 {
				t.Errorf("exit code = %d, want 3", code)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("process never reaped")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcess_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	never := NewProcess(Config{}, discardLogger())
	if err := never.Stop(); err != nil {
		t.Fatalf("Stop on unstarted: %v", err)
	}
	if err := never.Stop(); err != nil {
		t.Fatalf("second Stop on unstarted: %v", err)
	}
	if never.State() != StateStopped {
		t.Errorf("state = %v, want stopped", never.State())
	}

	p := NewProcess(testConfig(t, writeScript(t, echoScript)), discardLogger())
	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 2 {
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if err := p.Write([]byte("x\n")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Write after stop = %v, want ErrNotRunning", err)
	}
}

func TestProcess_ConcurrentStopWaitsForExit(t *testing.T) {
	t.Parallel()

	slowQuit := `printf '> '
while IFS= read -r line; do
  [ "$line" = "quit" ] && { sleep 1; exit 0; }
done
`
	p := NewProcess(testConfig(t, writeScript(t, slowQuit)), discardLogger())
	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- p.Stop() }()
	time.Sleep(100 * time.Millisecond)

	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state after second Stop = %v, want stopped", p.State())
	}
	if _, ok := p.ExitCode(); !ok {
		t.Error("second Stop returned before the process exited")
	}
	if err := <-first; err != nil {
		t.Errorf("first Stop: %v", err)
	}
}

func TestProcess_ReadAvailableNeverBlocks(t *testing.T) {
	t.Parallel()

	p := NewProcess(testConfig(t, writeScript(t, "exec cat\n")), discardLogger())
	t.Cleanup(func() { _ = p.Stop() })
	if _, err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	if got := p.ReadAvailable(); len(got) != 0 {
		t.Errorf("ReadAvailable() = %q, want empty", got)
	}
	if got := p.ReadErrors(); len(got) != 0 {
		t.Errorf("ReadErrors() = %v, want empty", got)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("non-blocking reads took too long")
	}
}
