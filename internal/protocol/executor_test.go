package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/tgbridge/internal/transport"
	"github.com/flemzord/tgbridge/internal/transport/transporttest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{Timeout: 500 * time.Millisecond, Settle: 10 * time.Millisecond}
}

type recordingObserver struct {
	mu    sync.Mutex
	names []string
	timed int
}

func (o *recordingObserver) ObserveCommand(name string, _ time.Duration, timedOut bool, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
	if timedOut {
		o.timed++
	}
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"contact_list", nil, "contact_list"},
		{"msg", []string{"Jane_Doe", "hello there"}, "msg Jane_Doe hello there"},
		{"msg", []string{"Jane_Doe", "two\nlines\r\nhere"}, "msg Jane_Doe two lines here"},
		{"history", []string{"Jane_Doe", "40 "}, "history Jane_Doe 40"},
	}
	for _, tt := range tests {
		if got := BuildCommand(tt.name, tt.args...); got != tt.want {
			t.Errorf("BuildCommand(%q, %q) = %q, want %q", tt.name, tt.args, got, tt.want)
		}
	}
}

func TestExecutor_StripsEchoAndStopsAtPrompt(t *testing.T) {
	t.Parallel()

	f := startedFake(t, transporttest.Script(map[string][]string{
		"dialog_list": {"User Jane Doe: 2 unread", "User Bob: 0 read"},
	}))
	f.Echo = true
	e := NewExecutor(f, fastOptions(), discardLogger())

	res, err := e.Execute(context.Background(), "dialog_list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"User Jane Doe: 2 unread", "User Bob: 0 read"}
	if !slices.Equal(res.Lines, want) {
		t.Errorf("Lines = %v, want %v", res.Lines, want)
	}
	if res.TimedOut {
		t.Error("TimedOut set on complete response")
	}
	if res.Buffer.Len() != 2 {
		t.Errorf("Buffer.Len() = %d, want 2", res.Buffer.Len())
	}
}

func TestExecutor_FlushesStaleOutput(t *testing.T) {
	t.Parallel()

	f := startedFake(t, transporttest.Script(map[string][]string{"contact_list": {"fresh"}}))
	f.Emit("stale line from earlier\n> ")
	e := NewExecutor(f, fastOptions(), discardLogger())

	res, err := e.Execute(context.Background(), "contact_list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !slices.Equal(res.Lines, []string{"fresh"}) {
		t.Errorf("Lines = %v, want [fresh]", res.Lines)
	}
}

func TestExecutor_CollectsTrailingChunks(t *testing.T) {
	t.Parallel()

	var f *transporttest.Fake
	f = startedFake(t, func(string) string {
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.Emit("late one\nlate two\n> ")
		}()
		return transporttest.Prompted("early")
	})
	opts := fastOptions()
	opts.Settle = 50 * time.Millisecond
	e := NewExecutor(f, opts, discardLogger())

	res, err := e.Execute(context.Background(), "contact_list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"early", "late one", "late two"}
	if !slices.Equal(res.Lines, want) {
		t.Errorf("Lines = %v, want %v", res.Lines, want)
	}
}

func TestExecutor_JoinsLineSplitAfterPrompt(t *testing.T) {
	t.Parallel()

	var f *transporttest.Fake
	f = startedFake(t, func(string) string {
		go func() {
			// After the settle period, so the prompt has been read.
			time.Sleep(80 * time.Millisecond)
			f.Emit("User #1: Jane Doe (Jane_Doe 3412) onl")
			time.Sleep(20 * time.Millisecond)
			f.Emit("ine\n> ")
		}()
		return transporttest.Prompted("User #2: Bob (Bob 3499) online")
	})
	opts := fastOptions()
	opts.Settle = 50 * time.Millisecond
	e := NewExecutor(f, opts, discardLogger())

	res, err := e.Execute(context.Background(), "contact_list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []string{"User #2: Bob (Bob 3499) online", "User #1: Jane Doe (Jane_Doe 3412) online"}
	if !slices.Equal(res.Lines, want) {
		t.Errorf("Lines = %v, want %v", res.Lines, want)
	}
}

func TestExecutor_TimeoutReturnsPartial(t *testing.T) {
	t.Parallel()

	f := startedFake(t, func(string) string { return "only part of it\n" })
	obs := &recordingObserver{}
	opts := fastOptions()
	opts.Timeout = 100 * time.Millisecond
	e := NewExecutor(f, opts, discardLogger())
	e.SetObserver(obs)

	res, err := e.Execute(context.Background(), "contact_list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut not set")
	}
	if !slices.Equal(res.Lines, []string{"only part of it"}) {
		t.Errorf("Lines = %v", res.Lines)
	}
	if obs.timed != 1 {
		t.Errorf("observer saw %d timeouts, want 1", obs.timed)
	}
}

func TestExecutor_SerializesConcurrentCommands(t *testing.T) {
	t.Parallel()

	f := startedFake(t, func(line string) string {
		return transporttest.Prompted("reply to " + line)
	})
	e := NewExecutor(f, fastOptions(), discardLogger())

	const n = 8
	results := make([]Result, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Execute(context.Background(), "cmd", fmt.Sprint(i))
			if err != nil {
				t.Errorf("Execute(%d): %v", i, err)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	for i, res := range results {
		want := fmt.Sprintf("reply to cmd %d", i)
		if !slices.Equal(res.Lines, []string{want}) {
			t.Errorf("result %d = %v, want [%s]", i, res.Lines, want)
		}
	}
	if got := len(f.Writes()); got != n {
		t.Errorf("writes = %d, want %d", got, n)
	}
}

func TestExecutor_SkipsWhenNotRunning(t *testing.T) {
	t.Parallel()

	f := transporttest.New(nil)
	f.StartupStderr = []string{"FATAL: cannot open config"}
	if _, err := f.Start(context.Background()); !errors.Is(err, transport.ErrStartup) {
		t.Fatalf("Start err = %v", err)
	}
	e := NewExecutor(f, fastOptions(), discardLogger())

	res, err := e.Execute(context.Background(), "contact_list")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Skipped || len(res.Lines) != 0 {
		t.Errorf("result = %+v, want skipped and empty", res)
	}
	if len(f.Writes()) != 0 {
		t.Errorf("writes = %v, want none", f.Writes())
	}
}

func TestExecutor_WriteFailureMarksFailed(t *testing.T) {
	t.Parallel()

	f := startedFake(t, nil)
	f.WriteErr = errors.New("broken pipe")
	e := NewExecutor(f, fastOptions(), discardLogger())

	_, err := e.Execute(context.Background(), "msg", "peer", "hi")
	if !errors.Is(err, transport.ErrTransportIO) {
		t.Fatalf("err = %v, want ErrTransportIO", err)
	}
	if f.State() != transport.StateFailed {
		t.Errorf("state = %v, want failed", f.State())
	}

	res, err := e.Execute(context.Background(), "contact_list")
	if err != nil || !res.Skipped {
		t.Errorf("Execute after failure = %+v, %v; want skipped", res, err)
	}
}

func TestExecutor_Handshake(t *testing.T) {
	t.Parallel()

	f := transporttest.New(nil)
	f.Banner = "Telegram-cli version 1.0\nThis is free software\n> User Jane: 1 unread\n> "
	if _, err := f.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	e := NewExecutor(f, fastOptions(), discardLogger())

	banner := e.Handshake(context.Background())
	if len(banner) != 3 {
		t.Errorf("banner = %v, want 3 lines", banner)
	}
}

func TestExecutor_PacesCommands(t *testing.T) {
	t.Parallel()

	f := startedFake(t, func(string) string { return transporttest.Prompted() })
	opts := fastOptions()
	opts.CommandsPerSecond = 20
	e := NewExecutor(f, opts, discardLogger())

	start := time.Now()
	for range 3 {
		if _, err := e.Execute(context.Background(), "mark_read", "x"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("3 paced commands took %v, want >= 100ms", elapsed)
	}
}
