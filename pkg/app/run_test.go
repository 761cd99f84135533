package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tgbridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "tgbridge")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "tgbridge.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/tgbridge" {
		t.Errorf("got %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := DefaultDataDir(), filepath.Join(home, ".local", "share", "tgbridge"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "not: valid: yaml: ["},
		{"no version", "modules:\n  store.sqlite: {}\n"},
		{"unknown module", "version: \"1\"\nmodules:\n  store.nope: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(context.Background(), RunParams{ConfigPath: writeConfig(t, tt.body)})
			if err == nil {
				t.Error("expected error")
			}
		})
	}

	if err := Run(context.Background(), RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_Modules(t *testing.T) {
	path := writeConfig(t, `version: "1"
modules:
  store.sqlite: {}
  sync.cron:
    site_name: Example
`)
	dataDir := filepath.Join(t.TempDir(), "data")

	var logs bytes.Buffer
	rt, err := Load(RunParams{ConfigPath: path, DataDir: dataDir, Stderr: &logs}, "store.sqlite")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer rt.Close()

	if got := rt.App.Modules(); !slices.Equal(got, []core.ModuleID{"store.sqlite"}) {
		t.Errorf("modules = %v", got)
	}
	if _, ok := core.Service[store.Store](rt.Context, "store"); !ok {
		t.Error("store service not registered")
	}
	for _, name := range []string{"metrics.registry", "metrics.recorder", "config.path", "security.redactor"} {
		if _, ok := rt.Context.GetService(name); !ok {
			t.Errorf("service %s not registered", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dataDir, "tgbridge.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
	if !bytes.Contains(logs.Bytes(), []byte("tgbridge loaded")) {
		t.Errorf("logs = %q", logs.String())
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nlog:\n  level: warn\nmodules:\n  store.sqlite: {}\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Run(ctx, RunParams{ConfigPath: path, DataDir: t.TempDir(), Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRuntime_Reload(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nlog:\n  level: warn\nmodules:\n  store.sqlite: {}\n")

	rt, err := Load(RunParams{ConfigPath: path, DataDir: t.TempDir(), Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	if got := rt.level.Level(); got != slog.LevelWarn {
		t.Fatalf("initial level = %v", got)
	}

	if err := os.WriteFile(path, []byte("version: \"1\"\nlog:\n  level: debug\nmodules:\n  store.sqlite: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := rt.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := rt.level.Level(); got != slog.LevelDebug {
		t.Errorf("level after reload = %v, want debug", got)
	}

	if err := os.WriteFile(path, []byte("version: \"9\"\nmodules:\n  store.sqlite: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := rt.Reload(context.Background()); err == nil {
		t.Error("expected error for invalid config")
	}
	if got := rt.level.Level(); got != slog.LevelDebug {
		t.Errorf("invalid reload changed level to %v", got)
	}
}

func TestRuntime_ReloadKeepsLevelOverride(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nlog:\n  level: warn\nmodules:\n  store.sqlite: {}\n")

	rt, err := Load(RunParams{ConfigPath: path, DataDir: t.TempDir(), LogLevel: "error", Stderr: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	if err := rt.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := rt.level.Level(); got != slog.LevelError {
		t.Errorf("level = %v, want error", got)
	}
}

func TestRuntime_ServeReloadsOnFileChange(t *testing.T) {
	path := writeConfig(t, "version: \"1\"\nlog:\n  level: warn\nmodules:\n  store.sqlite: {}\n")

	rt, err := Load(RunParams{ConfigPath: path, DataDir: t.TempDir(), Stderr: io.Discard})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx, 10*time.Millisecond) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})

	// The watcher may start after a write, so write again if nothing
	// was applied within a few debounce periods.
	body := "version: \"1\"\nlog:\n  level: debug\nmodules:\n  store.sqlite: {}\n"
	deadline := time.Now().Add(5 * time.Second)
	for attempt := 0; rt.level.Level() != slog.LevelDebug; attempt++ {
		if time.Now().After(deadline) {
			t.Fatal("config change not applied")
		}
		if err := os.WriteFile(path, []byte(body+strings.Repeat("#\n", attempt)), 0o644); err != nil {
			t.Fatal(err)
		}
		waitUntil(time.Now().Add(500*time.Millisecond), func() bool {
			return rt.level.Level() == slog.LevelDebug
		})
	}
}

func waitUntil(deadline time.Time, cond func() bool) {
	for !cond() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
