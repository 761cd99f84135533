// Package reload applies configuration changes to a running application,
// on SIGHUP or when the configuration file changes on disk.
package reload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is how often the polling fallback checks the file.
const DefaultPollInterval = 5 * time.Second

// debounce batches the bursts of events an editor save produces.
// maxDelay bounds it so a file rewritten continuously is still checked.
const (
	debounce = 100 * time.Millisecond
	maxDelay = time.Second
)

// Watch sends on the returned channel when the file at path changes. It
// watches the parent directory with fsnotify, so atomic renames are seen,
// and falls back to polling every interval when notifications are
// unavailable. A change is reported only when the modification time or
// size differs from the last one seen. Changes arriving while a previous
// one is unread are coalesced. The channel is closed when ctx ends.
func Watch(ctx context.Context, path string, interval time.Duration, logger *slog.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	changes := make(chan struct{}, 1)
	fw := &fileWatch{path: filepath.Clean(path), changes: changes}
	fw.last, _ = stat(fw.path)

	w, err := fsnotify.NewWatcher()
	if err == nil {
		if err = w.Add(filepath.Dir(fw.path)); err != nil {
			_ = w.Close()
		}
	}
	if err != nil {
		logger.Warn("config watcher: notifications unavailable, polling", "path", path, "interval", interval, "error", err)
		go fw.poll(ctx, interval)
		return changes
	}
	go fw.notify(ctx, w, logger)
	return changes
}

type fileWatch struct {
	path    string
	last    fileStamp
	changes chan struct{}
}

func (fw *fileWatch) notify(ctx context.Context, w *fsnotify.Watcher, logger *slog.Logger) {
	defer close(fw.changes)
	defer w.Close()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	var armed time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != fw.path || ev.Has(fsnotify.Remove) {
				continue
			}
			if armed.IsZero() {
				armed = time.Now()
			}
			if wait := min(debounce, maxDelay-time.Since(armed)); wait > 0 {
				timer.Reset(wait)
			}
		case <-timer.C:
			armed = time.Time{}
			fw.check()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

func (fw *fileWatch) poll(ctx context.Context, interval time.Duration) {
	defer close(fw.changes)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fw.check()
		}
	}
}

func (fw *fileWatch) check() {
	current, ok := stat(fw.path)
	if !ok || current == fw.last {
		return
	}
	fw.last = current
	select {
	case fw.changes <- struct{}{}:
	default:
	}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

// stat reports false for a missing file, so an editor's remove-and-rename
// is seen as one change once the new file exists.
func stat(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, true
}
