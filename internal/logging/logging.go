// Package logging builds the root slog logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flemzord/tgbridge/internal/config"
	"github.com/flemzord/tgbridge/internal/security"
)

// Rotation defaults for file output.
const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
	defaultMaxAgeDays = 10
)

// ParseLevel maps a level name to a slog.Level. Unknown names are an error.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", name)
	}
}

// Options are the runtime collaborators of New.
type Options struct {
	// Stderr receives logs when no file is configured.
	Stderr io.Writer
	// Redactor, when set, filters every record. With cfg.RedactPhones it
	// also learns the phone pattern.
	Redactor *security.Redactor
	// Level, when set, is initialised from cfg and can be changed later.
	Level *slog.LevelVar
}

// New returns a logger for cfg writing to opts.Stderr, or to a rotated
// file when cfg.File is set. The returned closer flushes and closes the
// file and is a no-op for stderr.
func New(cfg config.LogConfig, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	var leveler slog.Leveler = level
	if opts.Level != nil {
		opts.Level.Set(level)
		leveler = opts.Level
	}

	var out io.Writer = opts.Stderr
	if out == nil {
		out = os.Stderr
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("logging: creating log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		out, closer = lj, lj
	}

	hopts := &slog.HandlerOptions{Level: leveler}
	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(out, hopts)
	case "json":
		handler = slog.NewJSONHandler(out, hopts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	if opts.Redactor != nil {
		if cfg.RedactPhones {
			opts.Redactor.AddPattern(security.PhonePattern())
		}
		handler = security.NewRedactingHandler(handler, opts.Redactor)
	}
	return slog.New(handler), closer, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
