package sqlite

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultBusyTimeout = 5 * time.Second
	defaultDBFile      = "tgbridge.db"
	defaultJournal     = "wal"
	defaultSynchronous = "normal"
)

var (
	journalModes     = []string{"wal", "delete", "truncate", "persist"}
	synchronousModes = []string{"off", "normal", "full"}
)

// Config holds the store.sqlite module configuration.
type Config struct {
	// Path defaults to {DataDir}/tgbridge.db.
	Path string `yaml:"path"`
	// JournalMode is one of wal (default), delete, truncate, persist.
	JournalMode string `yaml:"journal_mode"`
	// Synchronous is one of off, normal (default), full.
	Synchronous string        `yaml:"synchronous"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

func (c *Config) defaults() {
	c.JournalMode = strings.ToLower(c.JournalMode)
	if c.JournalMode == "" {
		c.JournalMode = defaultJournal
	}
	c.Synchronous = strings.ToLower(c.Synchronous)
	if c.Synchronous == "" {
		c.Synchronous = defaultSynchronous
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) validate() error {
	var errs []error
	if !slices.Contains(journalModes, c.JournalMode) {
		errs = append(errs, fmt.Errorf("sqlite: journal_mode %q is not one of %s", c.JournalMode, strings.Join(journalModes, ", ")))
	}
	if !slices.Contains(synchronousModes, c.Synchronous) {
		errs = append(errs, fmt.Errorf("sqlite: synchronous %q is not one of %s", c.Synchronous, strings.Join(synchronousModes, ", ")))
	}
	if c.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("sqlite: busy_timeout must be non-negative, got %s", c.BusyTimeout))
	}
	return errors.Join(errs...)
}

// pragmas returns the statements run on the single connection after open.
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode=" + strings.ToUpper(c.JournalMode),
		"PRAGMA synchronous=" + strings.ToUpper(c.Synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", c.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
}
