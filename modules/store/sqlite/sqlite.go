// Package sqlite is the "store.sqlite" module: contacts and messages kept
// in one SQLite file through modernc.org/sqlite, published as the "store"
// service.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the database handle for the lifetime of the application.
type Module struct {
	config Config
	store  *Store
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "store.sqlite",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	if m.config.Path == "" {
		m.config.Path = filepath.Join(ctx.DataDir, defaultDBFile)
	}

	st, err := Open(context.Background(), m.config)
	if err != nil {
		return err
	}
	m.store = st
	ctx.RegisterService("store", st)

	m.logger.Info("contact store opened",
		"path", m.config.Path,
		"journal_mode", m.config.JournalMode,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if err := m.config.validate(); err != nil {
		return err
	}
	if err := m.store.Ping(context.Background()); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("closing contact store", "path", m.config.Path)
	return m.store.Close()
}

// Store returns the opened store.
func (m *Module) Store() *Store {
	return m.store
}
