package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/lock"
	"github.com/flemzord/tgbridge/internal/metrics"
	tg "github.com/flemzord/tgbridge/internal/telegram"
	"github.com/flemzord/tgbridge/internal/transport"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Module owns the chat client process.
type Module struct {
	config Config
	logger *slog.Logger
	client *tg.Client
	lock   *lock.Local

	// newTransport builds the process handle; replaced in tests.
	newTransport func(transport.Config, *slog.Logger) transport.Transport
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "client.telegram",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	build := m.newTransport
	if build == nil {
		build = func(cfg transport.Config, logger *slog.Logger) transport.Transport {
			return transport.NewProcess(cfg, logger)
		}
	}
	t := build(m.config.transport(), m.logger)

	m.client = tg.New(t, m.config.options(), m.logger)
	m.lock = lock.NewLocal(m.config.LockTimeout)

	if rec, ok := core.Service[tg.Observer](ctx, "metrics.recorder"); ok {
		m.client.SetObserver(rec)
	}
	if reg, ok := core.Service[prometheus.Registerer](ctx, "metrics.registry"); ok {
		metrics.StateGauge(reg, func() string { return m.client.State().String() })
	}

	ctx.RegisterService("telegram.client", m.client)
	ctx.RegisterService("telegram.lock", m.lock)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. A process that fails to start is not
// retried.
func (m *Module) Start() error {
	if err := m.client.Start(context.Background()); err != nil {
		return fmt.Errorf("telegram: starting %s: %w", m.config.Command, err)
	}
	info := m.client.Info()
	m.logger.Info("telegram client running", "command", m.config.Command, "pid", info.PID)
	return nil
}

// Stop implements core.Stopper. The process gets the quit command first
// and is killed when it outlives stop_timeout.
func (m *Module) Stop(_ context.Context) error {
	if m.client == nil {
		return nil
	}
	return m.client.Stop()
}

// Client returns the provisioned client.
func (m *Module) Client() *tg.Client {
	return m.client
}
