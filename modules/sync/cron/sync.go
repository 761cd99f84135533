// Package cron provides the sync.cron module: the contact and message
// manager, its periodic jobs and the message event hub.
//
// Services registered: "sync.manager" (*manager.Manager),
// "sync.scheduler" (*cron.Scheduler), "events.hub" (*events.Hub).
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
	icron "github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/events"
	"github.com/flemzord/tgbridge/internal/lock"
	"github.com/flemzord/tgbridge/internal/manager"
	"github.com/flemzord/tgbridge/internal/store"
)

// Errors returned when a required service is missing.
var (
	ErrNoClient = errors.New("sync: service telegram.client not registered")
	ErrNoStore  = errors.New("sync: service store not registered")
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
	_ core.Reloader     = (*Module)(nil)
)

// Module runs the sync jobs against the client and the store.
type Module struct {
	config    Config
	logger    *slog.Logger
	manager   *manager.Manager
	scheduler *icron.Scheduler
	hub       *events.Hub
	cancel    context.CancelFunc
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "sync.cron",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sync: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	client, ok := core.Service[manager.Client](ctx, "telegram.client")
	if !ok {
		return ErrNoClient
	}
	st, ok := core.Service[store.Store](ctx, "store")
	if !ok {
		return ErrNoStore
	}
	var access lock.ExclusiveAccess = lock.Noop{}
	if l, ok := core.Service[lock.ExclusiveAccess](ctx, "telegram.lock"); ok {
		access = l
	}

	m.manager = manager.New(client, st, access, manager.Config{
		SiteName:         m.config.SiteName,
		ContactFirstName: m.config.ContactFirstName,
	}, m.logger)

	m.hub = events.NewHub(m.config.EventBuffer, m.logger)
	m.manager.SetPublisher(m.hub)

	m.scheduler = icron.NewScheduler(m.logger)
	if obs, ok := core.Service[icron.Observer](ctx, "metrics.recorder"); ok {
		m.scheduler.SetObserver(obs)
	}
	jobs := []icron.Job{
		&icron.ContactRefreshJob{Manager: m.manager, Logger: m.logger, ScheduleExpr: m.config.ContactsSchedule},
		&icron.MessageReadJob{Manager: m.manager, Logger: m.logger, ScheduleExpr: m.config.MessagesSchedule},
	}
	for _, j := range jobs {
		if err := m.scheduler.RegisterJob(j); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}

	ctx.RegisterService("sync.manager", m.manager)
	ctx.RegisterService("sync.scheduler", m.scheduler)
	ctx.RegisterService("events.hub", m.hub)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if err := m.scheduler.Start(); err != nil {
		return fmt.Errorf("sync: starting scheduler: %w", err)
	}
	if m.config.RunOnStart {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go m.runAll(ctx)
	}
	m.logger.Info("sync jobs scheduled",
		"contacts", m.config.ContactsSchedule,
		"messages", m.config.MessagesSchedule,
	)
	return nil
}

// runAll runs every job once, contacts first.
func (m *Module) runAll(ctx context.Context) {
	for _, name := range []string{"contacts.refresh", "messages.read"} {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.scheduler.RunNow(ctx, name); err != nil {
			m.logger.Warn("sync: initial run failed", "job", name, "error", err)
		}
	}
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler == nil {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	err := m.scheduler.Stop(ctx)
	m.hub.CloseAll()
	return err
}

// Reload implements core.Reloader. Only the job schedules change; the
// other settings need a restart.
func (m *Module) Reload(node *yaml.Node) error {
	var next Config
	if err := node.Decode(&next); err != nil {
		return fmt.Errorf("sync: decode config: %w", err)
	}
	next.defaults()
	if err := next.validate(); err != nil {
		return err
	}
	if err := m.scheduler.Reschedule("contacts.refresh", next.ContactsSchedule); err != nil {
		return err
	}
	if err := m.scheduler.Reschedule("messages.read", next.MessagesSchedule); err != nil {
		return err
	}
	m.config.ContactsSchedule = next.ContactsSchedule
	m.config.MessagesSchedule = next.MessagesSchedule
	return nil
}

// Manager returns the provisioned manager.
func (m *Module) Manager() *manager.Manager {
	return m.manager
}
