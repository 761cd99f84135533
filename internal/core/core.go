package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 30 * time.Second

// App drives a set of modules through start and stop.
type App struct {
	ctx     *AppContext
	modules []loadedModule
	logger  *slog.Logger
}

type loadedModule struct {
	id      ModuleID
	module  Module
	started bool
}

// NewApp creates an App bound to ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads the given IDs in order. On failure every module loaded
// so far is stopped and the error is returned.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.unload()
			return fmt.Errorf("loading module %s: %w", id, err)
		}
		a.modules = append(a.modules, loadedModule{id: mod.ModuleInfo().ID, module: mod})
		a.logger.Debug("module loaded", "module", id)
	}
	return nil
}

// Modules returns the IDs of loaded modules in load order.
func (a *App) Modules() []ModuleID {
	ids := make([]ModuleID, 0, len(a.modules))
	for _, m := range a.modules {
		ids = append(ids, m.id)
	}
	return ids
}

// Start starts every Starter in load order. If one fails, the modules
// already started are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.modules {
		lm := &a.modules[i]
		s, ok := lm.module.(Starter)
		if !ok {
			// Provision-only modules hold resources too and are stopped
			// with the rest.
			lm.started = true
			continue
		}
		a.logger.Info("starting module", "module", string(lm.id))
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", string(lm.id), "error", err)
			a.stopFrom(i - 1)
			return fmt.Errorf("starting module %s: %w", lm.id, err)
		}
		lm.started = true
	}
	a.logger.Info("all modules started", "count", len(a.modules))
	return nil
}

// Reload hands every started Reloader its section from configs. Modules
// without a section are skipped. All modules are tried; the errors are
// joined.
func (a *App) Reload(configs map[string]yaml.Node) error {
	var errs []error
	for _, lm := range a.modules {
		r, ok := lm.module.(Reloader)
		if !ok || !lm.started {
			continue
		}
		node, ok := configs[string(lm.id)]
		if !ok {
			continue
		}
		if err := r.Reload(&node); err != nil {
			errs = append(errs, fmt.Errorf("reloading module %s: %w", lm.id, err))
			continue
		}
		a.logger.Info("module reloaded", "module", string(lm.id))
	}
	return errors.Join(errs...)
}

// Stop stops started modules in reverse order.
func (a *App) Stop() {
	a.stopFrom(len(a.modules) - 1)
}

func (a *App) stopFrom(index int) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := index; i >= 0; i-- {
		lm := &a.modules[i]
		if !lm.started {
			continue
		}
		if s, ok := lm.module.(Stopper); ok {
			a.logger.Info("stopping module", "module", string(lm.id))
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop error", "module", string(lm.id), "error", err)
			}
		}
		lm.started = false
	}
}

func (a *App) unload() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(a.modules) - 1; i >= 0; i-- {
		if s, ok := a.modules[i].module.(Stopper); ok {
			_ = s.Stop(ctx)
		}
	}
	a.modules = nil
}

// Run starts the modules and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	a.logger.Info("shutdown requested")

	a.Stop()
	a.logger.Info("shutdown complete")
	return nil
}
