// Package core provides the module system tgbridge is assembled from.
package core

import (
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppContext carries shared resources available to modules during
// provisioning and at runtime.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// DataDir is the root directory for persistent module data.
	DataDir string

	root          *slog.Logger
	moduleConfigs map[string]yaml.Node
	services      *serviceRegistry
}

type serviceRegistry struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewAppContext creates a root AppContext.
func NewAppContext(logger *slog.Logger, dataDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		DataDir:  dataDir,
		root:     logger,
		services: &serviceRegistry{items: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy of the context carrying the raw module
// sections keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.moduleConfigs = configs
	return &cp
}

// ForModule returns a context whose logger is tagged with the module ID.
// Services are shared with the parent.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	return &AppContext{
		Logger:        ctx.root.With("module", string(id)),
		DataDir:       ctx.DataDir,
		root:          ctx.root,
		moduleConfigs: ctx.moduleConfigs,
		services:      ctx.services,
	}
}

// RegisterService publishes a value under name for other modules.
// A later registration under the same name replaces the earlier one.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.items[name] = svc
}

// GetService looks up a service registered by another module.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.items[name]
	return svc, ok
}

// Service returns the service registered under name if it has type T.
func Service[T any](ctx *AppContext, name string) (T, bool) {
	var zero T
	svc, ok := ctx.GetService(name)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// LoadModule instantiates a module and runs it through
//
//	New() -> Configure() -> Provision() -> Validate()
//
// skipping the steps the module does not implement.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}

	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, exists := ctx.moduleConfigs[id]; exists {
			if err := c.Configure(&node); err != nil {
				return nil, fmt.Errorf("configuring module %s: %w", id, err)
			}
		}
	}

	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("provisioning module %s: %w", id, err)
		}
	}

	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating module %s: %w", id, err)
		}
	}

	return mod, nil
}
