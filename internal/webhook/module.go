package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/events"
	"github.com/flemzord/tgbridge/internal/security"
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

// Config holds the webhook module configuration.
type Config struct {
	// ForwardURL receives every stored message as a signed event.
	ForwardURL string        `yaml:"forward_url"`
	Secret     string        `yaml:"secret"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxTries   uint          `yaml:"max_tries"`
}

// Module forwards message events to the host and registers the inbound
// handler as service "webhook.handler" for the gateway to mount.
type Module struct {
	config    Config
	logger    *slog.Logger
	hub       *events.Hub
	forwarder *Forwarder

	cancel context.CancelFunc
	sub    *events.Subscription
	wg     sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "webhook.http",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("webhook: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.logger = ctx.Logger
	if r, ok := core.Service[*security.Redactor](ctx, "security.redactor"); ok {
		r.AddLiteral(m.config.Secret)
	}

	if m.config.ForwardURL != "" {
		hub, ok := core.Service[*events.Hub](ctx, "events.hub")
		if !ok {
			return errors.New("webhook: forward_url needs the events.hub service (module sync.cron)")
		}
		fw, err := NewForwarder(ForwarderConfig{
			URL:      m.config.ForwardURL,
			Secret:   m.config.Secret,
			Timeout:  m.config.Timeout,
			MaxTries: m.config.MaxTries,
			Logger:   m.logger,
		})
		if err != nil {
			return err
		}
		m.hub, m.forwarder = hub, fw
	}

	if m.config.Secret != "" {
		if sender, ok := core.Service[Sender](ctx, "sync.manager"); ok {
			h, err := NewHandler(HandlerConfig{Sender: sender, Secret: m.config.Secret, Logger: m.logger})
			if err != nil {
				return err
			}
			ctx.RegisterService("webhook.handler", h)
		}
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.ForwardURL == "" && m.config.Secret == "" {
		return errors.New("webhook: forward_url or secret is required")
	}
	if m.config.ForwardURL != "" {
		u, err := url.Parse(m.config.ForwardURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook: invalid forward_url %q", m.config.ForwardURL)
		}
	}
	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if m.forwarder == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.sub = m.hub.Subscribe()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.forwarder.Run(ctx, m.sub.C())
	}()
	m.logger.Info("webhook forwarding enabled", "url", m.config.ForwardURL)
	return nil
}

// Stop implements core.Stopper. Pending deliveries are abandoned.
func (m *Module) Stop(_ context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.sub.Close()
	m.wg.Wait()
	return nil
}
