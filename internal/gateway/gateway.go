package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/security"
	"github.com/flemzord/tgbridge/internal/store"
	"github.com/flemzord/tgbridge/internal/telegram"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// ClientInfo reports the chat client state.
type ClientInfo interface {
	Info() telegram.Info
}

// Jobs exposes the sync scheduler.
type Jobs interface {
	Records() []cron.RunRecord
	RunNow(ctx context.Context, name string) (cron.RunRecord, error)
}

// Sender sends and stores outgoing messages.
type Sender interface {
	SendMessage(ctx context.Context, msg *store.Message) error
}

// EventSource serves the live event stream.
type EventSource interface {
	Handler() http.Handler
}

// Gateway is the HTTP gateway module. It exposes health, status, metrics,
// the event stream and a small operator API. It is a leaf module: nothing
// imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	client   ClientInfo
	jobs     Jobs
	sender   Sender
	events   EventSource
	webhook  http.Handler
	gatherer prometheus.Gatherer
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	if r, ok := core.Service[*security.Redactor](ctx, "security.redactor"); ok {
		r.AddLiteral(g.config.Auth.BearerToken)
		r.AddLiteral(g.config.Auth.BasicPass)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	if g.config.Auth.BasicUser != "" && g.config.Auth.BasicPass == "" {
		return errors.New("gateway: auth.basic_pass is required with auth.basic_user")
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolve()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// resolve binds optional services. Missing ones disable their endpoints.
func (g *Gateway) resolve() {
	if c, ok := core.Service[ClientInfo](g.appCtx, "telegram.client"); ok {
		g.client = c
	}
	if j, ok := core.Service[Jobs](g.appCtx, "sync.scheduler"); ok {
		g.jobs = j
	}
	if s, ok := core.Service[Sender](g.appCtx, "sync.manager"); ok {
		g.sender = s
	}
	if e, ok := core.Service[EventSource](g.appCtx, "events.hub"); ok {
		g.events = e
	}
	if h, ok := core.Service[http.Handler](g.appCtx, "webhook.handler"); ok {
		g.webhook = h
	}
	if r, ok := core.Service[prometheus.Gatherer](g.appCtx, "metrics.registry"); ok {
		g.gatherer = r
	}
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

func (g *Gateway) authLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(g.config.AuthRate), int(g.config.AuthRate)+1)
}
