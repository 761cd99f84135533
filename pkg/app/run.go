// Package app provides the shared entry point for the tgbridge binary.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/config"
	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/logging"
	"github.com/flemzord/tgbridge/internal/metrics"
	"github.com/flemzord/tgbridge/internal/reload"
	"github.com/flemzord/tgbridge/internal/security"

	// Built-in modules.
	_ "github.com/flemzord/tgbridge/internal/gateway"
	_ "github.com/flemzord/tgbridge/internal/webhook"
	_ "github.com/flemzord/tgbridge/modules/client/telegram"
	_ "github.com/flemzord/tgbridge/modules/store/sqlite"
	_ "github.com/flemzord/tgbridge/modules/sync/cron"
)

// RunParams configures the application.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the data_dir setting and the default directory.
	DataDir string

	// LogLevel overrides log.level when non-empty.
	LogLevel string

	// Stderr receives console logs. Defaults to os.Stderr.
	Stderr io.Writer

	// WatchInterval is how often Run polls the config file when file
	// notifications are unavailable. Zero uses reload.DefaultPollInterval;
	// negative disables watching.
	WatchInterval time.Duration
}

// Runtime is a loaded but not yet started application.
type Runtime struct {
	App     *core.App
	Context *core.AppContext
	Config  *config.Config
	Logger  *slog.Logger

	path          string
	level         *slog.LevelVar
	levelOverride bool
	logCloser     io.Closer
}

// Load reads the configuration and loads its modules. When only is given,
// just those modules are loaded, whether configured or not.
func Load(params RunParams, only ...string) (*Runtime, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}

	stderr := params.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	redactor := security.NewRedactor()
	level := new(slog.LevelVar)
	logger, logCloser, err := logging.New(cfg.Log, logging.Options{
		Stderr:   stderr,
		Redactor: redactor,
		Level:    level,
	})
	if err != nil {
		return nil, err
	}

	dataDir := cmp.Or(params.DataDir, cfg.DataDir, DefaultDataDir())
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)

	reg := metrics.NewRegistry()
	appCtx.RegisterService("metrics.registry", reg)
	appCtx.RegisterService("metrics.recorder", metrics.NewRecorder(reg))
	appCtx.RegisterService("config.path", cfgPath)
	appCtx.RegisterService("security.redactor", redactor)

	ids := config.Resolve(cfg)
	if len(only) > 0 {
		ids = selectModules(only)
	}

	application := core.NewApp(appCtx)
	if err := application.LoadModules(ids); err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	logger.Info("tgbridge loaded",
		"version", params.Version,
		"config", cfgPath,
		"data_dir", dataDir,
		"modules", len(ids),
	)
	return &Runtime{
		App:           application,
		Context:       appCtx,
		Config:        cfg,
		Logger:        logger,
		path:          cfgPath,
		level:         level,
		levelOverride: params.LogLevel != "",
		logCloser:     logCloser,
	}, nil
}

// selectModules orders the requested IDs the way the config would.
func selectModules(only []string) []string {
	modules := make(map[string]yaml.Node, len(only))
	for _, id := range only {
		modules[id] = yaml.Node{}
	}
	return config.Resolve(&config.Config{Modules: modules})
}

// Close stops every started module and flushes the log file.
func (r *Runtime) Close() error {
	r.App.Stop()
	return r.logCloser.Close()
}

// Reload re-reads the configuration file and applies the log level and
// the reloadable module settings.
func (r *Runtime) Reload(ctx context.Context) error {
	return r.reloader().Reload(ctx)
}

func (r *Runtime) reloader() *reload.Handler {
	return reload.NewHandler(reload.HandlerConfig{
		ConfigPath:    r.path,
		Target:        r.App,
		Level:         r.level,
		LevelOverride: r.levelOverride,
		Logger:        r.Logger,
	})
}

// Serve starts all modules and blocks until ctx is done or SIGINT or
// SIGTERM arrives. SIGHUP and changes to the config file trigger a reload;
// a failed reload is logged and the running configuration is kept.
func (r *Runtime) Serve(ctx context.Context, watchInterval time.Duration) error {
	if err := r.App.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan struct{}
	if watchInterval >= 0 {
		changes = reload.Watch(ctx, r.path, watchInterval, r.Logger)
	}

	handler := r.reloader()
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("shutdown requested")
			return nil
		case <-hup:
			r.Logger.Info("reload requested", "trigger", "signal")
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			r.Logger.Info("reload requested", "trigger", "file")
		}
		if err := handler.Reload(ctx); err != nil {
			r.Logger.Error("reload failed", "error", err)
		}
	}
}

// Run loads configuration, starts all modules, and blocks until ctx is
// done or a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	rt, err := Load(params)
	if err != nil {
		return err
	}
	return errors.Join(rt.Serve(ctx, params.WatchInterval), rt.Close())
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/tgbridge/tgbridge.yaml, then
// ~/.config/tgbridge/tgbridge.yaml, then ./tgbridge.yaml.
func ResolveConfigPath() (string, error) {
	return config.FindFile()
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/tgbridge if set, otherwise ~/.local/share/tgbridge.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "tgbridge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "tgbridge")
}
