package reload

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/config"
	"github.com/flemzord/tgbridge/internal/logging"
)

// Target receives the module sections of a reloaded configuration.
// *core.App implements it.
type Target interface {
	Reload(configs map[string]yaml.Node) error
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	ConfigPath string
	Target     Target
	// Level is updated from log.level unless LevelOverride is set.
	Level         *slog.LevelVar
	LevelOverride bool
	Logger        *slog.Logger
}

// Handler reloads the configuration file and applies it.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler returns a Handler for cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{cfg: cfg}
}

// Reload loads and validates the configuration, then applies the log
// level and the module sections. An invalid file changes nothing.
func (h *Handler) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg, err := config.Load(h.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if h.cfg.Level != nil && !h.cfg.LevelOverride {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		if level != h.cfg.Level.Level() {
			h.cfg.Logger.Info("log level changed", "from", h.cfg.Level.Level(), "to", level)
			h.cfg.Level.Set(level)
		}
	}

	if err := h.cfg.Target.Reload(cfg.Modules); err != nil {
		return err
	}
	h.cfg.Logger.Info("configuration reloaded", "path", h.cfg.ConfigPath)
	return nil
}
