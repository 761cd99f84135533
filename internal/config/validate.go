package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/tgbridge/internal/core"
)

var (
	logLevels  = []string{"", "debug", "info", "warn", "error"}
	logFormats = []string{"", "text", "json"}
)

// Validate checks the structural validity of a Config: the version, the
// log section, and that every module ID is registered. Module specific
// settings are checked by the modules themselves when loaded.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	errs = append(errs, validateLog(cfg.Log)...)

	return errors.Join(errs...)
}

func validateLog(l LogConfig) []error {
	var errs []error
	if !slices.Contains(logLevels, l.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", l.Level))
	}
	if !slices.Contains(logFormats, l.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q is not text or json", l.Format))
	}
	if l.MaxSizeMB < 0 || l.MaxBackups < 0 || l.MaxAgeDays < 0 {
		errs = append(errs, errors.New("config: log rotation limits must not be negative"))
	}
	return errs
}
