package config

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/flemzord/tgbridge/internal/core"
)

// loadOrder ranks module namespaces. A module's services must be
// registered before the modules that resolve them are provisioned.
var loadOrder = map[string]int{
	"client":  0,
	"store":   1,
	"sync":    2,
	"gateway": 3,
}

func rank(id string) int {
	if r, ok := loadOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(loadOrder)
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then by name.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(a, b))
	})
	return ids
}

// SearchPaths returns the locations FindFile tries, in order.
func SearchPaths() []string {
	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "tgbridge", "tgbridge.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "tgbridge", "tgbridge.yaml"))
	}
	return append(candidates, "tgbridge.yaml")
}

// FindFile returns the first existing configuration file.
func FindFile() (string, error) {
	candidates := SearchPaths()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("config: no configuration file found (searched: %v)", candidates)
}
