package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config struct.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	cfg, err := Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes already expanded YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnv replaces ${VAR} and ${VAR:-default} in raw YAML. Variables
// that are unset and have no default are all reported in one error.
// Lines whose first non-blank character is # are left untouched.
func expandEnv(raw []byte) ([]byte, error) {
	var errs []error

	lines := bytes.SplitAfter(raw, []byte("\n"))
	for i, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("#")) {
			continue
		}
		lines[i] = envPattern.ReplaceAllFunc(line, func(match []byte) []byte {
			subs := envPattern.FindSubmatch(match)
			name := string(subs[1])
			if value, ok := os.LookupEnv(name); ok {
				return []byte(value)
			}
			if subs[2] != nil {
				return subs[2]
			}
			errs = append(errs, fmt.Errorf("unresolved variable: %s", name))
			return match
		})
	}

	return bytes.Join(lines, nil), errors.Join(errs...)
}
