// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for tgbridge.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// DataDir overrides the directory modules keep persistent data in.
	DataDir string `yaml:"data_dir,omitempty"`

	// Log configures the root logger.
	Log LogConfig `yaml:"log"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "client.telegram").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// LogConfig selects log format, level and destination.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string `yaml:"level"`
	// Format is text or json. Default text.
	Format string `yaml:"format"`
	// File, when set, receives logs instead of stderr and is rotated.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	// RedactPhones masks phone numbers in every log line.
	RedactPhones bool `yaml:"redact_phones"`
}
