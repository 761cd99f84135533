package telegram

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/protocol"
	"github.com/flemzord/tgbridge/internal/security"
	"github.com/flemzord/tgbridge/internal/transport"
)

const defaultLockTimeout = 15 * time.Second

// Config holds the client module configuration.
type Config struct {
	Command           string        `yaml:"command"`
	KeyFile           string        `yaml:"keyfile"`
	ConfigFile        string        `yaml:"configfile"`
	HomePath          string        `yaml:"homepath"`
	Args              []string      `yaml:"args"`
	Env               []string      `yaml:"env"`
	PTY               bool          `yaml:"pty"`
	Debug             bool          `yaml:"debug"`
	Timeout           Seconds       `yaml:"timeout"`
	StartupGrace      time.Duration `yaml:"startup_grace"`
	Settle            time.Duration `yaml:"settle"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
	Prompt            string        `yaml:"prompt"`
	CommandsPerSecond float64       `yaml:"commands_per_second"`
	LockTimeout       time.Duration `yaml:"lock_timeout"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.Command == "" {
		c.Command = transport.DefaultCommand
	}
	if c.KeyFile == "" {
		c.KeyFile = transport.DefaultKeyFile
	}
	if c.ConfigFile == "" {
		c.ConfigFile = transport.DefaultConfigFile
	}
	if c.HomePath == "" {
		c.HomePath = transport.DefaultHomePath
	}
	if c.Timeout <= 0 {
		c.Timeout = Seconds(protocol.DefaultTimeout)
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = transport.DefaultStartupGrace
	}
	if c.Settle <= 0 {
		c.Settle = protocol.DefaultSettle
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = transport.DefaultStopTimeout
	}
	if c.Prompt == "" {
		c.Prompt = protocol.DefaultPrompt
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = defaultLockTimeout
	}
}

// validate checks field constraints after defaults have been applied.
func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Prompt) == "" {
		errs = append(errs, errors.New("telegram: prompt must not be blank"))
	}
	if c.CommandsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("telegram: commands_per_second must be >= 0, got %v", c.CommandsPerSecond))
	}
	if c.Settle >= c.Timeout.Duration() {
		errs = append(errs, fmt.Errorf("telegram: settle (%s) must be shorter than timeout (%s)", c.Settle, c.Timeout))
	}
	errs = append(errs, c.transport().Validate())
	return errors.Join(errs...)
}

func (c *Config) transport() transport.Config {
	return transport.Config{
		Command:      c.Command,
		KeyFile:      c.KeyFile,
		ConfigFile:   c.ConfigFile,
		HomePath:     c.HomePath,
		Args:         c.Args,
		BaseEnv:      security.SanitizedEnv(os.Environ()),
		Env:          c.Env,
		PTY:          c.PTY,
		Trace:        c.Debug,
		StartupGrace: c.StartupGrace,
		StopTimeout:  c.StopTimeout,
	}
}

func (c *Config) options() protocol.Options {
	return protocol.Options{
		Prompt:            c.Prompt,
		Timeout:           c.Timeout.Duration(),
		Settle:            c.Settle,
		CommandsPerSecond: c.CommandsPerSecond,
	}
}

// Seconds is a duration written either as a number of seconds
// ("timeout: 10", "timeout: 2.5") or as a Go duration ("timeout: 10s").
type Seconds time.Duration

// Duration returns s as a time.Duration.
func (s Seconds) Duration() time.Duration { return time.Duration(s) }

func (s Seconds) String() string { return time.Duration(s).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Seconds) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("telegram: line %d: duration must be a scalar", node.Line)
	}
	if n, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*s = Seconds(n * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("telegram: line %d: invalid duration %q", node.Line, node.Value)
	}
	*s = Seconds(d)
	return nil
}
