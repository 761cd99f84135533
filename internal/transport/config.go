package transport

import (
	"errors"
	"time"
)

const (
	DefaultCommand      = "/usr/local/bin/telegram"
	DefaultKeyFile      = "/etc/telegram/server.pub"
	DefaultConfigFile   = "/etc/telegram/telegram.conf"
	DefaultHomePath     = "/tmp/telegram"
	DefaultStartupGrace = 500 * time.Millisecond
	DefaultQuitDelay    = 100 * time.Millisecond
	DefaultStopTimeout  = 5 * time.Second
)

// Config describes how to spawn the client process.
type Config struct {
	Command    string
	KeyFile    string
	ConfigFile string
	HomePath   string
	Args       []string
	// BaseEnv is the environment Env is appended to. Nil inherits the
	// bridge's own environment.
	BaseEnv []string
	Env     []string

	// PTY runs the process under a pseudo-terminal. Stderr is merged into
	// stdout in that mode.
	PTY bool

	// Trace logs every chunk moved over the pipes.
	Trace bool

	StartupGrace time.Duration
	QuitDelay    time.Duration
	StopTimeout  time.Duration
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Command == "" {
		c.Command = DefaultCommand
	}
	if c.KeyFile == "" {
		c.KeyFile = DefaultKeyFile
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigFile
	}
	if c.HomePath == "" {
		c.HomePath = DefaultHomePath
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = DefaultStartupGrace
	}
	if c.QuitDelay <= 0 {
		c.QuitDelay = DefaultQuitDelay
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Validate checks that the process can be described.
func (c Config) Validate() error {
	if c.Command == "" {
		return errors.New("transport: command is required")
	}
	return nil
}

// CommandArgs returns the argument vector passed to the process:
// message numbering, config file, key file, then any extra arguments.
func (c Config) CommandArgs() []string {
	args := []string{"-N"}
	if c.ConfigFile != "" {
		args = append(args, "-c", c.ConfigFile)
	}
	if c.KeyFile != "" {
		args = append(args, "-k", c.KeyFile)
	}
	return append(args, c.Args...)
}
