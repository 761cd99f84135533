package gateway

import "time"

const (
	defaultBind            = "127.0.0.1:8080"
	defaultAuthRate        = 5
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config is the "gateway.http" block of the configuration file.
type Config struct {
	Bind string     `yaml:"bind"`
	Auth AuthConfig `yaml:"auth"`

	// AuthRate caps requests per second from a single client that fail
	// authentication.
	AuthRate float64 `yaml:"auth_rate"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = defaultBind
	}
	if c.AuthRate <= 0 {
		c.AuthRate = defaultAuthRate
	}
	setDuration(&c.ReadTimeout, defaultReadTimeout)
	setDuration(&c.WriteTimeout, defaultWriteTimeout)
	setDuration(&c.ShutdownTimeout, defaultShutdownTimeout)
}

func setDuration(d *time.Duration, fallback time.Duration) {
	if *d <= 0 {
		*d = fallback
	}
}

// AuthConfig guards /api and /events. Either a bearer token or a complete
// basic credential pair enables it.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether requests must authenticate.
func (a AuthConfig) IsConfigured() bool {
	if a.BearerToken != "" {
		return true
	}
	return a.BasicUser != "" && a.BasicPass != ""
}
