package cron

import (
	"errors"
	"fmt"

	icron "github.com/flemzord/tgbridge/internal/cron"
)

const (
	defaultContactsSchedule = "*/15 * * * *"
	defaultMessagesSchedule = "* * * * *"
	defaultEventBuffer      = 64
)

// Config holds the sync module configuration.
type Config struct {
	SiteName         string `yaml:"site_name"`
	ContactFirstName string `yaml:"contact_first_name"`
	ContactsSchedule string `yaml:"contacts_schedule"`
	MessagesSchedule string `yaml:"messages_schedule"`
	EventBuffer      int    `yaml:"event_buffer"`
	// RunOnStart runs both jobs once when the module starts.
	RunOnStart bool `yaml:"run_on_start"`
}

func (c *Config) defaults() {
	if c.ContactsSchedule == "" {
		c.ContactsSchedule = defaultContactsSchedule
	}
	if c.MessagesSchedule == "" {
		c.MessagesSchedule = defaultMessagesSchedule
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
}

func (c *Config) validate() error {
	var errs []error
	if err := icron.ValidateSchedule(c.ContactsSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sync: contacts_schedule: %w", err))
	}
	if err := icron.ValidateSchedule(c.MessagesSchedule); err != nil {
		errs = append(errs, fmt.Errorf("sync: messages_schedule: %w", err))
	}
	return errors.Join(errs...)
}
