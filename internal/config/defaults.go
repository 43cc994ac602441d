package config

import "strings"

const (
	DefaultSweepSchedule = "0 */30 * * * *"
	DefaultNotifyAt      = "09:00"
	DefaultLeadDays      = 3
	DefaultStoragePath   = "./data/pantrybot.db"
)

// ApplyDefaults fills the zero values a hand-written file usually omits.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Scheduler.Enabled == nil {
		c.Scheduler.Enabled = ptr(true)
	}
	if strings.TrimSpace(c.Scheduler.SweepSchedule) == "" {
		c.Scheduler.SweepSchedule = DefaultSweepSchedule
	}
	if strings.TrimSpace(c.Scheduler.Timezone) == "" {
		c.Scheduler.Timezone = "Local"
	}
	if c.Notifier.Enabled == nil {
		c.Notifier.Enabled = ptr(true)
	}
	if strings.TrimSpace(c.Notifier.Channel) == "" {
		if c.Telegram.Enabled {
			c.Notifier.Channel = "telegram"
		} else {
			c.Notifier.Channel = "log"
		}
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Pantry.DefaultLeadDays == nil {
		c.Pantry.DefaultLeadDays = ptr(DefaultLeadDays)
	}
	if strings.TrimSpace(c.Pantry.DefaultNotifyAt) == "" {
		c.Pantry.DefaultNotifyAt = DefaultNotifyAt
	}
	if c.Pantry.MaxLeadDays == 0 {
		c.Pantry.MaxLeadDays = 30
	}
	if c.Pantry.WarningDays == 0 {
		c.Pantry.WarningDays = 3
	}
	if c.Pantry.MaxNameLength == 0 {
		c.Pantry.MaxNameLength = 100
	}
	if c.Pantry.MaxItems == 0 {
		c.Pantry.MaxItems = 500
	}
}

// BoolOr dereferences p, falling back to def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func ptr[T any](v T) *T { return &v }
