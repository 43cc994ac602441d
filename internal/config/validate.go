package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the values that need parsing.
// Cron schedules are checked by the scheduler, not here.
func (c *Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		for _, fe := range ves {
			errs = append(errs, fieldError(fe))
		}
	}

	if _, err := LoadLocation(c.Scheduler.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
	}
	if s := strings.TrimSpace(c.Pantry.DefaultNotifyAt); s != "" {
		if _, err := time.Parse("15:04", s); err != nil {
			errs = append(errs, fmt.Errorf("pantry.default_notify_at: want HH:MM, got %q", s))
		}
	}
	if c.Pantry.DefaultLeadDays != nil && c.Pantry.MaxLeadDays > 0 && *c.Pantry.DefaultLeadDays > c.Pantry.MaxLeadDays {
		errs = append(errs, fmt.Errorf("pantry.default_lead_days: %d exceeds max_lead_days %d", *c.Pantry.DefaultLeadDays, c.Pantry.MaxLeadDays))
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn: required for driver %s (or set %s)", c.Storage.Driver, EnvStorageDSN))
		}
	}
	if c.Notifier.Channel == "telegram" && !c.Telegram.Enabled {
		errs = append(errs, errors.New("notifier.channel: telegram requires telegram.enabled"))
	}

	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"telegram.command_timeout", c.Telegram.CommandTimeout},
		{"scheduler.sweep_timeout", c.Scheduler.SweepTimeout},
		{"task_engine.default_timeout", c.TaskEngine.DefaultTimeout},
		{"notifier.retry_base", c.Notifier.RetryBase},
		{"notifier.retry_max_delay", c.Notifier.RetryMaxDelay},
		{"notifier.send_timeout", c.Notifier.SendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.section.field"; drop the root type.
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %s=%s (value %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: failed %s", path, fe.Tag())
}

// LoadLocation resolves the operating timezone. Empty and "Local" mean the
// process zone.
func LoadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	case "UTC", "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(strings.TrimSpace(name))
}
