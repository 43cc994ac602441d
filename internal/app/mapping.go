package app

import (
	"fmt"
	"strings"
	"time"

	"pantrybot/internal/config"
	"pantrybot/internal/notifier"
	"pantrybot/internal/pantry"
	"pantrybot/internal/storage"
	"pantrybot/internal/task/engine"
	"pantrybot/internal/task/scheduler"
	telegram "pantrybot/internal/transport/telegram/adapter"
	"pantrybot/internal/transport/telegram/router"
	logx "pantrybot/pkg/logx"
)

const (
	sweepTaskName       = "expiry.sweep"
	defaultSweepTimeout = 5 * time.Minute
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		NoColor: cfg.Logging.NoColor,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "memory":
		return storage.Config{Driver: driver}, nil
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	workers := te.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := te.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	historySize := te.HistorySize
	if historySize <= 0 {
		historySize = 100
	}
	defTimeout, err := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, defaultSweepTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		// scheduled work has nowhere else to run
		Enabled:        config.BoolOr(cfg.Scheduler.Enabled, true),
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    historySize,
		RetryMax:       te.RetryMax,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config, timezone string) scheduler.Config {
	return scheduler.Config{
		Enabled:  config.BoolOr(cfg.Scheduler.Enabled, true),
		Timezone: timezone,
	}
}

func mapSweepTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("scheduler.sweep_timeout", cfg.Scheduler.SweepTimeout, defaultSweepTimeout)
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMax, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", nc.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       config.BoolOr(nc.Enabled, true),
		Channel:       nc.Channel,
		SenderName:    nc.SenderName,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		Burst:         nc.Burst,
		RetryMax:      nc.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMax,
		SendTimeout:   sendTimeout,
		HistorySize:   nc.HistorySize,
	}, nil
}

// mapNotifySlots returns the clock minutes the sweep reaches, or nil when
// the scheduler is off and no minute is special.
func mapNotifySlots(cfg *config.Config) (pantry.Slots, error) {
	grid, err := scheduler.ParseMinuteGrid(cfg.Scheduler.SweepSchedule)
	if err != nil {
		return nil, fmt.Errorf("scheduler.sweep_schedule: %w", err)
	}
	if !config.BoolOr(cfg.Scheduler.Enabled, true) {
		return nil, nil
	}
	return grid, nil
}

func mapPantryConfig(cfg *config.Config, slots pantry.Slots) (pantry.Config, error) {
	pc := cfg.Pantry
	notifyAt, err := storage.ParseClock(strings.TrimSpace(pc.DefaultNotifyAt))
	if err != nil {
		return pantry.Config{}, fmt.Errorf("pantry.default_notify_at: %w", err)
	}
	if slots != nil && !slots.Fires(notifyAt.Hour, notifyAt.Minute) {
		return pantry.Config{}, fmt.Errorf("pantry.default_notify_at: %s is never reached by scheduler.sweep_schedule %q",
			storage.FormatClock(notifyAt), cfg.Scheduler.SweepSchedule)
	}
	lead := config.DefaultLeadDays
	if pc.DefaultLeadDays != nil {
		lead = *pc.DefaultLeadDays
	}
	return pantry.Config{
		DefaultLeadDays: lead,
		DefaultNotifyAt: notifyAt,
		MaxLeadDays:     pc.MaxLeadDays,
		WarningDays:     pc.WarningDays,
		MaxNameLength:   pc.MaxNameLength,
		MaxItems:        pc.MaxItems,
		NotifySlots:     slots,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapRouterConfig(cfg *config.Config) (router.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.command_timeout", cfg.Telegram.CommandTimeout, 15*time.Second)
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		Admins:         cfg.Telegram.AdminUserIDs,
		DefaultTimeout: timeout,
	}, nil
}
