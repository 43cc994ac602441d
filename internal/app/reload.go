package app

import (
	"context"
	"strings"
	"time"

	"pantrybot/internal/config"
	"pantrybot/internal/eventbus"
	logx "pantrybot/pkg/logx"
)

// reloadLoop applies committed configs to the running components. Sections
// read only at startup are logged and left alone.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the latest config of a burst
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.apply(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections := config.ChangedSections(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := logx.String("changed", strings.Join(sections, ","))
	if config.RestartRequired(prev, next) {
		a.log.Warn("config change needs a restart to take full effect", changed)
	}

	a.logs.Apply(mapLoggingConfig(next))

	if slots, err := mapNotifySlots(next); err != nil {
		a.log.Warn("invalid sweep schedule; keeping previous pantry config", logx.Err(err))
	} else if pcfg, err := mapPantryConfig(next, slots); err != nil {
		a.log.Warn("invalid pantry config; keeping previous", logx.Err(err))
	} else {
		a.pantry.Apply(pcfg)
	}

	if a.router != nil {
		a.router.SetAdmins(next.Telegram.AdminUserIDs)
	}

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	// scheduler stops before the engine and starts after it
	prevSched := a.sched.Enabled()
	nextSched := config.BoolOr(next.Scheduler.Enabled, true)
	if prevSched && !nextSched {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	if ecfg, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ecfg)
		a.engine.Start(ctx)
	}
	a.sched.Apply(mapSchedulerConfig(next, a.tz))
	if prev.Scheduler.SweepSchedule != next.Scheduler.SweepSchedule || prev.Scheduler.SweepTimeout != next.Scheduler.SweepTimeout {
		if err := a.addSweep(next); err != nil {
			a.log.Warn("sweep schedule not updated", logx.Err(err))
		}
	}
	if !prevSched && nextSched {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigUpdated, Data: sections})
	a.log.Info("config reloaded", changed)
}
