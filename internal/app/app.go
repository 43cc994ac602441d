package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pantrybot/internal/config"
	"pantrybot/internal/eventbus"
	"pantrybot/internal/expiry"
	"pantrybot/internal/notifier"
	"pantrybot/internal/pantry"
	rtsup "pantrybot/internal/runtime/supervisor"
	"pantrybot/internal/storage"
	"pantrybot/internal/task/engine"
	"pantrybot/internal/task/scheduler"
	kit "pantrybot/internal/transport"
	telegram "pantrybot/internal/transport/telegram/adapter"
	"pantrybot/internal/transport/telegram/router"
	logx "pantrybot/pkg/logx"
	pantrycmd "pantrybot/plugins/pantry"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	loc   *time.Location
	// tz is the operating timezone read at startup. The calendar is built
	// from it once.
	tz string

	adapter *telegram.Adapter
	router  *router.Router
	cmds    []router.Command

	engine *engine.Service
	sched  *scheduler.Service
	notif  *notifier.Service
	expiry *expiry.Service
	pantry *pantry.Service

	updates chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
		bus:  eventbus.New(),
		tz:   cfg.Scheduler.Timezone,
	}
	if err := a.build(ctx, cfg, log); err != nil {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, log logx.Logger) error {
	loc, err := config.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	a.loc = loc

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store
	a.log.Info("storage ready", logx.String("driver", sc.Driver))

	// keep the interface nil when telegram is off
	var transport kit.Adapter
	if cfg.Telegram.Enabled {
		acfg, err := mapAdapterConfig(cfg)
		if err != nil {
			return err
		}
		ad, err := telegram.New(acfg, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		a.adapter = ad
		transport = ad
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	sender, err := notifier.NewSender(ncfg.Channel, transport, log.With(logx.String("comp", "notifier")))
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, sender, loc, log, a.bus)

	cal := expiry.NewCalendar(loc)
	a.expiry = expiry.New(store, a.notif, cal,
		expiry.WithLogger(log.With(logx.String("comp", "expiry"))),
		expiry.WithBus(a.bus),
	)

	slots, err := mapNotifySlots(cfg)
	if err != nil {
		return err
	}
	pcfg, err := mapPantryConfig(cfg, slots)
	if err != nil {
		return err
	}
	a.pantry = pantry.New(pcfg, store, a.expiry, cal, pantry.WithLogger(log.With(logx.String("comp", "pantry"))))

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return err
	}
	a.engine = engine.New(engCfg, log.With(logx.String("comp", "taskengine")), a.bus)
	a.sched = scheduler.New(mapSchedulerConfig(cfg, a.tz), a.engine, log.With(logx.String("comp", "scheduler")), a.bus)
	if err := a.addSweep(cfg); err != nil {
		return err
	}

	if a.adapter != nil {
		rcfg, err := mapRouterConfig(cfg)
		if err != nil {
			return err
		}
		a.router = router.New(rcfg, a.adapter, log.With(logx.String("comp", "commands")))
		a.cmds = pantrycmd.New(a.pantry, a.expiry, loc, pantrycmd.WithDeliveries(a.notif)).Commands()
		size := cfg.Telegram.UpdateBuffer
		if size <= 0 {
			size = 256
		}
		a.updates = make(chan kit.Update, size)
	}
	return nil
}

// addSweep registers, or re-registers, the periodic expiry sweep. Only cron
// schedules are accepted since the sweep matches exact clock minutes.
func (a *App) addSweep(cfg *config.Config) error {
	if _, err := scheduler.ParseMinuteGrid(cfg.Scheduler.SweepSchedule); err != nil {
		return fmt.Errorf("scheduler.sweep_schedule: %w", err)
	}
	timeout, err := mapSweepTimeout(cfg)
	if err != nil {
		return err
	}
	return a.sched.AddSchedule(sweepTaskName, cfg.Scheduler.SweepSchedule, timeout, a.runSweep)
}

func (a *App) runSweep(ctx context.Context, firedAt time.Time) error {
	_, err := a.expiry.RunTick(ctx, firedAt)
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	runCtx := a.sup.Context()
	a.notif.Start(runCtx)
	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	if a.adapter != nil {
		a.router.Register(runCtx, a.cmds...)
		if err := a.adapter.Start(runCtx, a.updates); err != nil {
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.updates)
		})
	} else {
		a.log.Warn("telegram disabled; running the sweep only")
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		logEvents(c, a.log.With(logx.String("comp", "events")), events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		if err := a.cfgm.Watch(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	a.log.Info("app started", logx.String("tz", a.loc.String()))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// A running sweep may still hand notices to the notifier, so the
	// notifier drains after the engine and before storage closes.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	if a.adapter != nil {
		step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	}
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// validateReload rejects a reloaded file whose sections would not map.
func validateReload(_ context.Context, cfg *config.Config) error {
	var errs []error
	if _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	slots, err := mapNotifySlots(cfg)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := mapPantryConfig(cfg, slots); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapRouterConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapSweepTimeout(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
