// Package core wires the daemon together: config, logging, the timer
// engine, the job runner, storage, and the optional pprof server.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tickd/internal/config"
	"tickd/internal/eventbus"
	"tickd/internal/jobs"
	"tickd/internal/observability/pprof"
	"tickd/internal/runtime/supervisor"
	"tickd/internal/storage"
	"tickd/pkg/logx"
	"tickd/pkg/sdnotify"
	"tickd/pkg/timer"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	tm     *timer.Timer
	runner *jobs.Runner
	store  storage.Store
	ppf    *pprof.Service

	watchdog *watchdogSub
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	tm := timer.New(
		timer.WithLogger(log.With(logx.String("comp", "timer"))),
		timer.WithBus(bus),
	)

	scfg, err := storageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(scfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	pcfg, err := pprof.FromApp(cfg.Pprof)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		tm:      tm,
		store:   store,
		ppf:     pprof.New(pcfg, log),
	}, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Validate before commit so a bad hot-reload never reaches Apply.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Storage != nil {
			switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
			case "", "none", "file", "sqlite", "sqlite3":
			default:
				return fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver)
			}
		}
		_, err := pprof.FromApp(cfg.Pprof)
		return err
	})

	if err := a.tm.Start(); err != nil {
		return err
	}

	cfg := a.cfgm.Get()

	a.runner = jobs.NewRunner(a.sup.Context(),
		a.log.With(logx.String("comp", "jobs")), a.tm, a.bus, a.store)
	if err := a.runner.Apply(cfg.Jobs); err != nil {
		return err
	}

	a.applyWatchdog(cfg.Watchdog.Enabled)
	a.ppf.Start(a.sup.Context())

	a.sup.Go0("events.log", a.drainEvents)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	sdnotify.Ready()
	a.log.Info("started",
		logx.Int("jobs", len(a.runner.Names())),
		logx.Bool("storage", a.store != nil),
		logx.Bool("pprof", cfg.Pprof.Enabled))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	sdnotify.Stopping()
	a.log.Info("stopping")

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "jobs", time.Second, func(context.Context) error {
		a.runner.Stop()
		return nil
	})
	a.step(ctx, "timer", 2*time.Second, func(context.Context) error {
		a.tm.Shutdown()
		return nil
	})
	a.step(ctx, "pprof", 2*time.Second, func(c context.Context) error {
		a.ppf.Stop(c)
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	if a.store != nil {
		a.step(ctx, "storage", time.Second, func(context.Context) error {
			return a.store.Close()
		})
	}

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown phase with an upper bound so a stuck component
// cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

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
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end",
			logx.String("name", name),
			logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)))
	}
}

// drainEvents logs bus traffic at debug level so a verbose run shows
// every firing and job outcome without extra plumbing.
func (a *App) drainEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == eventbus.KindTimerPanic || ev.Kind == eventbus.KindJobFailed {
				a.log.Debug("event", logx.String("kind", ev.Kind), logx.Any("data", ev.Data))
			} else if a.log.Enabled(logx.LevelTrace) {
				a.log.Trace("event", logx.String("kind", ev.Kind), logx.Any("data", ev.Data))
			}
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			a.applyReload(ctx, newCfg, sections)
			lastApplied = newCfg

			if len(sections) > 0 {
				a.log.Info("config reloaded",
					append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if err := a.runner.Apply(cfg.Jobs); err != nil {
		a.log.Warn("job reload incomplete", logx.Err(err))
	}

	a.applyWatchdog(cfg.Watchdog.Enabled)

	if pcfg, err := pprof.FromApp(cfg.Pprof); err == nil {
		a.ppf.Reconfigure(ctx, pcfg)
	} else {
		a.log.Warn("pprof config rejected", logx.Err(err))
	}

	// Storage cannot be swapped while run records are in flight.
	for _, s := range sections {
		if s == "storage" {
			a.log.Warn("storage config changed; restart required to apply")
		}
	}
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		KeepRuns:    cfg.Storage.KeepRuns,
	}, nil
}
