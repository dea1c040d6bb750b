// Package app wires config, logging, storage, and the dispatch pipeline
// into a single runnable unit.
package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"dailybot/internal/config"
	"dailybot/internal/eventbus"
	"dailybot/internal/housekeeping"
	"dailybot/internal/notifier"
	"dailybot/internal/observability/debug"
	"dailybot/internal/observability/metrics"
	"dailybot/internal/reminder/dispatch"
	"dailybot/internal/reminder/store"
	"dailybot/internal/runtime/supervisor"
	"dailybot/internal/storage"
	"dailybot/internal/tasks"
	"dailybot/internal/transport"
	"dailybot/internal/transport/discord"
	logx "dailybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	db        *storage.DB
	wake      *store.WakeSignal
	entries   store.Store
	taskStore *tasks.Store
	tasksSvc  *tasks.Service

	adapter transport.Adapter
	notif   *notifier.Service
	loop    *dispatch.Loop
	keeper  *housekeeping.Service
	metrics *metrics.Registry
	debug   *debug.Service
}

func New(cfgPath string) (*App, error) {
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
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	wake := store.NewWakeSignal()
	entries := store.NewSQLite(db, wake, log.With(logx.String("comp", "store")))
	taskStore := tasks.NewStore(db)
	tasksSvc := tasks.NewService(taskStore, entries, log.With(logx.String("comp", "tasks")))

	adapter, err := discord.New(discord.Config{Token: cfg.Discord.Token},
		log.With(logx.String("comp", "discord")))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, adapter, log.With(logx.String("comp", "notifier")))

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	orch := dispatch.NewOrchestrator(entries, taskStore, log.With(logx.String("comp", "orchestrator")))
	loop := dispatch.NewLoop(dcfg, orch, notif, wake, bus, db,
		log.With(logx.String("comp", "dispatch")))

	hcfg, err := mapHousekeepingConfig(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	keeper := housekeeping.New(hcfg, entries, db, bus, log.With(logx.String("comp", "housekeeping")))

	reg := metrics.New(entries)
	gcfg, err := mapDebugConfig(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dbg := debug.New(gcfg, reg, log.With(logx.String("comp", "debug")))

	return &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		db:        db,
		wake:      wake,
		entries:   entries,
		taskStore: taskStore,
		tasksSvc:  tasksSvc,
		adapter:   adapter,
		notif:     notif,
		loop:      loop,
		keeper:    keeper,
		metrics:   reg,
		debug:     dbg,
	}, nil
}

// Tasks exposes the submission service for command surfaces.
func (a *App) Tasks() *tasks.Service { return a.tasksSvc }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	// Reject bad hot-reloads before they are committed.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHousekeepingConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDebugConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.sup.Go("config.watch", func(ctx context.Context) {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	})
	a.sup.Go("config.apply", a.applyReloads)
	a.sup.Go("metrics.watch", func(ctx context.Context) {
		a.metrics.Watch(ctx, a.bus, a.log.With(logx.String("comp", "metrics")))
	})
	a.sup.GoRestart("dispatch.loop", a.loop.Run)

	if err := a.keeper.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.debug.Start(); err != nil {
		return err
	}

	a.startWatchdog()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.keeper.Stop()
	a.debug.Stop(ctx)
	if a.sup != nil && !a.sup.Stop(ctx) {
		a.log.Warn("shutdown timed out; goroutines still running",
			logx.Int64("active", a.sup.Active()))
	}
	if err := a.adapter.Close(); err != nil {
		a.log.Warn("transport close failed", logx.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// applyReloads consumes committed config updates. Only logging applies
// in place; other sections take effect on restart.
func (a *App) applyReloads(ctx context.Context) {
	ch := a.cfgm.Subscribe(2)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// startWatchdog pings systemd at half the configured WatchdogSec interval.
// No-op outside a systemd unit with a watchdog.
func (a *App) startWatchdog() {
	period, err := daemon.SdWatchdogEnabled(false)
	if err != nil || period == 0 {
		return
	}
	interval := period / 2
	a.sup.Go("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}
