package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cartable/internal/adapters/telegram"
	"cartable/internal/eventbus"
	"cartable/internal/services/logging"
	"cartable/internal/services/notify"
	"cartable/internal/services/scheduler"
	"cartable/internal/statestore"
	"cartable/internal/storage"
	"cartable/internal/transport"
	"cartable/pkg/logx"
)

// App wires config, services, and plugins into one runnable unit.
type App struct {
	cfgMgr *ConfigManager
	logSvc *logging.Service
	log    *slog.Logger

	sender transport.Sender
	store  storage.Store
	bus    eventbus.Bus
	state  *statestore.Store
	sched  *scheduler.Service
	notif  *notify.Service
	pm     *PluginManager

	sup        *Supervisor
	stopReason StopReason
}

// NewApp loads the config file and constructs all services. Plugins are
// registered afterwards via RegisterPlugin, then Start brings everything up.
func NewApp(configPath string) (*App, error) {
	bootLog := logx.NewConsole("info")
	cfgMgr := NewConfigManager(configPath, bootLog)
	if err := cfgMgr.Load(); err != nil {
		return nil, fmt.Errorf("initial config load: %w", err)
	}
	cfg := cfgMgr.Get()

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig(cfg.Logging.File),
	})

	app := &App{
		cfgMgr: cfgMgr,
		logSvc: logSvc,
		log:    log,
		bus:    eventbus.New(),
		state:  statestore.New(),
	}

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout.Std(),
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	app.store = store

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		sender, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token}, log.With(slog.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		app.sender = sender
	} else {
		log.Warn("telegram token not configured; notifications disabled")
	}

	schedCfg, err := schedulerConfigFrom(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	app.sched = scheduler.New(schedCfg, log.With(slog.String("comp", "scheduler")), app.bus)

	notifCfg, err := notifyConfigFrom(cfg.Notify)
	if err != nil {
		return nil, err
	}
	app.notif = notify.New(notifCfg, app.sender, log.With(slog.String("comp", "notify")), app.bus, app.store)

	app.pm = NewPluginManager(log, &Services{
		Bus:       app.bus,
		Scheduler: app.sched,
		Notifier:  app.notif,
		State:     app.state,
		Store:     app.store,
	})

	cfgMgr.SetValidator(func(c *Config) error {
		if _, err := schedulerConfigFrom(c.Scheduler); err != nil {
			return err
		}
		if _, err := notifyConfigFrom(c.Notify); err != nil {
			return err
		}
		return app.pm.ValidateConfig(c)
	})

	return app, nil
}

func (a *App) Logger() *slog.Logger          { return a.log }
func (a *App) RegisterPlugin(p Plugin)       { a.pm.Register(p) }
func (a *App) Bus() eventbus.Bus             { return a.bus }
func (a *App) Scheduler() *scheduler.Service { return a.sched }

func schedulerConfigFrom(c SchedulerConfig) (scheduler.Config, error) {
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return scheduler.Config{
		Enabled:        c.Enabled,
		Workers:        c.Workers,
		DefaultTimeout: c.DefaultTimeout.Std(),
		HistorySize:    c.HistorySize,
		Timezone:       c.Timezone,
		RetryMax:       c.RetryMax,
	}, nil
}

func notifyConfigFrom(c NotifyConfig) (notify.Config, error) {
	return notify.Config{
		Enabled:     c.Enabled,
		Workers:     c.Workers,
		QueueSize:   c.QueueSize,
		RatePerSec:  c.RatePerSec,
		RetryMax:    c.RetryMax,
		DedupWindow: c.DedupWindow.Std(),
	}, nil
}

// Start brings up services, reconciles plugins, and begins watching the
// config file. It returns immediately; use Wait to block.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}

	a.sup = NewSupervisor(ctx, a.log)
	supCtx := a.sup.Context()

	if a.sched.Enabled() {
		a.sched.Start(supCtx)
	}
	a.notif.Start(supCtx)

	a.pm.Reconcile(supCtx, cfg, cfg.Telegram)

	cfgCh, cfgCancel := a.cfgMgr.Subscribe()
	a.sup.Go0("config.fanout", func(ctx context.Context) {
		defer cfgCancel()
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-cfgCh:
				if !ok {
					return
				}
				a.applyConfig(ctx, c)
			}
		}
	})

	a.sup.Go("config.watch", func(ctx context.Context) error {
		err := a.cfgMgr.Watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a committed config into the running services.
func (a *App) applyConfig(ctx context.Context, cfg *Config) {
	a.logSvc.Apply(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logging.FileConfig(cfg.Logging.File),
	})

	if sc, err := schedulerConfigFrom(cfg.Scheduler); err == nil {
		a.sched.Apply(sc)
		if sc.Enabled {
			a.sched.Start(ctx)
		} else {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
		}
	}
	if nc, err := notifyConfigFrom(cfg.Notify); err == nil {
		a.notif.Apply(nc)
		if nc.Enabled {
			a.notif.Start(ctx)
		}
	}

	a.pm.Reconcile(ctx, cfg, cfg.Telegram)
	a.bus.Publish(eventbus.Event{Type: "config.reloaded", Time: time.Now()})
}

// Wait blocks until the supervisor unwinds (signal or fatal error).
func (a *App) Wait() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Wait()
}

// Stop shuts everything down in dependency order, bounded by ctx.
func (a *App) Stop(ctx context.Context, reason StopReason) {
	a.stopReason = reason
	a.log.Info("app stopping", slog.String("reason", string(reason)))

	a.pm.StopAll()

	a.sched.Stop(ctx)
	a.notif.Stop(ctx)

	if a.sender != nil {
		_ = a.sender.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}

	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait()
	}
	a.logSvc.Close()
	a.log.Info("app stopped")
}
