package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Plugin is the minimal lifecycle every plugin implements.
type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ConfigurablePlugin receives its raw config section on every commit where
// the section changed. Returning an error does not stop the plugin; the
// error is logged and the previous behavior continues.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// ConfigValidator lets a plugin reject a config before it is committed.
type ConfigValidator interface {
	ValidateConfig(raw json.RawMessage) error
}

type PluginDeps struct {
	Logger   *slog.Logger
	Config   json.RawMessage
	Telegram TelegramConfig
	Services *Services
}

type pluginRun struct {
	p           Plugin
	cancel      context.CancelFunc
	lastRawHash uint64
}

// PluginManager reconciles registered plugins against the committed config:
// enabling, disabling, and pushing config updates without restarting the
// process.
type PluginManager struct {
	log      *slog.Logger
	services *Services

	mu         sync.Mutex
	registered []Plugin
	running    map[string]*pluginRun
}

func NewPluginManager(log *slog.Logger, services *Services) *PluginManager {
	return &PluginManager{
		log:      log.With(slog.String("comp", "plugins")),
		services: services,
		running:  map[string]*pluginRun{},
	}
}

func (pm *PluginManager) Register(p Plugin) {
	pm.mu.Lock()
	pm.registered = append(pm.registered, p)
	pm.mu.Unlock()
}

// ValidateConfig runs every registered ConfigValidator against its section.
// Used as part of the ConfigManager validator so bad plugin config never
// commits.
func (pm *PluginManager) ValidateConfig(cfg *Config) error {
	pm.mu.Lock()
	plugins := append([]Plugin(nil), pm.registered...)
	pm.mu.Unlock()

	for _, p := range plugins {
		v, ok := p.(ConfigValidator)
		if !ok {
			continue
		}
		pc, exists := cfg.Plugins[p.Name()]
		if !exists || !pc.Enabled {
			continue
		}
		if err := v.ValidateConfig(pc.Config); err != nil {
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// Reconcile brings running plugins in line with cfg. Called on startup and
// after every config commit.
func (pm *PluginManager) Reconcile(ctx context.Context, cfg *Config, telegram TelegramConfig) {
	pm.mu.Lock()
	plugins := append([]Plugin(nil), pm.registered...)
	pm.mu.Unlock()

	for _, p := range plugins {
		name := p.Name()
		pc, exists := cfg.Plugins[name]
		wantRunning := exists && pc.Enabled

		pm.mu.Lock()
		run, isRunning := pm.running[name]
		pm.mu.Unlock()

		switch {
		case wantRunning && !isRunning:
			pm.startPlugin(ctx, p, pc.Config, telegram)

		case !wantRunning && isRunning:
			pm.stopPlugin(name, run)

		case wantRunning && isRunning:
			h := canonicalHashJSON(pc.Config)
			if h == run.lastRawHash {
				continue
			}
			run.lastRawHash = h
			if cp, ok := p.(ConfigurablePlugin); ok {
				err := safeCall(fmt.Sprintf("%s.OnConfigChange", name), func() error {
					return cp.OnConfigChange(ctx, pc.Config)
				})
				if err != nil {
					pm.log.Error("plugin config update failed", slog.String("plugin", name), slog.Any("err", err))
				} else {
					pm.log.Info("plugin config updated", slog.String("plugin", name))
				}
			} else {
				// No live-update support: restart with the new section.
				pm.stopPlugin(name, run)
				pm.startPlugin(ctx, p, pc.Config, telegram)
			}
		}
	}
}

func (pm *PluginManager) startPlugin(ctx context.Context, p Plugin, raw json.RawMessage, telegram TelegramConfig) {
	name := p.Name()
	pctx, cancel := context.WithCancel(ctx)

	deps := PluginDeps{
		Logger:   pm.log.With(slog.String("plugin", name)),
		Config:   raw,
		Telegram: telegram,
		Services: pm.services,
	}

	err := safeCall(fmt.Sprintf("%s.Init", name), func() error { return p.Init(pctx, deps) })
	if err == nil {
		err = safeCall(fmt.Sprintf("%s.Start", name), func() error { return p.Start(pctx) })
	}
	if err != nil {
		pm.log.Error("plugin start failed", slog.String("plugin", name), slog.Any("err", err))
		cancel()
		return
	}

	pm.mu.Lock()
	pm.running[name] = &pluginRun{p: p, cancel: cancel, lastRawHash: canonicalHashJSON(raw)}
	pm.mu.Unlock()
	pm.log.Info("plugin started", slog.String("plugin", name))
}

func (pm *PluginManager) stopPlugin(name string, run *pluginRun) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := safeCall(fmt.Sprintf("%s.Stop", name), func() error { return run.p.Stop(stopCtx) })
	cancel()
	run.cancel()
	if err != nil {
		pm.log.Warn("plugin stop returned error", slog.String("plugin", name), slog.Any("err", err))
	}

	pm.mu.Lock()
	delete(pm.running, name)
	pm.mu.Unlock()
	pm.log.Info("plugin stopped", slog.String("plugin", name))
}

// StopAll stops every running plugin; used during app shutdown.
func (pm *PluginManager) StopAll() {
	pm.mu.Lock()
	running := make(map[string]*pluginRun, len(pm.running))
	for k, v := range pm.running {
		running[k] = v
	}
	pm.mu.Unlock()

	for name, run := range running {
		pm.stopPlugin(name, run)
	}
}

// safeCall converts a panic in plugin code into an error so one broken
// plugin cannot take the host down.
func safeCall(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v\n%s", what, r, debug.Stack())
		}
	}()
	return fn()
}
