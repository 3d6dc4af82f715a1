// Package ecoledirecte polls the EcoleDirecte family portal on a schedule,
// diffs the results against the previous refresh, and emits one event per
// newly appeared grade, homework entry, and timetable slot.
package ecoledirecte

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cartable/internal/core"
	"cartable/internal/eventbus"
	"cartable/internal/storage"
	ed "cartable/pkg/ecoledirecte"
)

const pluginName = "ecoledirecte"

type Plugin struct {
	core.PluginBase

	mu    sync.Mutex
	cfg   Config
	coord *coordinator
	prev  *Snapshot
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return pluginName }

func (p *Plugin) ValidateConfig(raw json.RawMessage) error {
	cfg, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	return cfg.validate()
}

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.InitBase(ctx, pluginName, deps)
	return p.applyConfig(deps.Config)
}

func (p *Plugin) Start(ctx context.Context) error {
	go p.watchEvents(p.Context())
	return p.schedule()
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	if err := p.applyConfig(raw); err != nil {
		return err
	}
	return p.schedule()
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.StopBase()
	return nil
}

func (p *Plugin) applyConfig(raw json.RawMessage) error {
	cfg, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	client := ed.NewClient(ed.Config{BaseURL: cfg.APIBaseURL})

	p.mu.Lock()
	p.cfg = cfg
	p.coord = newCoordinator(client, p.Log(), cfg.Username, cfg.Password)
	p.mu.Unlock()
	return nil
}

// schedule (re-)registers the refresh tick; Every upserts by task name so
// interval changes on hot reload just replace the schedule.
func (p *Plugin) schedule() error {
	p.mu.Lock()
	every := time.Duration(p.cfg.refreshMinutes()) * time.Minute
	p.mu.Unlock()
	return p.Every("refresh", every, 2*time.Minute, p.runTick)
}

// runTick executes one refresh. Errors are returned so the scheduler can
// retry and record history; the previous snapshot stays the baseline on
// failure.
func (p *Plugin) runTick(ctx context.Context) error {
	p.mu.Lock()
	coord := p.coord
	prev := p.prev
	p.mu.Unlock()

	if coord == nil {
		return fmt.Errorf("not configured")
	}

	snap, events, err := coord.Refresh(ctx, prev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.prev = snap
	p.mu.Unlock()

	svcs := p.Services()
	if svcs != nil && svcs.State != nil {
		svcs.State.Replace("ed:", snap.export("ed:"))
	}

	for _, ev := range events {
		p.emit(ctx, ev)
	}

	p.Log().Info("refresh done",
		slog.Int("students", len(snap.Students)),
		slog.Int("events", len(events)))
	return nil
}

// emit publishes one event on the bus (delivery to Telegram happens in
// watchEvents) and appends it to the audit trail.
func (p *Plugin) emit(ctx context.Context, ev Event) {
	svcs := p.Services()
	if svcs == nil {
		return
	}

	if svcs.Bus != nil {
		svcs.Bus.Publish(eventbus.Event{Type: BusEventType, Time: time.Now(), Data: ev})
	}

	if svcs.Store != nil {
		data, err := json.Marshal(ev.Data)
		if err == nil {
			err = svcs.Store.AppendEvent(ctx, storage.EventEntry{
				At:        time.Now(),
				Plugin:    pluginName,
				ChildName: ev.ChildName,
				Type:      ev.Type,
				DataJSON:  string(data),
			})
		}
		if err != nil {
			p.Log().Warn("event persist failed", slog.Any("err", err))
		}
	}
}
