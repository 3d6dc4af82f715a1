package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cartable/internal/transport"
)

// PluginBase carries the boilerplate shared by plugins: logger, deps,
// lifetime context, and helpers for scheduling and notifications. Embed it
// and call InitBase from Init.
type PluginBase struct {
	name string
	log  *slog.Logger
	deps PluginDeps

	ctx    context.Context
	cancel context.CancelFunc

	tasks []string
}

func (b *PluginBase) InitBase(ctx context.Context, name string, deps PluginDeps) {
	b.name = name
	b.deps = deps
	b.log = deps.Logger
	if b.log == nil {
		b.log = slog.Default()
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
}

func (b *PluginBase) Context() context.Context { return b.ctx }
func (b *PluginBase) Log() *slog.Logger        { return b.log }
func (b *PluginBase) Deps() PluginDeps         { return b.deps }
func (b *PluginBase) Services() *Services      { return b.deps.Services }

// StopBase cancels the plugin context and removes scheduled tasks.
func (b *PluginBase) StopBase() {
	if svcs := b.deps.Services; svcs != nil && svcs.Scheduler != nil {
		for _, t := range b.tasks {
			svcs.Scheduler.Remove(t)
		}
	}
	b.tasks = nil
	if b.cancel != nil {
		b.cancel()
	}
}

// Every schedules fn at a fixed interval under a plugin-scoped task name.
// Re-registering the same task name replaces the previous schedule.
func (b *PluginBase) Every(task string, every, timeout time.Duration, fn func(ctx context.Context) error) error {
	svcs := b.deps.Services
	if svcs == nil || svcs.Scheduler == nil {
		return fmt.Errorf("scheduler unavailable")
	}
	full := b.taskName(task)
	if _, err := svcs.Scheduler.AddInterval(full, every, timeout, fn); err != nil {
		return err
	}
	for _, t := range b.tasks {
		if t == full {
			return nil
		}
	}
	b.tasks = append(b.tasks, full)
	return nil
}

func (b *PluginBase) taskName(task string) string {
	return fmt.Sprintf("plugin:%s:%s", b.name, task)
}

// Notify queues text for the default chat configured at the app level.
func (b *PluginBase) Notify(ctx context.Context, text string) error {
	return b.NotifyPriority(ctx, text, 0)
}

func (b *PluginBase) NotifyPriority(ctx context.Context, text string, priority int) error {
	svcs := b.deps.Services
	if svcs == nil || svcs.Notifier == nil {
		return fmt.Errorf("notifier unavailable")
	}
	return svcs.Notifier.Notify(ctx, transport.Notification{
		Channel:  b.name,
		Priority: priority,
		Target: transport.ChatTarget{
			ChatID:   b.deps.Telegram.ChatID,
			ThreadID: b.deps.Telegram.ThreadID,
		},
		Text: text,
	})
}

// DecodePluginConfig decodes a plugin's raw config section strictly into T.
// A missing section yields the zero value.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode plugin config: %w", err)
	}
	return out, nil
}
