package ecoledirecte

import (
	"context"
	"log/slog"
)

// watchEvents renders portal events from the bus into Telegram messages.
// Riding the bus (rather than notifying inline from the refresh tick) keeps
// delivery decoupled: other subscribers see the same events, and a slow
// notifier never stalls a refresh.
func (p *Plugin) watchEvents(ctx context.Context) {
	svcs := p.Services()
	if svcs == nil || svcs.Bus == nil {
		return
	}
	ch, unsub := svcs.Bus.Subscribe(64, BusEventType)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case be, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := be.Data.(Event)
			if !ok {
				continue
			}

			p.mu.Lock()
			wanted := p.cfg.Notify
			p.mu.Unlock()
			if !wanted {
				continue
			}

			if err := p.Notify(ctx, ev.summary()); err != nil {
				p.Log().Debug("notify skipped", slog.Any("err", err))
			}
		}
	}
}
