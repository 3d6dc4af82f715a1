// Package eventbus decouples the refresh pipeline from its consumers: the
// integration plugin publishes typed events, the notifier and any future
// listeners subscribe to just the types they care about.
package eventbus

import (
	"sync"
	"time"
)

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Slow subscribers lose events once their buffer fills.
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	// Subscribe delivers events whose Type is in types; with no types given,
	// every event is delivered. The returned unsubscribe is idempotent and
	// closes the channel.
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{}
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	types  map[string]struct{} // nil matches everything
	closed bool
}

// offer delivers e if the subscriber wants it and has buffer room.
// The closed flag is checked under the same lock that close() takes, so a
// concurrent unsubscribe can never race a send onto a closed channel.
func (s *subscriber) offer(e Event) {
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

type memBus struct {
	mu   sync.RWMutex
	subs []*subscriber
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		s.offer(e)
	}
}

func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	// Copy-on-write so Publish can iterate without holding the lock.
	next := make([]*subscriber, len(b.subs), len(b.subs)+1)
	copy(next, b.subs)
	b.subs = append(next, sub)
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		kept := make([]*subscriber, 0, len(b.subs))
		for _, s := range b.subs {
			if s != sub {
				kept = append(kept, s)
			}
		}
		b.subs = kept
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, unsub
}
