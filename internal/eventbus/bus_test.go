package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "x", Data: 42})

	select {
	case e := <-ch:
		if e.Type != "x" {
			t.Fatalf("Type = %q, want x", e.Type)
		}
		if e.Data != 42 {
			t.Fatalf("Data = %v, want 42", e.Data)
		}
		if e.Time.IsZero() {
			t.Fatal("expected Time to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, "wanted")
	defer unsub()

	b.Publish(Event{Type: "noise"})
	b.Publish(Event{Type: "wanted"})
	b.Publish(Event{Type: "noise"})

	select {
	case e := <-ch:
		if e.Type != "wanted" {
			t.Fatalf("Type = %q, want wanted", e.Type)
		}
	default:
		t.Fatal("wanted event not delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("filtered event leaked through: %q", e.Type)
	default:
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // buffer full, must not block

	e := <-ch
	if e.Type != "a" {
		t.Fatalf("Type = %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	default:
	}
}

func TestPublishAfterUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Must not panic even though the channel is closed.
	b.Publish(Event{Type: "x"})
}

func TestUnsubscribedChannelCloses(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}
