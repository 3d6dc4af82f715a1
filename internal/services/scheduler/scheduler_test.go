package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAddIntervalUpsertsByName(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, testLogger(), nil)

	job := func(ctx context.Context) error { return nil }
	if _, err := s.AddInterval("refresh", 30*time.Minute, time.Minute, job); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if _, err := s.AddInterval("refresh", 5*time.Minute, time.Minute, job); err != nil {
		t.Fatalf("AddInterval (again): %v", err)
	}

	snap := s.Status()
	if len(snap.Schedules) != 1 {
		t.Fatalf("expected 1 schedule after upsert, got %d", len(snap.Schedules))
	}
	if snap.Schedules[0].Spec != "@every 5m0s" {
		t.Fatalf("Spec = %q, want @every 5m0s", snap.Schedules[0].Spec)
	}
}

func TestAddIntervalRejectsNonPositive(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLogger(), nil)
	if _, err := s.AddInterval("x", 0, 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLogger(), nil)
	_, _ = s.AddInterval("a", time.Minute, 0, func(ctx context.Context) error { return nil })

	if !s.Remove("a") {
		t.Fatal("Remove should report true for a registered schedule")
	}
	if s.Remove("a") {
		t.Fatal("Remove should report false the second time")
	}
	if got := len(s.Status().Schedules); got != 0 {
		t.Fatalf("expected no schedules, got %d", got)
	}
}

func TestResolveTimeoutDefault(t *testing.T) {
	t.Parallel()
	s := New(Config{DefaultTimeout: 42 * time.Second}, testLogger(), nil)
	if got := s.resolveTimeout(0); got != 42*time.Second {
		t.Fatalf("resolveTimeout(0) = %v, want 42s", got)
	}
	if got := s.resolveTimeout(time.Second); got != time.Second {
		t.Fatalf("resolveTimeout(1s) = %v, want 1s", got)
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	t.Parallel()
	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second, RetryJitter: 0.2}
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(opt, attempt)
		if d < 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
