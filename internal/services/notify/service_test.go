package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cartable/internal/transport"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) Stop(ctx context.Context) error { return nil }

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNotifyDeliversAndDedups(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	s := New(Config{Enabled: true, Workers: 1, RatePerSec: 100, DedupWindow: time.Minute}, fs, testLogger(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	n := transport.Notification{Channel: "telegram", Target: transport.ChatTarget{ChatID: 1}, Text: "new grade"}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	// Same payload within the window must be suppressed, not an error.
	if err := s.Notify(ctx, n); err != nil {
		t.Fatalf("Notify (dup): %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if got := fs.texts(); len(got) != 1 {
		t.Fatalf("sent %d messages, want 1: %v", len(got), got)
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, &fakeSender{}, testLogger(), nil, nil)
	err := s.Notify(context.Background(), transport.Notification{Channel: "telegram", Text: "x"})
	if err != ErrDisabled {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestDedupKeyStability(t *testing.T) {
	t.Parallel()
	a := transport.Notification{Channel: "telegram", Target: transport.ChatTarget{ChatID: 1}, Text: "x"}
	b := transport.Notification{Channel: "telegram", Target: transport.ChatTarget{ChatID: 1}, Text: "x"}
	c := transport.Notification{Channel: "telegram", Target: transport.ChatTarget{ChatID: 2}, Text: "x"}

	if dedupKey(a) != dedupKey(b) {
		t.Fatal("identical notifications must share a dedup key")
	}
	if dedupKey(a) == dedupKey(c) {
		t.Fatal("different targets must not share a dedup key")
	}
	if dedupKey(transport.Notification{}) != "" {
		t.Fatal("notification without channel must not be deduped")
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
