package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Supervisor runs named goroutines with panic recovery. The first error
// (or panic) cancels the shared context so siblings can unwind.
type Supervisor struct {
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu  sync.Mutex
	err error
}

func NewSupervisor(parent context.Context, log *slog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{log: log, ctx: ctx, cancel: cancel}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go starts fn in a goroutine. A non-nil error or a panic records the
// failure and cancels the supervisor context.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked",
					slog.String("name", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				s.setErr(fmt.Errorf("%s: panic: %v", name, r))
			}
		}()
		if err := fn(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Error("goroutine failed", slog.String("name", name), slog.Any("error", err))
			s.setErr(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Go0 is Go for functions that only stop via context cancellation.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Supervisor) Cancel() { s.cancel() }

// Wait blocks until all goroutines exit and returns the first failure.
func (s *Supervisor) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
