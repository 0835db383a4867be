package gitsync

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openhearth/chronicle/internal/model"
)

func TestSchedulerTicksAndStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(10*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}

	got := calls.Load()
	if got < 3 {
		t.Errorf("only %d ticks in 120ms at a 10ms interval", got)
	}
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != after {
		t.Error("scheduler kept ticking after cancel")
	}
}

func TestSchedulerBacksOffWhileUnreachable(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(5*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return fmt.Errorf("fetch: %w", model.ErrTransport)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// Without backoff a 5ms interval would tick ~100 times in 500ms;
	// doubling up to the 16x cap keeps it to a handful.
	if got := calls.Load(); got > 30 {
		t.Errorf("%d ticks while unreachable, backoff not applied", got)
	}
	if calls.Load() == 0 {
		t.Error("scheduler never ticked")
	}
}

func TestSchedulerRecoversAfterTransportError(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(10*time.Millisecond, func(ctx context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			return fmt.Errorf("fetch: %w", model.ErrTransport)
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// One failure must not park the schedule permanently.
	if got := calls.Load(); got < 5 {
		t.Errorf("only %d ticks; interval did not recover after success", got)
	}
}
