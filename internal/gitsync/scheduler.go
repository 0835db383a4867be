package gitsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openhearth/chronicle/internal/logging"
	"github.com/openhearth/chronicle/internal/model"
)

// Scheduler runs a sync function on a fixed interval, stretching the
// interval exponentially while the remote is unreachable so an offline
// laptop is not hammering a dead link. Conflicts and other local errors
// do not back off; they need operator attention, not patience, and the
// next tick reports them again.
type Scheduler struct {
	interval   time.Duration
	maxBackoff time.Duration
	fn         func(context.Context) error
	log        *slog.Logger
}

// NewScheduler returns a scheduler calling fn every interval. Backoff is
// capped at 16x the interval.
func NewScheduler(interval time.Duration, fn func(context.Context) error) *Scheduler {
	return &Scheduler{
		interval:   interval,
		maxBackoff: 16 * interval,
		fn:         fn,
		log:        logging.ForComponent(logging.CompSync),
	}
}

// Run blocks until ctx is cancelled. The first sync fires after one full
// interval, not immediately; startup is the worst time to hit the
// network.
func (s *Scheduler) Run(ctx context.Context) {
	delay := s.interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := s.fn(ctx)
		switch {
		case err == nil:
			delay = s.interval
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, model.ErrTransport):
			delay = min(delay*2, s.maxBackoff)
			s.log.Warn("sync unreachable, backing off", "retry_in", delay, "error", err)
		default:
			delay = s.interval
			s.log.Error("sync failed", "error", err)
		}
		timer.Reset(delay)
	}
}
