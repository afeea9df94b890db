// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/plugpower/plug-power-logger/pkg/errors"
	"github.com/plugpower/plug-power-logger/pkg/logger"
)

// Scheduler drives the poll-and-write pass either once or on a fixed
// interval until the context is cancelled.
type Scheduler struct {
	persist  bool
	interval atomic.Int64 // nanoseconds; may be updated by config reload
}

// NewScheduler creates a scheduler. interval is ignored unless persist is
// set.
func NewScheduler(persist bool, interval time.Duration) *Scheduler {
	s := &Scheduler{persist: persist}
	s.interval.Store(int64(interval))
	return s
}

// Run executes the pass. In one-shot mode it runs the pass once and
// returns. In persistent mode it runs the pass, sleeps the full configured
// interval and repeats until ctx is cancelled; the cycle's own duration is
// not subtracted from the sleep, so the cadence is interval plus cycle
// duration rather than a fixed-rate clock.
func (s *Scheduler) Run(ctx context.Context, pass func(ctx context.Context)) error {
	if !s.persist {
		pass(ctx)
		return nil
	}

	if s.Interval() < time.Second {
		return errors.ErrIntervalRequired
	}

	logger.Info().Dur("interval", s.Interval()).Msg("Entering persistent polling loop")
	for {
		pass(ctx)

		select {
		case <-ctx.Done():
			logger.Info().Msg("Polling loop stopped")
			return nil
		case <-time.After(s.Interval()):
		}
	}
}

// Interval returns the current sleep interval.
func (s *Scheduler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// UpdateInterval changes the sleep interval for subsequent iterations.
// Takes effect after the current sleep completes.
func (s *Scheduler) UpdateInterval(interval time.Duration) {
	if interval >= time.Second {
		s.interval.Store(int64(interval))
	}
}
