// Package scheduler drives periodic update cycles. One long-lived loop
// sleeps between runs; failures back off and retry instead of terminating.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRunInProgress is returned by Trigger when a cycle is already running.
var ErrRunInProgress = errors.New("an update cycle is already in progress")

// Intervals supplies sleep durations, read fresh before every sleep so
// settings changes apply to the next wait.
type Intervals interface {
	UpdateInterval(ctx context.Context) time.Duration
	Backoff(ctx context.Context) time.Duration
}

// Runner executes one update cycle.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler owns the background loop and the single-flight guard shared
// with manual triggers.
type Scheduler struct {
	runner    Runner
	intervals Intervals
	logger    *slog.Logger

	// ready, when non-nil, gates the first run until the host platform
	// connection is established.
	ready <-chan struct{}

	mu sync.Mutex // serializes scheduled and manual runs
}

// New creates a scheduler.
func New(runner Runner, intervals Intervals, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:    runner,
		intervals: intervals,
		logger:    logger.With(slog.String("component", "scheduler")),
	}
}

// SetReadyGate makes Start wait on ch before the first run.
func (s *Scheduler) SetReadyGate(ch <-chan struct{}) {
	s.ready = ch
}

// Start blocks until ctx is canceled, running one cycle per interval.
// A failed cycle sleeps the backoff interval and retries; failures never
// terminate the loop. Cancellation is honored at every suspension point.
func (s *Scheduler) Start(ctx context.Context) {
	if s.ready != nil {
		select {
		case <-ctx.Done():
			return
		case <-s.ready:
		}
	}

	s.logger.Info("update loop started")
	for {
		err := s.runGuarded(ctx)
		if ctx.Err() != nil {
			s.logger.Info("update loop stopped")
			return
		}

		var sleep time.Duration
		if err != nil {
			sleep = s.intervals.Backoff(ctx)
			s.logger.Error("update cycle failed, backing off",
				"error", err, "retry_in", sleep.String())
		} else {
			sleep = s.intervals.UpdateInterval(ctx)
			s.logger.Info("update cycle complete", "next_run_in", sleep.String())
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("update loop stopped")
			return
		case <-timer.C:
		}
	}
}

// Trigger runs one cycle outside the loop's timer, sharing the same guard.
// Returns ErrRunInProgress if a scheduled or manual run is in flight. The
// loop's own countdown is not reset.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.mu.TryLock() {
		return ErrRunInProgress
	}
	defer s.mu.Unlock()

	s.logger.Info("manual update triggered")
	return s.runner.Run(ctx)
}

// runGuarded runs one scheduled cycle under the single-flight lock with a
// last-resort panic backstop, so a bug in a component downgrades to a
// backoff instead of killing the loop.
func (s *Scheduler) runGuarded(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("update cycle panicked", "panic", r)
			err = fmt.Errorf("update cycle panicked: %v", r)
		}
	}()

	return s.runner.Run(ctx)
}
