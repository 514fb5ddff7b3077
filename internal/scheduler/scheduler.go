// Package scheduler repeats a task on a fixed interval. Runs are
// sequential; a task that overruns its interval simply delays the next
// tick rather than running concurrently with itself.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Scheduler drives a Task on an interval.
type Scheduler struct {
	interval   time.Duration
	runOnStart bool
	task       Task
	logger     *slog.Logger
}

// New creates a scheduler. With runOnStart the task fires immediately on
// Run instead of waiting out the first interval.
func New(interval time.Duration, runOnStart bool, task Task, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval:   interval,
		runOnStart: runOnStart,
		task:       task,
		logger:     logger.With("component", "scheduler"),
	}
}

// Run blocks, executing the task on schedule until ctx is cancelled. Task
// errors are logged, never fatal; the schedule keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := s.task(ctx); err != nil {
		s.logger.Error("scheduled task failed", "error", err, "duration", time.Since(started))
		return
	}
	s.logger.Debug("scheduled task finished", "duration", time.Since(started))
}
