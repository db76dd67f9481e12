// Package reaper periodically fails running jobs that stopped reporting
// progress.
package reaper

import (
	"context"
	"log/slog"
	"time"
)

// StalledJobFailer fails running jobs not updated for the given number of
// minutes and reports how many it failed.
type StalledJobFailer interface {
	FailStalledJobs(ctx context.Context, minutes, batchSize int) (int, error)
}

// Reaper polls for stalled jobs on a fixed interval.
type Reaper struct {
	jobs      StalledJobFailer
	interval  time.Duration
	minutes   int
	batchSize int
}

// New creates a Reaper. A non-positive interval defaults to one minute.
func New(jobs StalledJobFailer, interval time.Duration, minutes, batchSize int) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{jobs: jobs, interval: interval, minutes: minutes, batchSize: batchSize}
}

// Run blocks until ctx is done, reaping once per interval.
func (r *Reaper) Run(ctx context.Context) {
	slog.Info("reaper started", "interval", r.interval.String(), "stalled_minutes", r.minutes)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reaping pass and returns how many jobs failed.
func (r *Reaper) RunOnce(ctx context.Context) int {
	n, err := r.jobs.FailStalledJobs(ctx, r.minutes, r.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("reaping stalled jobs", "error", err, "failed_so_far", n)
		}
		return n
	}
	if n > 0 {
		slog.Info("reaped stalled jobs", "count", n, "stalled_minutes", r.minutes)
	}
	return n
}
