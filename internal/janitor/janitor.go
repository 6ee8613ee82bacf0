// Package janitor periodically removes expired reels, stale workspaces and
// finished job records.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper removes everything older than cutoff and reports how many items went.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// SweepFunc adapts a function to Sweeper.
type SweepFunc func(ctx context.Context, cutoff time.Time) (int, error)

// Sweep implements Sweeper.
func (f SweepFunc) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	return f(ctx, cutoff)
}

type target struct {
	name    string
	sweeper Sweeper
}

// Janitor runs registered sweepers on a cron schedule.
type Janitor struct {
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	targets []target
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
}

// New creates a Janitor that removes items older than retention.
func New(retention time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		retention: retention,
		logger:    logger,
		now:       time.Now,
		cron:      cron.New(),
	}
}

// Add registers a sweeper under name.
func (j *Janitor) Add(name string, s Sweeper) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.targets = append(j.targets, target{name: name, sweeper: s})
}

// RunOnce sweeps every target with cutoff now-retention. A failing target
// does not stop the others; their errors are joined.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	j.mu.Lock()
	targets := append([]target(nil), j.targets...)
	j.mu.Unlock()

	cutoff := j.now().Add(-j.retention)
	total := 0
	var errs []error
	for _, t := range targets {
		n, err := t.sweeper.Sweep(ctx, cutoff)
		total += n
		if err != nil {
			j.logger.Error("sweep failed", slog.String("target", t.name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		if n > 0 {
			j.logger.Info("sweep removed expired items", slog.String("target", t.name), slog.Int("count", n))
		}
	}
	return total, errors.Join(errs...)
}

// Start schedules RunOnce using a standard cron expression or a descriptor
// such as "@every 15m".
func (j *Janitor) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return errors.New("janitor already started")
	}

	id, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		_, _ = j.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	j.entry = id
	j.running = true
	j.cron.Start()
	j.logger.Info("janitor started",
		slog.String("schedule", schedule),
		slog.Duration("retention", j.retention),
	)
	return nil
}

// Stop halts the schedule and waits for a sweep in progress, or for ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	j.cron.Remove(j.entry)
	done := j.cron.Stop()
	j.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
