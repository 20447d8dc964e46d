// Package scheduler implements the queue processor: the loop that sweeps
// expired jobs, claims the next queued job, executes it, and finalizes its
// terminal state. At most one job runs at a time; execution is fully
// synchronous within a tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/jobq/internal/executor"
	"github.com/me/jobq/internal/store"
)

// Config holds scheduler configuration.
type Config struct {
	// PollInterval is the sleep between selection passes. It bounds both
	// dispatch latency and throughput to one job per interval.
	PollInterval time.Duration

	// Retention is how long a finished job stays queryable before the
	// sweeper may delete it.
	Retention time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Retention:    2 * time.Minute,
	}
}

// Loop is the polling-based queue processor.
type Loop struct {
	st     store.Store
	exec   *executor.Executor
	config Config
	logger *slog.Logger
}

// NewLoop creates a new queue processor loop.
func NewLoop(st store.Store, exec *executor.Executor, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		st:     st,
		exec:   exec,
		config: cfg,
		logger: logger.With("component", "scheduler"),
	}
}

// Run drives the loop until ctx is cancelled; the same cancellation signal
// the intake loop observes, so one signal shuts the whole scheduler down.
// Tick errors are scheduler-fatal: losing a persistence write would break
// the durability guarantee, so the loop stops rather than carrying on.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("scheduler started",
		"poll_interval", l.config.PollInterval, "retention", l.config.Retention)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs a single pass: sweep, claim, execute, finalize. At most one job
// is dispatched per tick by design.
func (l *Loop) Tick(ctx context.Context) error {
	if err := l.sweep(ctx); err != nil {
		return err
	}

	job, err := l.st.ClaimNextQueued(ctx)
	if err != nil {
		return fmt.Errorf("claim next queued: %w", err)
	}
	if job == nil {
		l.logger.Debug("no queued jobs")
		return nil
	}
	l.logger.Info("job claimed", "id", job.ID, "name", job.Name)

	// The claim persisted status=active before any side effect below, so a
	// crash from here on leaves the job visibly active, never lost.
	result, runErr := l.exec.Run(ctx, job)
	switch {
	case errors.Is(runErr, executor.ErrNameSpaceExhausted):
		return runErr
	case runErr != nil:
		l.logger.Warn("job could not be run", "id", job.ID, "name", job.Name, "error", runErr)
	}

	deleteAfter := time.Now().UTC().Add(l.config.Retention)
	if err := l.st.FinishJob(ctx, job.ID, deleteAfter); err != nil {
		return fmt.Errorf("finalize job %d: %w", job.ID, err)
	}

	if result != nil {
		l.logger.Info("job finished", "id", job.ID, "name", job.Name,
			"exit_code", result.ExitCode, "stdout", result.OutPath, "stderr", result.ErrPath)
	}
	return nil
}

// sweep deletes every finished job whose retention deadline has elapsed.
// One bulk predicate delete against the store, run before each selection
// pass.
func (l *Loop) sweep(ctx context.Context) error {
	n, err := l.st.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep expired: %w", err)
	}
	if n > 0 {
		l.logger.Info("swept expired jobs", "count", n)
	}
	return nil
}
