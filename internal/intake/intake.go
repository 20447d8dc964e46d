// Package intake converts external submissions into queued jobs without
// losing or duplicating work. Submit validates a script and stages it in
// the inbox; the Loop claims staged scripts by renaming them into queue
// storage and creates one queued job document per file.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/me/jobq/internal/directive"
	"github.com/me/jobq/internal/store"
	"github.com/me/jobq/pkg/model"
)

// ErrQueueFull rejects a submission once the queued-job bound is reached.
var ErrQueueFull = errors.New("job queue is full")

// Config holds intake configuration.
type Config struct {
	InboxDir     string
	QueueDir     string
	PollInterval time.Duration

	// MaxQueueSize rejects submissions while this many jobs are queued.
	// Zero disables the bound.
	MaxQueueSize int
}

// Intake owns the inbox protocol. It only ever creates job documents; it
// never touches existing ones, which is what keeps it safe to run alongside
// the queue processor on one shared store handle.
type Intake struct {
	st     store.Store
	cfg    Config
	logger *slog.Logger
}

// New creates an Intake over the given store.
func New(st store.Store, cfg Config, logger *slog.Logger) *Intake {
	return &Intake{
		st:     st,
		cfg:    cfg,
		logger: logger.With("component", "intake"),
	}
}

// Submit validates scriptPath and stages a copy in the inbox under a fresh
// random name, so concurrent submitters never collide. A script with
// malformed directives is rejected here, before anything reaches the inbox.
// Returns the staged file path.
func (i *Intake) Submit(ctx context.Context, scriptPath string) (string, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	if _, err := directive.Parse(script); err != nil {
		return "", err
	}

	if i.cfg.MaxQueueSize > 0 {
		queued, err := i.st.CountByStatus(ctx, model.StatusQueued)
		if err != nil {
			return "", fmt.Errorf("count queued jobs: %w", err)
		}
		if queued >= i.cfg.MaxQueueSize {
			return "", fmt.Errorf("%w (%d queued, bound %d)", ErrQueueFull, queued, i.cfg.MaxQueueSize)
		}
	}

	// Stage through a dot-prefixed temp name and rename into place, so the
	// intake loop never lists a partially written file.
	name := uuid.NewString() + ".sh"
	tmp := filepath.Join(i.cfg.InboxDir, "."+name)
	final := filepath.Join(i.cfg.InboxDir, name)

	if err := os.WriteFile(tmp, script, 0o644); err != nil {
		return "", fmt.Errorf("stage script: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish script to inbox: %w", err)
	}

	i.logger.Debug("submission staged", "inbox_file", name)
	return final, nil
}

// Run is the intake loop. It rescans the inbox every poll interval (or
// sooner, when the inbox watcher reports a new file) and stops when ctx is
// cancelled. A malformed file in the inbox is a defect (Submit validated
// it with the same schema), so it aborts the loop rather than being skipped.
func (i *Intake) Run(ctx context.Context) error {
	i.logger.Info("intake started", "inbox", i.cfg.InboxDir, "poll_interval", i.cfg.PollInterval)

	// The watcher only cuts latency; polling remains the correctness
	// mechanism, so a watcher failure downgrades to plain polling.
	var events chan fsnotify.Event
	if w, err := fsnotify.NewWatcher(); err != nil {
		i.logger.Warn("inbox watcher unavailable, polling only", "error", err)
	} else if err := w.Add(i.cfg.InboxDir); err != nil {
		i.logger.Warn("inbox watcher unavailable, polling only", "error", err)
		w.Close()
	} else {
		defer w.Close()
		events = make(chan fsnotify.Event, 1)
		go forwardCreates(w, events)
	}

	ticker := time.NewTicker(i.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := i.Pass(ctx); err != nil {
			return fmt.Errorf("intake pass: %w", err)
		}

		select {
		case <-ctx.Done():
			i.logger.Info("intake stopping")
			return nil
		case <-ticker.C:
		case <-events:
		}
	}
}

// Pass processes every file currently in the inbox, oldest first, and
// returns how many jobs it queued.
func (i *Intake) Pass(ctx context.Context) (int, error) {
	files, err := listByModTime(i.cfg.InboxDir)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, name := range files {
		if err := i.admit(ctx, name); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// admit claims one inbox file and creates its job document. The rename into
// queue storage is atomic with respect to concurrent readers, so a claimed
// file can never be picked up twice.
func (i *Intake) admit(ctx context.Context, name string) error {
	inboxPath := filepath.Join(i.cfg.InboxDir, name)
	queuePath := filepath.Join(i.cfg.QueueDir, name)

	if err := os.Rename(inboxPath, queuePath); err != nil {
		return fmt.Errorf("claim %s: %w", name, err)
	}

	script, err := os.ReadFile(queuePath)
	if err != nil {
		return fmt.Errorf("read claimed script %s: %w", name, err)
	}
	opts, err := directive.Parse(script)
	if err != nil {
		// Submit validates with the identical schema, so this cannot be
		// user error; surface it as an intake defect.
		return fmt.Errorf("claimed script %s failed validation: %w", name, err)
	}

	job := &model.Job{
		Name:       opts.Name,
		Chdir:      opts.Chdir,
		ScriptPath: queuePath,
		Status:     model.StatusQueued,
		QueuedAt:   time.Now().UTC(),
	}
	if err := i.st.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job for %s: %w", name, err)
	}

	i.logger.Info("job queued", "id", job.ID, "name", job.Name)
	return nil
}

// listByModTime returns the names of regular, non-hidden files in dir,
// oldest modification first. The ordering approximates FIFO fairness; it is
// best effort, not a correctness guarantee.
func listByModTime(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	type candidate struct {
		name  string
		mtime time.Time
	}
	var files []candidate
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name()[0] == '.' {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // renamed away between list and stat
		}
		files = append(files, candidate{entry.Name(), info.ModTime()})
	}

	sort.Slice(files, func(a, b int) bool { return files[a].mtime.Before(files[b].mtime) })

	names := make([]string, len(files))
	for idx, f := range files {
		names[idx] = f.name
	}
	return names, nil
}

// forwardCreates relays create events, coalescing while the loop is busy.
func forwardCreates(w *fsnotify.Watcher, out chan<- fsnotify.Event) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				select {
				case out <- ev:
				default:
				}
			}
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}
