// Package lock provides the scheduler instance lock: an exclusivity marker
// file that prevents two scheduler processes from operating on the same data
// directory. Acquisition is a single atomic file creation, so there is no
// read-then-create race window. A marker left behind by a crash is never
// broken automatically; the operator must remove it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MarkerName is the lock file created inside the data directory.
const MarkerName = "scheduler.lock"

// ErrAlreadyLocked indicates the marker file already exists: another
// scheduler instance may be running (or a previous one crashed).
var ErrAlreadyLocked = errors.New("scheduler lock already held")

// Handle represents a held instance lock.
type Handle struct {
	path string
}

// Acquire claims exclusive ownership of dataDir for this process. The
// marker records the pid and the time the lock was taken, to aid manual
// recovery after a crash.
func Acquire(dataDir string) (*Handle, error) {
	path := filepath.Join(dataDir, MarkerName)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: another instance may already be running%s (remove %s to recover after a crash)",
				ErrAlreadyLocked, heldSince(path), path)
		}
		return nil, fmt.Errorf("create lock %s: %w", path, err)
	}

	_, werr := fmt.Fprintf(f, "pid=%d\nheld_since=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock %s: %w", path, werr)
	}

	return &Handle{path: path}, nil
}

// Release removes the marker. Call on orderly shutdown only.
func (h *Handle) Release() error {
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock %s: %w", h.path, err)
	}
	return nil
}

// heldSince reads the held_since line out of an existing marker for the
// contention error message. Best effort: an unreadable marker yields "".
func heldSince(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if v, ok := strings.CutPrefix(line, "held_since="); ok && v != "" {
			return " (held since " + v + ")"
		}
	}
	return ""
}
