package store

import (
	"context"
	"time"

	"github.com/me/jobq/pkg/model"
)

// Store defines the persistence contract for job documents. Every mutation
// is an atomic single-document update; scans see committed documents only.
//
// Implementations must be safe for concurrent use: the intake loop and the
// scheduler loop share one Store handle without external locking. The
// non-overlap discipline is that intake only creates documents, the
// scheduler only mutates documents it has claimed, and the sweeper only
// deletes expired inactive ones.
type Store interface {
	// CreateJob inserts a new queued job and assigns its ID.
	CreateJob(ctx context.Context, job *model.Job) error

	// GetJob returns the job with the given ID, or nil if it does not exist.
	GetJob(ctx context.Context, id int64) (*model.Job, error)

	// ListJobs returns all jobs ordered by ascending ID.
	ListJobs(ctx context.Context) ([]*model.Job, error)

	// CountByStatus returns the number of jobs with the given status.
	CountByStatus(ctx context.Context, status model.Status) (int, error)

	// ClaimNextQueued atomically selects the queued job with the smallest
	// ID and transitions it to active. Returns nil if no job is eligible.
	// The transition is persisted before the caller sees the job, so a
	// crash mid-execution leaves the job visibly active, never lost.
	ClaimNextQueued(ctx context.Context) (*model.Job, error)

	// FinishJob transitions an active job to inactive and stamps its
	// retention deadline. The script path is cleared; removing the file
	// itself is the executor's business.
	FinishJob(ctx context.Context, id int64, deleteAfter time.Time) error

	// DeleteExpired removes every inactive job whose retention deadline
	// has elapsed, returning the number of documents deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
