package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/jobq/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. The database/sql pool
// serializes statements, which satisfies the Store concurrency contract:
// "create a job" from the intake loop and "claim/finish a job" from the
// scheduler loop never interleave mid-write.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	// One connection makes the single-writer guarantee literal: the intake
	// loop's inserts and the scheduler's claims are fully serialized. It
	// also keeps ":memory:" databases coherent across callers.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "name", job.Name)

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (name, chdir, script_path, status, queued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		job.Name, job.Chdir, job.ScriptPath, string(job.Status),
		job.QueuedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	job.ID = id
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	return scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, name, chdir, script_path, status, queued_at, delete_after
		 FROM jobs WHERE id = ?`, id))
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*model.Job, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, chdir, script_path, status, queued_at, delete_after
		 FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	s.logger.Debug("sql", "op", "count", "table", "jobs", "status", status)

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

// ClaimNextQueued atomically transitions the queued job with the smallest ID
// to active. The SELECT and UPDATE run in one transaction so at most one
// document holds status = active at any instant.
func (s *SQLiteStore) ClaimNextQueued(ctx context.Context) (*model.Job, error) {
	s.logger.Debug("sql", "op", "claim_next_queued", "table", "jobs")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT id, name, chdir, script_path, status, queued_at, delete_after
		 FROM jobs WHERE status = ? ORDER BY id LIMIT 1`, string(model.StatusQueued)))
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE id = ? AND status = ?`,
		string(model.StatusActive), job.ID, string(model.StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("claim job %d: %w", job.ID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("claim job %d: no longer queued", job.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	job.Status = model.StatusActive
	return job, nil
}

func (s *SQLiteStore) FinishJob(ctx context.Context, id int64, deleteAfter time.Time) error {
	s.logger.Debug("sql", "op", "finish", "table", "jobs", "id", id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, script_path = '', delete_after = ?
		 WHERE id = ? AND status = ?`,
		string(model.StatusInactive), deleteAfter.Unix(), id, string(model.StatusActive))
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %d not active", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.logger.Debug("sql", "op", "delete_expired", "table", "jobs")

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = ? AND delete_after IS NOT NULL AND delete_after <= ?`,
		string(model.StatusInactive), now.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var status, queuedAt string
	var deleteAfter *int64

	err := row.Scan(&job.ID, &job.Name, &job.Chdir, &job.ScriptPath,
		&status, &queuedAt, &deleteAfter)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Status = model.Status(status)
	job.QueuedAt, _ = time.Parse(time.RFC3339Nano, queuedAt)
	if deleteAfter != nil {
		t := time.Unix(*deleteAfter, 0).UTC()
		job.DeleteAfter = &t
	}

	return &job, nil
}
