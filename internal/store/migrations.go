package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the job table.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		name         TEXT NOT NULL,
		chdir        TEXT NOT NULL DEFAULT '',
		script_path  TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'queued',
		queued_at    TEXT NOT NULL,
		delete_after INTEGER
	)`,

	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
	// Index for the sweeper's bulk predicate delete.
	`CREATE INDEX IF NOT EXISTS idx_jobs_delete_after ON jobs(delete_after)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
