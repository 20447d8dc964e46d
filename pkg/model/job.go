package model

import (
	"fmt"
	"time"
)

// Job is the persisted record describing one submitted script: its identity,
// parameters, and scheduling status. Exactly one document exists per accepted
// submission.
type Job struct {
	// ID is assigned by the store at insertion and never changes. It is the
	// primary key and the basis of the job's output/error filenames.
	ID int64 `json:"id"`

	// Name is the submitter-supplied --job-name.
	Name string `json:"job_name"`

	// Chdir is the requested working directory. Empty means the executor's
	// home directory; a directory that no longer resolves at execution time
	// also falls back to home.
	Chdir string `json:"chdir,omitempty"`

	// ScriptPath points at the managed copy of the script in queue storage.
	// The file is deleted once the job has run.
	ScriptPath string `json:"script_path,omitempty"`

	Status Status `json:"status"`

	// QueuedAt is set when the job enters StatusQueued.
	QueuedAt time.Time `json:"queued_at"`

	// DeleteAfter is set only when the job finishes and marks when the
	// record becomes eligible for sweeping.
	DeleteAfter *time.Time `json:"delete_after,omitempty"`
}

// HexID renders the job ID as fixed-width hexadecimal. Output and error
// files, and the keys of the structured status dump, use this form.
func (j *Job) HexID() string {
	return fmt.Sprintf("%08x", j.ID)
}

// Expired reports whether the job is eligible for sweeping at the given
// instant. Only finished jobs carry a retention deadline.
func (j *Job) Expired(now time.Time) bool {
	return j.Status == StatusInactive && j.DeleteAfter != nil && !now.Before(*j.DeleteAfter)
}
