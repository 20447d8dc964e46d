package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/jobq/internal/store"
	"github.com/me/jobq/pkg/model"
)

func testIntake(t *testing.T, maxQueue int) (*Intake, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := Config{
		InboxDir:     t.TempDir(),
		QueueDir:     t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		MaxQueueSize: maxQueue,
	}
	return New(st, cfg, logger), st
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "submit.sh")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestSubmit_StagesInboxCopy(t *testing.T) {
	in, _ := testIntake(t, 0)

	staged, err := in.Submit(context.Background(), writeScript(t, "#JOBQ --job-name build\necho hi\n"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	data, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("read staged copy: %v", err)
	}
	if string(data) != "#JOBQ --job-name build\necho hi\n" {
		t.Errorf("staged content = %q", data)
	}
	if filepath.Dir(staged) != in.cfg.InboxDir {
		t.Errorf("staged outside inbox: %s", staged)
	}
}

func TestSubmit_RejectsMissingJobName(t *testing.T) {
	in, st := testIntake(t, 0)

	_, err := in.Submit(context.Background(), writeScript(t, "echo no directives\n"))
	if err == nil {
		t.Fatal("submit succeeded, want parse error")
	}

	// Nothing may reach the inbox or the store on rejection.
	entries, _ := os.ReadDir(in.cfg.InboxDir)
	if len(entries) != 0 {
		t.Errorf("inbox has %d entries after rejection, want 0", len(entries))
	}
	jobs, _ := st.ListJobs(context.Background())
	if len(jobs) != 0 {
		t.Errorf("store has %d jobs after rejection, want 0", len(jobs))
	}
}

func TestSubmit_EnforcesQueueBound(t *testing.T) {
	in, _ := testIntake(t, 1)
	ctx := context.Background()
	script := writeScript(t, "#JOBQ --job-name build\n")

	if _, err := in.Submit(ctx, script); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := in.Pass(ctx); err != nil {
		t.Fatalf("pass: %v", err)
	}

	// One job is queued and the bound is 1.
	if _, err := in.Submit(ctx, script); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second submit error = %v, want ErrQueueFull", err)
	}
}

func TestPass_CreatesQueuedJob(t *testing.T) {
	in, st := testIntake(t, 0)
	ctx := context.Background()

	if _, err := in.Submit(ctx, writeScript(t, "#JOBQ --job-name build -D /tmp\necho hi\n")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	n, err := in.Pass(ctx)
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if n != 1 {
		t.Fatalf("pass queued %d jobs, want 1", n)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	job := jobs[0]
	if job.Name != "build" {
		t.Errorf("name = %q, want build", job.Name)
	}
	if job.Chdir != "/tmp" {
		t.Errorf("chdir = %q, want /tmp", job.Chdir)
	}
	if job.Status != model.StatusQueued {
		t.Errorf("status = %q, want queued", job.Status)
	}
	if filepath.Dir(job.ScriptPath) != in.cfg.QueueDir {
		t.Errorf("script %s not in queue storage", job.ScriptPath)
	}
	if _, err := os.Stat(job.ScriptPath); err != nil {
		t.Errorf("claimed script missing: %v", err)
	}

	// The inbox must be empty: the rename claimed the file.
	entries, _ := os.ReadDir(in.cfg.InboxDir)
	if len(entries) != 0 {
		t.Errorf("inbox has %d entries after pass, want 0", len(entries))
	}
}

func TestPass_OldestSubmissionFirst(t *testing.T) {
	in, st := testIntake(t, 0)
	ctx := context.Background()

	older, err := in.Submit(ctx, writeScript(t, "#JOBQ --job-name older\n"))
	if err != nil {
		t.Fatalf("submit older: %v", err)
	}
	newer, err := in.Submit(ctx, writeScript(t, "#JOBQ --job-name newer\n"))
	if err != nil {
		t.Fatalf("submit newer: %v", err)
	}

	// Make the ordering unambiguous regardless of filesystem timestamp
	// granularity.
	now := time.Now()
	if err := os.Chtimes(older, now.Add(-time.Minute), now.Add(-time.Minute)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(newer, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := in.Pass(ctx); err != nil {
		t.Fatalf("pass: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].Name != "older" || jobs[1].Name != "newer" {
		t.Errorf("admission order = %q, %q; want older, newer", jobs[0].Name, jobs[1].Name)
	}
}

func TestPass_EmptyInbox(t *testing.T) {
	in, _ := testIntake(t, 0)

	n, err := in.Pass(context.Background())
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if n != 0 {
		t.Errorf("pass queued %d jobs on empty inbox", n)
	}
}

func TestSubmit_ConcurrentSameNameGetDistinctIDs(t *testing.T) {
	in, st := testIntake(t, 0)
	ctx := context.Background()
	script := writeScript(t, "#JOBQ --job-name twin\n")

	for i := 0; i < 2; i++ {
		if _, err := in.Submit(ctx, script); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := in.Pass(ctx); err != nil {
		t.Fatalf("pass: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID == jobs[1].ID {
		t.Errorf("duplicate id %d for same-name submissions", jobs[0].ID)
	}
	if jobs[0].HexID() == jobs[1].HexID() {
		t.Errorf("output-file basenames collide: %s", jobs[0].HexID())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	in, _ := testIntake(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("intake loop did not stop within the polling interval")
	}
}

func TestRun_PicksUpSubmissionWhileRunning(t *testing.T) {
	in, st := testIntake(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	if _, err := in.Submit(ctx, writeScript(t, "#JOBQ --job-name live\n")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		jobs, err := st.ListJobs(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(jobs) == 1 && jobs[0].Name == "live" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("submission was not admitted while the loop ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
