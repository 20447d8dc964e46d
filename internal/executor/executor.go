// Package executor runs a claimed job's script as a child shell process,
// with stdout and stderr redirected into uniquely named files derived from
// the job ID.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/me/jobq/pkg/model"
)

// maxNameAttempts bounds the .out.<n> / .err.<n> suffix search. A job ID is
// used by one scheduler at a time, so 100 collisions means the naming space
// is corrupt, not busy.
const maxNameAttempts = 100

// ErrNameSpaceExhausted means no free output-file suffix was found within
// the bound. This is an internal-consistency failure and is treated as
// fatal by the scheduler.
var ErrNameSpaceExhausted = errors.New("output filename space exhausted")

// Result reports the outcome of one script execution.
type Result struct {
	ExitCode int
	OutPath  string
	ErrPath  string
}

// Executor spawns job scripts and captures their output under logsDir.
type Executor struct {
	logsDir string
	logger  *slog.Logger
}

// New creates an Executor writing output files into logsDir.
func New(logsDir string, logger *slog.Logger) *Executor {
	return &Executor{
		logsDir: logsDir,
		logger:  logger.With("component", "executor"),
	}
}

// Run executes the job's script with `sh` and waits for it to finish. The
// managed script file is removed afterwards regardless of outcome. A
// non-zero exit is recorded in the Result, not returned as an error; errors
// mean the script could not be run at all (or ErrNameSpaceExhausted).
func (e *Executor) Run(ctx context.Context, job *model.Job) (*Result, error) {
	defer e.removeScript(job)

	workDir, err := e.workDir(job)
	if err != nil {
		return nil, err
	}

	outFile, errFile, result, err := e.openOutputs(job.HexID())
	if err != nil {
		return nil, err
	}
	defer outFile.Close()
	defer errFile.Close()

	cmd := exec.CommandContext(ctx, "sh", job.ScriptPath)
	cmd.Dir = workDir
	cmd.Stdout = outFile
	cmd.Stderr = errFile

	e.logger.Info("job started", "id", job.ID, "name", job.Name, "dir", workDir)

	runErr := cmd.Run()
	switch err := runErr.(type) {
	case nil:
		result.ExitCode = 0
	case *exec.ExitError:
		result.ExitCode = err.ExitCode()
		// The job's own failure is not the scheduler's failure.
		e.logger.Warn("job exited non-zero", "id", job.ID, "name", job.Name, "exit_code", result.ExitCode)
	default:
		return nil, fmt.Errorf("job %d: run script: %w", job.ID, runErr)
	}

	return result, nil
}

// workDir resolves the job's working directory, falling back to the home
// directory when the requested one no longer resolves.
func (e *Executor) workDir(job *model.Job) (string, error) {
	if job.Chdir != "" {
		if info, err := os.Stat(job.Chdir); err == nil && info.IsDir() {
			return job.Chdir, nil
		}
		e.logger.Warn("chdir not resolvable, falling back to home",
			"id", job.ID, "chdir", job.Chdir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("job %d: resolve home directory: %w", job.ID, err)
	}
	return home, nil
}

// openOutputs creates <hex>.out.<n> and <hex>.err.<n> for the smallest n
// where neither exists. O_EXCL creation claims each name atomically, so two
// jobs can never share an output file.
func (e *Executor) openOutputs(hexID string) (*os.File, *os.File, *Result, error) {
	for n := 0; n < maxNameAttempts; n++ {
		outPath := filepath.Join(e.logsDir, fmt.Sprintf("%s.out.%d", hexID, n))
		errPath := filepath.Join(e.logsDir, fmt.Sprintf("%s.err.%d", hexID, n))

		outFile, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create %s: %w", outPath, err)
		}

		errFile, err := os.OpenFile(errPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			outFile.Close()
			os.Remove(outPath)
			continue
		}
		if err != nil {
			outFile.Close()
			os.Remove(outPath)
			return nil, nil, nil, fmt.Errorf("create %s: %w", errPath, err)
		}

		return outFile, errFile, &Result{OutPath: outPath, ErrPath: errPath}, nil
	}
	return nil, nil, nil, fmt.Errorf("%w for job %s after %d attempts",
		ErrNameSpaceExhausted, hexID, maxNameAttempts)
}

func (e *Executor) removeScript(job *model.Job) {
	if job.ScriptPath == "" {
		return
	}
	if err := os.Remove(job.ScriptPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("remove script", "id", job.ID, "path", job.ScriptPath, "error", err)
	}
}
