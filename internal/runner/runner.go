// Package runner invokes the external per-shard fuzzer script (spec.md
// §4.8), grounded on the run_shard method of
// original_source/scripts/s3_queue_worker.py: one os/exec child process per
// attempt, environment-variable handoff, exit code is the sole completion
// signal.
package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/scfuzzbench/runcoord/internal/coord"
)

// Job describes one shard attempt to execute. The runner resolves the
// script to invoke as <FuzzersDir>/<FuzzerKey>/run.sh, so every fuzzer
// named by a shard gets its own entry point instead of one script shared
// by every shard in the run.
type Job struct {
	FuzzersDir string
	WorkDir    string
	LogDir     string
	ShardKey   string
	FuzzerKey  string
	Attempt    int
	RunID      string
}

// Runner executes one shard attempt and returns its exit code. A Runner
// implementation never returns a non-nil error for a non-zero exit code;
// error is reserved for failures to even start the process.
type Runner interface {
	Run(ctx context.Context, job Job) (exitCode int, err error)
}

// Exec is the os/exec-backed default Runner.
type Exec struct{}

// Run launches <job.FuzzersDir>/<job.FuzzerKey>/run.sh with the shard's
// identity passed through the environment, per spec.md §4.8's QUEUE_MODE
// contract. A missing or non-executable script yields
// coord.MissingRunnerExitCode rather than an error, since that is itself a
// shard outcome the queue must record.
func (Exec) Run(ctx context.Context, job Job) (int, error) {
	scriptPath := filepath.Join(job.FuzzersDir, job.FuzzerKey, "run.sh")
	cmd := exec.CommandContext(ctx, scriptPath)
	cmd.Dir = job.WorkDir
	cmd.Env = append(os.Environ(),
		"QUEUE_MODE=1",
		"WORKDIR="+job.WorkDir,
		"LOG_DIR="+job.LogDir,
		"SHARD_KEY="+job.ShardKey,
		"FUZZER_KEY="+job.FuzzerKey,
		"SHARD_ATTEMPT="+strconv.Itoa(job.Attempt),
		"RUN_ID="+job.RunID,
	)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrNotFound) || os.IsNotExist(err) || os.IsPermission(err) {
		return coord.MissingRunnerExitCode, nil
	}
	if ctx.Err() != nil {
		return coord.TimeoutExitCode, nil
	}
	return 0, err
}
