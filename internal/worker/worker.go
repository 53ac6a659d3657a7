// Package worker runs the claim/execute/complete loop against the shard
// queue (spec.md §4.7): one main loop plus one heartbeat goroutine that
// communicate only through signals, cooperative cancellation, and an
// advisory per-worker status object. Grounded on the QueueWorker class in
// original_source/scripts/s3_queue_worker.py and on the polling-loop shape
// of the teacher's internal/outbox.Worker.Run, with the health-check
// start/stop pattern of internal/health.ServiceHealthChecker.
package worker

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/lock"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/queue"
	"github.com/scfuzzbench/runcoord/internal/runner"
	"github.com/scfuzzbench/runcoord/internal/runstatus"
)

// Config controls one worker process's behavior.
type Config struct {
	WorkerID             string
	WorkDir              string
	LogDir               string
	FuzzersDir           string
	PollInterval         time.Duration
	HeartbeatInterval    time.Duration
	LeaseSeconds         int
	MaxParallelInstances int
	ShardMaxAttempts     int
	IdlePollLimit        int // consecutive empty claims before Run returns; 0 = unbounded
}

// Worker drives one instance's claim/execute/complete cycle.
type Worker struct {
	store  objectstore.Client
	layout coord.KeyLayout
	lockM  *lock.Manager
	run    runner.Runner
	cfg    Config
	log    zerolog.Logger

	lockLost chan struct{}
}

// New builds a Worker. run may be nil, in which case runner.Exec{} is used.
func New(store objectstore.Client, layout coord.KeyLayout, lockM *lock.Manager, run runner.Runner, cfg Config, log zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.LeaseSeconds <= 0 {
		cfg.LeaseSeconds = 90
	}
	if run == nil {
		run = runner.Exec{}
	}
	return &Worker{
		store:    store,
		layout:   layout,
		lockM:    lockM,
		run:      run,
		cfg:      cfg,
		log:      log,
		lockLost: make(chan struct{}, 1),
	}
}

// Run claims and executes shards until the context is canceled, the lock
// is lost, the refreshed run status is terminal, or (in bounded-idle
// mode) IdlePollLimit consecutive claims find nothing eligible.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Str("worker_id", w.cfg.WorkerID).Msg("worker starting")

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go w.heartbeatLoop(hbCtx)

	idle := 0
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopping: context canceled")
			return ctx.Err()
		case <-w.lockLost:
			w.log.Error().Msg("worker stopping: lock lost")
			return coord.ErrOwnerMismatch
		default:
		}

		shard, err := queue.Claim(ctx, w.store, w.layout, w.cfg.WorkerID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, coord.ErrNoClaimableShard) {
				w.log.Error().Err(err).Msg("claim failed")
			}

			status, rerr := runstatus.Refresh(ctx, w.store, w.layout, w.cfg.WorkerID, w.cfg.MaxParallelInstances, w.cfg.ShardMaxAttempts)
			if rerr != nil {
				w.log.Warn().Err(rerr).Msg("run status refresh failed")
			} else if status.Terminal {
				w.log.Info().Msg("worker stopping: run terminal")
				return nil
			}

			idle++
			if w.cfg.IdlePollLimit > 0 && idle >= w.cfg.IdlePollLimit {
				w.log.Info().Msg("worker stopping: idle poll limit reached")
				return nil
			}
			if err := w.sleep(ctx, w.cfg.PollInterval); err != nil {
				return err
			}
			continue
		}
		idle = 0

		if err := w.writeStatus(ctx, coord.WorkerStateRunning, shard.ShardKey, shard.Attempt, nil); err != nil {
			w.log.Warn().Err(err).Msg("worker status write failed")
		}

		exitCode, err := w.run.Run(ctx, runner.Job{
			FuzzersDir: w.cfg.FuzzersDir,
			WorkDir:    w.cfg.WorkDir,
			LogDir:     w.cfg.LogDir,
			ShardKey:   shard.ShardKey,
			FuzzerKey:  shard.FuzzerKey,
			Attempt:    shard.Attempt,
			RunID:      w.layout.RunID,
		})
		if err != nil {
			w.log.Error().Err(err).Str("shard_key", shard.ShardKey).Msg("runner failed to start")
			exitCode = coord.MissingRunnerExitCode
		}

		if err := queue.Complete(ctx, w.store, w.layout, shard, exitCode, w.cfg.WorkerID); err != nil {
			w.log.Error().Err(err).Str("shard_key", shard.ShardKey).Msg("complete failed")
		}

		if err := w.writeStatus(ctx, coord.WorkerStateIdle, "", 0, &exitCode); err != nil {
			w.log.Warn().Err(err).Msg("worker status write failed")
		}

		status, err := runstatus.Refresh(ctx, w.store, w.layout, w.cfg.WorkerID, w.cfg.MaxParallelInstances, w.cfg.ShardMaxAttempts)
		if err != nil {
			w.log.Warn().Err(err).Msg("run status refresh failed")
		} else if status.Terminal {
			w.log.Info().Msg("worker stopping: run terminal")
			return nil
		}
	}
}

// heartbeatLoop renews the global lock on a fixed interval. Any heartbeat
// failure signals lock-lost exactly once and exits; it never retries on
// its own, since the main loop is the single authority deciding whether to
// keep running.
func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.lockM.Heartbeat(ctx, lock.AcquireOptions{
				Owner:        w.cfg.WorkerID,
				RunID:        w.layout.RunID,
				BenchmarkUUID: w.layout.BenchmarkUUID,
				Actor:        w.cfg.WorkerID,
				LeaseSeconds: w.cfg.LeaseSeconds,
			})
			if err != nil {
				w.log.Error().Err(err).Msg("heartbeat failed")
				select {
				case w.lockLost <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

func (w *Worker) writeStatus(ctx context.Context, state, currentShard string, attempt int, lastExitCode *int) error {
	status := coord.WorkerStatus{
		RunID:         w.layout.RunID,
		BenchmarkUUID: w.layout.BenchmarkUUID,
		WorkerID:      w.cfg.WorkerID,
		State:         state,
		CurrentShard:  currentShard,
		Attempt:       attempt,
		LastExitCode:  lastExitCode,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if host, err := os.Hostname(); err == nil {
		status.Hostname = host
	}
	return objectstore.PutJSON(ctx, w.store, w.layout.WorkerStatusKey(w.cfg.WorkerID), status)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
