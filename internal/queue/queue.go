// Package queue implements shard initialization, claiming and completion
// (spec.md §4.3): the per-shard state machine layered on top of the
// object store's tentative-write-plus-settle-delay confirmation in place
// of compare-and-swap. Grounded on
// original_source/scripts/s3_queue_init.py (Initialize) and
// original_source/scripts/s3_queue_worker.py (Claim, Complete).
package queue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/dlq"
	"github.com/scfuzzbench/runcoord/internal/events"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/runstatus"
)

// settleDelay is the pause between a tentative claim write and the
// confirmation read that decides whether this worker actually won it.
const settleDelay = 600 * time.Millisecond

// Initialize writes one queued shard object per spec, skipping any shard
// key that already exists (idempotent re-run after a partial failure),
// then refreshes the run-status document. It is an error to pass no
// shards, or two specs with the same shard_key.
func Initialize(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, shards []coord.ShardSpec, shardMaxAttempts int, lockOwner string, maxParallelInstances int) error {
	if len(shards) == 0 {
		return fmt.Errorf("%w", coord.ErrNoShardsProvided)
	}
	seen := make(map[string]bool, len(shards))
	for _, s := range shards {
		if seen[s.ShardKey] {
			return fmt.Errorf("%w: %s", coord.ErrDuplicateShard, s.ShardKey)
		}
		seen[s.ShardKey] = true
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, spec := range shards {
		key := layout.ShardKey(spec.ShardKey)
		_, found, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if found {
			continue
		}
		shard := coord.Shard{
			ShardKey:    spec.ShardKey,
			FuzzerKey:   spec.FuzzerKey,
			RunIndex:    spec.RunIndex,
			Status:      coord.StatusQueued,
			MaxAttempts: shardMaxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := objectstore.PutJSON(ctx, store, key, shard); err != nil {
			return err
		}
		if err := events.Emit(ctx, store, layout, events.ShardStatus(lockOwner, shard.ShardKey, coord.StatusQueued, 0, nil, "")); err != nil {
			return err
		}
	}

	_, err := runstatus.Refresh(ctx, store, layout, lockOwner, maxParallelInstances, shardMaxAttempts)
	return err
}

// RetryDelay is the exponential backoff applied between a failed attempt
// and the next claim eligibility: min(300, 30*2^(attempt-1)) seconds.
func RetryDelay(attempt int) time.Duration {
	seconds := 30 * math.Pow(2, float64(attempt-1))
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

// Claim scans shard objects in listing order and attempts to win the
// first eligible one: queued, or retrying with RetryAvailableAtEpoch not
// in the future. Queued or retrying shards whose attempt count has
// already reached max_attempts are marked failed in place as the scan
// passes over them (the Python worker calls this "reaping" exhausted
// shards). Returns (nil, ErrNoClaimableShard) when nothing is currently
// eligible.
func Claim(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, workerID string) (*coord.Shard, error) {
	keys, err := store.List(ctx, layout.ShardPrefix())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, key := range keys {
		var shard coord.Shard
		found, err := objectstore.GetJSON(ctx, store, key, &shard)
		if err != nil || !found {
			continue
		}

		if (shard.Status == coord.StatusQueued || shard.Status == coord.StatusRetrying) && shard.Attempt >= shard.MaxAttempts {
			if err := markExhausted(ctx, store, layout, key, shard, workerID); err != nil {
				return nil, err
			}
			continue
		}

		eligible := shard.Status == coord.StatusQueued ||
			(shard.Status == coord.StatusRetrying && now.Unix() >= shard.RetryAvailableAtEpoch)
		if !eligible {
			continue
		}

		won, claimed, err := tryClaim(ctx, store, key, shard, workerID)
		if err != nil {
			return nil, err
		}
		if won {
			if err := events.Emit(ctx, store, layout, events.ShardStatus(workerID, claimed.ShardKey, coord.StatusRunning, claimed.Attempt, nil, "")); err != nil {
				return nil, err
			}
			return claimed, nil
		}
		// Another worker won the settle-delay race; move on.
	}
	return nil, fmt.Errorf("%w", coord.ErrNoClaimableShard)
}

// markExhausted transitions a queued or retrying shard that has used all its
// attempts to failed, without requiring a worker to claim it first.
func markExhausted(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, key string, shard coord.Shard, workerID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	shard.Status = coord.StatusFailed
	shard.UpdatedAt = now
	shard.FinishedAt = now
	if err := objectstore.PutJSON(ctx, store, key, shard); err != nil {
		return err
	}
	exitCode := -1
	if shard.LastExitCode != nil {
		exitCode = *shard.LastExitCode
	}
	if err := dlq.Record(ctx, store, layout, shard, shard.LastWorkerID, exitCode); err != nil {
		return err
	}
	return events.Emit(ctx, store, layout, events.ShardStatus(workerID, shard.ShardKey, coord.StatusFailed, shard.Attempt, shard.LastExitCode, "attempts exhausted"))
}

// tryClaim performs the tentative-write, settle, confirm sequence. won is
// false (with no error) whenever another worker's token is found on
// confirmation; this is the expected outcome of losing a race, not a
// failure.
func tryClaim(ctx context.Context, store objectstore.Client, key string, shard coord.Shard, workerID string) (won bool, claimed *coord.Shard, err error) {
	token := uuid.New().String()
	now := time.Now().UTC()

	tentative := shard
	tentative.Status = coord.StatusRunning
	tentative.Attempt++
	tentative.ClaimToken = token
	tentative.LastWorkerID = workerID
	tentative.StartedAt = now.Format(time.RFC3339)
	tentative.UpdatedAt = tentative.StartedAt

	if err := objectstore.PutJSON(ctx, store, key, tentative); err != nil {
		return false, nil, err
	}

	if err := sleepCtx(ctx, settleDelay); err != nil {
		return false, nil, err
	}

	var confirmed coord.Shard
	found, err := objectstore.GetJSON(ctx, store, key, &confirmed)
	if err != nil {
		return false, nil, err
	}
	if !found || confirmed.ClaimToken != token || confirmed.LastWorkerID != workerID {
		return false, nil, nil
	}
	return true, &confirmed, nil
}

// Complete applies the outcome of one shard attempt: exit code 0 is
// success; any non-zero code, including TimeoutExitCode, is eligible for
// retry (with exponential backoff) until max_attempts is reached, at
// which point it becomes a terminal failure (timed_out if the exit code
// was TimeoutExitCode, failed otherwise) and is recorded in the
// dead-letter queue.
func Complete(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, shard *coord.Shard, exitCode int, workerID string) error {
	key := layout.ShardKey(shard.ShardKey)
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)

	code := exitCode
	shard.LastExitCode = &code
	shard.LastWorkerID = workerID
	shard.UpdatedAt = nowStr
	shard.ClaimToken = ""

	var reason string
	switch {
	case exitCode == 0:
		shard.Status = coord.StatusSucceeded
		shard.FinishedAt = nowStr
	case shard.Attempt >= shard.MaxAttempts:
		shard.FinishedAt = nowStr
		if exitCode == coord.TimeoutExitCode {
			shard.Status = coord.StatusTimedOut
			reason = "shard execution timed out, attempts exhausted"
		} else {
			shard.Status = coord.StatusFailed
			reason = fmt.Sprintf("exit code %d, attempts exhausted", exitCode)
		}
	default:
		delay := RetryDelay(shard.Attempt)
		retryAt := now.Add(delay)
		shard.Status = coord.StatusRetrying
		shard.RetryAvailableAtEpoch = retryAt.Unix()
		shard.RetryAvailableAt = retryAt.Format(time.RFC3339)
		if exitCode == coord.TimeoutExitCode {
			reason = fmt.Sprintf("shard execution timed out, retrying in %s", delay)
		} else {
			reason = fmt.Sprintf("exit code %d, retrying in %s", exitCode, delay)
		}
	}

	if err := objectstore.PutJSON(ctx, store, key, *shard); err != nil {
		return err
	}

	if shard.Status == coord.StatusFailed || shard.Status == coord.StatusTimedOut {
		if err := dlq.Record(ctx, store, layout, *shard, workerID, exitCode); err != nil {
			return err
		}
	}

	var retrySeconds int
	var nextRetryAt string
	if shard.Status == coord.StatusRetrying {
		retrySeconds = int(time.Until(time.Unix(shard.RetryAvailableAtEpoch, 0)).Seconds())
		nextRetryAt = shard.RetryAvailableAt
	}

	ev := events.ShardStatus(workerID, shard.ShardKey, shard.Status, shard.Attempt, &code, reason)
	ev.RetryInSeconds = retrySeconds
	ev.NextRetryAt = nextRetryAt
	return events.Emit(ctx, store, layout, ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
