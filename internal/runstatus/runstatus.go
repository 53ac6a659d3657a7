// Package runstatus derives and persists the aggregated run-status document
// (spec.md §4.3/4.4) as a pure function of shard counts. Grounded on the
// update_run_status/refresh_run_status logic in
// original_source/scripts/s3_queue_init.py and s3_queue_worker.py.
package runstatus

import (
	"context"
	"time"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/events"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
)

// Derive computes state and terminal from shard counts alone: a run is
// terminal once no shard is queued, running or retrying and at least one
// shard exists; it is failed if any shard ended failed or timed_out,
// otherwise succeeded.
func Derive(counts coord.ShardCounts) (state string, terminal bool) {
	inflight := counts.Inflight()
	terminal = inflight == 0 && counts.Total > 0
	if !terminal {
		return coord.RunStateRunning, false
	}
	if counts.Failed > 0 || counts.TimedOut > 0 {
		return coord.RunStateFailed, true
	}
	return coord.RunStateSucceeded, true
}

// Count scans every shard object under layout and tallies counts by status.
// Unparseable or unrecognized-status shard objects count as Unknown rather
// than aborting the scan (spec.md §7). A shard object that cannot be read
// for any other reason is counted as Unknown too.
func Count(ctx context.Context, store objectstore.Client, layout coord.KeyLayout) (coord.ShardCounts, error) {
	var counts coord.ShardCounts
	keys, err := store.List(ctx, layout.ShardPrefix())
	if err != nil {
		return counts, err
	}

	for _, key := range keys {
		var shard coord.Shard
		found, err := objectstore.GetJSON(ctx, store, key, &shard)
		if err != nil || !found {
			counts.Unknown++
			counts.Total++
			continue
		}
		counts.Total++
		switch shard.Status {
		case coord.StatusQueued:
			counts.Queued++
		case coord.StatusRunning:
			counts.Running++
		case coord.StatusRetrying:
			counts.Retrying++
		case coord.StatusSucceeded:
			counts.Succeeded++
		case coord.StatusFailed:
			counts.Failed++
		case coord.StatusTimedOut:
			counts.TimedOut++
		default:
			counts.Unknown++
		}
	}
	return counts, nil
}

// Refresh recomputes counts, derives state, and writes status/run.json if
// anything observable changed, emitting a run_status event on every state
// transition (including the first terminal transition).
func Refresh(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, lockOwner string, maxParallelInstances, shardMaxAttempts int) (*coord.RunStatus, error) {
	counts, err := Count(ctx, store, layout)
	if err != nil {
		return nil, err
	}
	state, terminal := Derive(counts)

	var previous coord.RunStatus
	hadPrevious, err := objectstore.GetJSON(ctx, store, layout.RunStatusKey(), &previous)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	status := coord.RunStatus{
		RunID:                layout.RunID,
		BenchmarkUUID:        layout.BenchmarkUUID,
		State:                state,
		Terminal:             terminal,
		Counts:               counts,
		RequestedShards:      counts.Total,
		MaxParallelInstances: maxParallelInstances,
		ShardMaxAttempts:     shardMaxAttempts,
		LockOwner:            lockOwner,
		UpdatedAt:            now,
	}
	if hadPrevious {
		status.CreatedAt = previous.CreatedAt
		status.RequestedShards = previous.RequestedShards
	} else {
		status.CreatedAt = now
	}
	if terminal {
		if hadPrevious && previous.CompletedAt != "" {
			status.CompletedAt = previous.CompletedAt
		} else {
			status.CompletedAt = now
		}
	}

	changed := !hadPrevious || previous.State != state || previous.Terminal != terminal ||
		previous.Counts != counts
	if !changed {
		return &status, nil
	}

	if err := objectstore.PutJSON(ctx, store, layout.RunStatusKey(), status); err != nil {
		return nil, err
	}
	if err := events.Emit(ctx, store, layout, events.RunStatus(state, counts, terminal)); err != nil {
		return nil, err
	}
	return &status, nil
}
