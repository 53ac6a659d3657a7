// Package events appends audit-trail records to the write-once event log
// (spec.md §4.5). Grounded on the emit_event method shared by
// original_source/scripts/s3_queue_worker.py and s3_queue_init.py, and on
// the teacher's internal/events/bus.go pub-sub shape (here the "subscriber"
// is the object store itself, not an in-process channel).
package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/validate"
)

// Emit writes one event under layout.EventPrefix(), keyed so that
// concurrent writers never collide and a prefix listing sorts
// chronologically: <ts_ms>-<worker>-<shard>-<status>-<rand>.json.
func Emit(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, ev coord.Event) error {
	if ev.EventAt == "" {
		ev.EventAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	ev.RunID = layout.RunID
	ev.BenchmarkUUID = layout.BenchmarkUUID

	worker := ev.WorkerID
	if worker == "" {
		worker = "_"
	}
	shard := ev.ShardKey
	if shard == "" {
		shard = "_"
	}
	status := ev.Status
	if status == "" {
		status = "_"
	}

	key := fmt.Sprintf("%s%d-%s-%s-%s-%s.json",
		layout.EventPrefix(), time.Now().UnixMilli(),
		validate.Sanitize(worker), validate.Sanitize(shard), validate.Sanitize(status), randSuffix())

	return objectstore.PutJSON(ctx, store, key, ev)
}

// ShardStatus is a convenience constructor for a shard_status event.
func ShardStatus(workerID, shardKey, status string, attempt int, exitCode *int, reason string) coord.Event {
	return coord.Event{
		EventType: coord.EventTypeShardStatus,
		ShardKey:  shardKey,
		Status:    status,
		WorkerID:  workerID,
		Attempt:   attempt,
		ExitCode:  exitCode,
		Reason:    reason,
	}
}

// RunStatus is a convenience constructor for a run_status event.
func RunStatus(status string, counts coord.ShardCounts, terminal bool) coord.Event {
	return coord.Event{
		EventType: coord.EventTypeRunStatus,
		Status:    status,
		Counts:    &counts,
		Terminal:  &terminal,
	}
}

func randSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
