// Package dlq records permanently failed shard attempts (spec.md §4.6),
// grounded on the dlq() method in original_source/scripts/s3_queue_worker.py.
package dlq

import (
	"context"
	"time"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
)

// Record writes a write-once dead-letter entry for one exhausted shard
// attempt. The key includes the attempt number, so retried-then-exhausted
// shards never overwrite an earlier entry.
func Record(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, shard coord.Shard, workerID string, exitCode int) error {
	entry := coord.DLQEntry{
		RunID:         layout.RunID,
		BenchmarkUUID: layout.BenchmarkUUID,
		ShardKey:      shard.ShardKey,
		FuzzerKey:     shard.FuzzerKey,
		Status:        shard.Status,
		Attempt:       shard.Attempt,
		MaxAttempts:   shard.MaxAttempts,
		ExitCode:      exitCode,
		WorkerID:      workerID,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	return objectstore.PutJSON(ctx, store, layout.DLQKey(shard.ShardKey, shard.Attempt), entry)
}
