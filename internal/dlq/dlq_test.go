package dlq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/objectstore/memstore"
)

func TestRecord_WritesOneEntryPerAttempt(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}
	shard := coord.Shard{ShardKey: "a", FuzzerKey: "fz", Status: coord.StatusFailed, Attempt: 2, MaxAttempts: 2}

	require.NoError(t, Record(context.Background(), store, layout, shard, "worker-1", 1))

	var entry coord.DLQEntry
	found, err := objectstore.GetJSON(context.Background(), store, layout.DLQKey("a", 2), &entry)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", entry.ShardKey)
	assert.Equal(t, 1, entry.ExitCode)
	assert.Equal(t, "worker-1", entry.WorkerID)
	assert.Equal(t, coord.StatusFailed, entry.Status)
}

func TestRecord_UsesShardsActualTerminalStatus(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}
	shard := coord.Shard{ShardKey: "b", FuzzerKey: "fz", Status: coord.StatusTimedOut, Attempt: 3, MaxAttempts: 3}

	require.NoError(t, Record(context.Background(), store, layout, shard, "worker-1", coord.TimeoutExitCode))

	var entry coord.DLQEntry
	found, err := objectstore.GetJSON(context.Background(), store, layout.DLQKey("b", 3), &entry)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, coord.StatusTimedOut, entry.Status)
}

func TestRecord_DistinctAttemptsDoNotCollide(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}

	require.NoError(t, Record(context.Background(), store, layout,
		coord.Shard{ShardKey: "a", Attempt: 1, MaxAttempts: 2}, "w1", 1))
	require.NoError(t, Record(context.Background(), store, layout,
		coord.Shard{ShardKey: "a", Attempt: 2, MaxAttempts: 2}, "w1", 1))

	keys, err := store.List(context.Background(), layout.DLQPrefix())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
