package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/objectstore/memstore"
)

func TestEmit_WritesUnderEventPrefixWithKeyComponents(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}

	ev := ShardStatus("worker-1", "shard-a", coord.StatusRunning, 1, nil, "")
	require.NoError(t, Emit(context.Background(), store, layout, ev))

	keys, err := store.List(context.Background(), layout.EventPrefix())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "worker-1")
	assert.Contains(t, keys[0], "shard-a")
	assert.Contains(t, keys[0], coord.StatusRunning)
}

func TestEmit_NeverOverwritesPriorEvents(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}

	for i := 0; i < 5; i++ {
		require.NoError(t, Emit(context.Background(), store, layout,
			ShardStatus("worker-1", "shard-a", coord.StatusRunning, 1, nil, "")))
	}

	keys, err := store.List(context.Background(), layout.EventPrefix())
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func TestRunStatus_CarriesCountsAndTerminal(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}
	counts := coord.ShardCounts{Succeeded: 1, Total: 1}

	require.NoError(t, Emit(context.Background(), store, layout, RunStatus(coord.RunStateSucceeded, counts, true)))

	keys, err := store.List(context.Background(), layout.EventPrefix())
	require.NoError(t, err)
	require.Len(t, keys, 1)

	var stored coord.Event
	found, err := objectstore.GetJSON(context.Background(), store, keys[0], &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, stored.Terminal)
	assert.True(t, *stored.Terminal)
	assert.Equal(t, counts, *stored.Counts)
}
