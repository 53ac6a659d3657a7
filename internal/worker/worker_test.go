package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/lock"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/objectstore/memstore"
	"github.com/scfuzzbench/runcoord/internal/queue"
	"github.com/scfuzzbench/runcoord/internal/runner"
)

type fakeRunner struct {
	exitCode int
}

func (f fakeRunner) Run(_ context.Context, _ runner.Job) (int, error) {
	return f.exitCode, nil
}

func TestWorker_Run_ExitsWhenRunBecomesTerminalAfterComplete(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}
	require.NoError(t, queue.Initialize(context.Background(), store, layout,
		[]coord.ShardSpec{{ShardKey: "a", FuzzerKey: "fz", RunIndex: 0}}, 3, "worker-1", 1))

	lockM := lock.New(store, coord.GlobalLockKey(), zerolog.Nop())
	_, err := lockM.Acquire(context.Background(), lock.AcquireOptions{
		Owner: "worker-1", RunID: layout.RunID, BenchmarkUUID: layout.BenchmarkUUID,
		Actor: "worker-1", LeaseSeconds: 60,
	})
	require.NoError(t, err)

	w := New(store, layout, lockM, fakeRunner{exitCode: 0}, Config{
		WorkerID:          "worker-1",
		PollInterval:      10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		IdlePollLimit:     2,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = w.Run(ctx)
	require.NoError(t, err)

	var shard coord.Shard
	found, err := objectstore.GetJSON(context.Background(), store, layout.ShardKey("a"), &shard)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, coord.StatusSucceeded, shard.Status)
}

func TestWorker_Run_ExitsWhenRunAlreadyTerminalWithNothingToClaim(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}
	require.NoError(t, queue.Initialize(context.Background(), store, layout,
		[]coord.ShardSpec{{ShardKey: "a", FuzzerKey: "fz", RunIndex: 0}}, 3, "worker-1", 1))

	lockM := lock.New(store, coord.GlobalLockKey(), zerolog.Nop())
	_, err := lockM.Acquire(context.Background(), lock.AcquireOptions{
		Owner: "worker-1", RunID: layout.RunID, BenchmarkUUID: layout.BenchmarkUUID,
		Actor: "worker-1", LeaseSeconds: 60,
	})
	require.NoError(t, err)

	shard, err := queue.Claim(context.Background(), store, layout, "worker-1")
	require.NoError(t, err)
	require.NoError(t, queue.Complete(context.Background(), store, layout, shard, 0, "worker-1"))

	w := New(store, layout, lockM, fakeRunner{exitCode: 0}, Config{
		WorkerID:          "worker-1",
		PollInterval:      time.Hour,
		HeartbeatInterval: time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = w.Run(ctx)
	require.NoError(t, err, "a terminal run with nothing claimable must exit instead of sleeping for PollInterval")
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}

	lockM := lock.New(store, coord.GlobalLockKey(), zerolog.Nop())
	_, err := lockM.Acquire(context.Background(), lock.AcquireOptions{
		Owner: "worker-1", RunID: layout.RunID, BenchmarkUUID: layout.BenchmarkUUID,
		Actor: "worker-1", LeaseSeconds: 60,
	})
	require.NoError(t, err)

	w := New(store, layout, lockM, fakeRunner{exitCode: 0}, Config{
		WorkerID:          "worker-1",
		PollInterval:      50 * time.Millisecond,
		HeartbeatInterval: time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
