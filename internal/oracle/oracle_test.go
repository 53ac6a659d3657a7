package oracle

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/objectstore/memstore"
)

func TestCheck_TrustsTerminalStatus(t *testing.T) {
	store := memstore.New()
	layout := coord.KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}
	require.NoError(t, objectstore.PutJSON(context.Background(), store, layout.RunStatusKey(),
		coord.RunStatus{State: coord.RunStateSucceeded, Terminal: true}))

	result, err := Check(context.Background(), store, layout, 0)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, "status", result.Source)
}

func TestCheck_FallsBackToManifestDeadline(t *testing.T) {
	store := memstore.New()
	past := time.Now().Add(-2 * time.Hour).Unix()
	layout := coord.KeyLayout{RunID: timeAsRunID(past), BenchmarkUUID: "00000000000000000000000000000000"}

	require.NoError(t, objectstore.PutJSON(context.Background(), store, layout.ManifestKey(),
		coord.Manifest{TimeoutHours: 1}))

	result, err := Check(context.Background(), store, layout, 0)
	require.NoError(t, err)
	assert.True(t, result.Complete)
	assert.Equal(t, "deadline", result.Source)
}

func TestCheck_GraceSecondsExtendsDeadline(t *testing.T) {
	store := memstore.New()
	past := time.Now().Add(-90 * time.Minute).Unix()
	layout := coord.KeyLayout{RunID: timeAsRunID(past), BenchmarkUUID: "00000000000000000000000000000000"}

	require.NoError(t, objectstore.PutJSON(context.Background(), store, layout.ManifestKey(),
		coord.Manifest{TimeoutHours: 1}))

	// timeout_hours alone (deadline at -30min) would already be complete;
	// a 2h grace period pushes the deadline 90 minutes into the future.
	result, err := Check(context.Background(), store, layout, 7200)
	require.NoError(t, err)
	assert.False(t, result.Complete)
	assert.Equal(t, "unknown", result.Source)
}

func TestCheck_UnknownWithinDeadlineAndNoStatus(t *testing.T) {
	store := memstore.New()
	now := time.Now().Unix()
	layout := coord.KeyLayout{RunID: timeAsRunID(now), BenchmarkUUID: "00000000000000000000000000000000"}

	require.NoError(t, objectstore.PutJSON(context.Background(), store, layout.ManifestKey(),
		coord.Manifest{TimeoutHours: 10}))

	result, err := Check(context.Background(), store, layout, 0)
	require.NoError(t, err)
	assert.False(t, result.Complete)
	assert.Equal(t, "unknown", result.Source)
}

func TestDiscover_FindsRunsForBenchmark(t *testing.T) {
	store := memstore.New()
	benchmark := "00000000000000000000000000000000"
	layoutA := coord.KeyLayout{RunID: "1700000001", BenchmarkUUID: benchmark}
	layoutB := coord.KeyLayout{RunID: "1700000002", BenchmarkUUID: benchmark}

	require.NoError(t, objectstore.PutJSON(context.Background(), store, layoutA.RunStatusKey(),
		coord.RunStatus{State: coord.RunStateSucceeded, Terminal: true}))
	require.NoError(t, objectstore.PutJSON(context.Background(), store, layoutB.ManifestKey(),
		coord.Manifest{TimeoutHours: 10}))

	results, err := Discover(context.Background(), store, benchmark, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func timeAsRunID(epoch int64) string {
	return strconv.FormatInt(epoch, 10)
}
