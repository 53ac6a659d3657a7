package runstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scfuzzbench/runcoord/internal/coord"
)

func TestDerive_RunningWhileAnythingInflight(t *testing.T) {
	state, terminal := Derive(coord.ShardCounts{Queued: 1, Succeeded: 2, Total: 3})
	assert.Equal(t, coord.RunStateRunning, state)
	assert.False(t, terminal)
}

func TestDerive_SucceededWhenNothingFailed(t *testing.T) {
	state, terminal := Derive(coord.ShardCounts{Succeeded: 3, Total: 3})
	assert.Equal(t, coord.RunStateSucceeded, state)
	assert.True(t, terminal)
}

func TestDerive_FailedWhenAnyShardFailed(t *testing.T) {
	state, terminal := Derive(coord.ShardCounts{Succeeded: 2, Failed: 1, Total: 3})
	assert.Equal(t, coord.RunStateFailed, state)
	assert.True(t, terminal)
}

func TestDerive_FailedWhenAnyShardTimedOut(t *testing.T) {
	state, terminal := Derive(coord.ShardCounts{Succeeded: 2, TimedOut: 1, Total: 3})
	assert.Equal(t, coord.RunStateFailed, state)
	assert.True(t, terminal)
}

func TestDerive_NotTerminalWithNoShards(t *testing.T) {
	state, terminal := Derive(coord.ShardCounts{})
	assert.Equal(t, coord.RunStateRunning, state)
	assert.False(t, terminal)
}
