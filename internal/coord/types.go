// Package coord holds the shared data types and sentinel errors for the
// run-coordination core: the lock, shard, run-status, event, worker-status
// and DLQ JSON documents that live under runs/<run_id>/<benchmark_uuid>/ in
// the object store.
package coord

import (
	"strconv"
	"time"

	"github.com/scfuzzbench/runcoord/internal/validate"
)

// Shard lifecycle states. Terminal states are Succeeded, Failed, TimedOut.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusRetrying  = "retrying"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
	StatusUnknown   = "unknown"
)

// Run states.
const (
	RunStateRunning   = "running"
	RunStateSucceeded = "succeeded"
	RunStateFailed    = "failed"
)

// Event types.
const (
	EventTypeShardStatus = "shard_status"
	EventTypeRunStatus   = "run_status"
)

// Worker states.
const (
	WorkerStateIdle    = "idle"
	WorkerStateRunning = "running"
	WorkerStateStopped = "stopped"
)

// TimeoutExitCode is the sentinel exit code the external runner uses to
// signal that a shard hit the platform execution timeout.
const TimeoutExitCode = 124

// MissingRunnerExitCode is used when the fuzzer's run script cannot be found
// or executed.
const MissingRunnerExitCode = 127

// ShardSpec is the validated input to the queue initializer: one unit of
// work identified by (shard_key, fuzzer_key, run_index).
type ShardSpec struct {
	ShardKey  string `json:"shard_key"`
	FuzzerKey string `json:"fuzzer_key"`
	RunIndex  int    `json:"run_index"`
}

// Shard is the persisted state of one shard under queue/shards/<shard_key>.json.
type Shard struct {
	ShardKey              string     `json:"shard_key"`
	FuzzerKey             string     `json:"fuzzer_key"`
	RunIndex              int        `json:"run_index"`
	Status                string     `json:"status"`
	Attempt               int        `json:"attempt"`
	MaxAttempts           int        `json:"max_attempts"`
	ClaimToken            string     `json:"claim_token"`
	LastWorkerID          string     `json:"last_worker_id"`
	LastExitCode          *int       `json:"last_exit_code"`
	RetryAvailableAtEpoch int64      `json:"retry_available_at_epoch"`
	RetryAvailableAt      string     `json:"retry_available_at,omitempty"`
	CreatedAt             string     `json:"created_at"`
	UpdatedAt             string     `json:"updated_at"`
	StartedAt             string     `json:"started_at,omitempty"`
	FinishedAt            string     `json:"finished_at,omitempty"`
}

// ShardCounts tallies shards by status; Total is the requested shard count.
type ShardCounts struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Retrying  int `json:"retrying"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	Unknown   int `json:"unknown"`
	Total     int `json:"total"`
}

// Inflight returns the number of shards that have not reached a terminal state.
func (c ShardCounts) Inflight() int {
	return c.Queued + c.Running + c.Retrying
}

// RunStatus is the aggregated, derived state of a run under status/run.json.
type RunStatus struct {
	RunID                string      `json:"run_id"`
	BenchmarkUUID         string      `json:"benchmark_uuid"`
	State                string      `json:"state"`
	Terminal              bool        `json:"terminal"`
	Counts                ShardCounts `json:"counts"`
	RequestedShards       int         `json:"requested_shards"`
	MaxParallelInstances  int         `json:"max_parallel_instances"`
	ShardMaxAttempts      int         `json:"shard_max_attempts"`
	LockOwner             string      `json:"lock_owner"`
	CreatedAt             string      `json:"created_at"`
	UpdatedAt             string      `json:"updated_at"`
	CompletedAt           string      `json:"completed_at,omitempty"`
}

// Manifest is the launcher-written, read-only run manifest.
type Manifest struct {
	TimeoutHours float64  `json:"timeout_hours"`
	FuzzerKeys   []string `json:"fuzzer_keys,omitempty"`
	ToolVersions map[string]string `json:"tool_versions,omitempty"`
	TargetRepo   string   `json:"target_repo,omitempty"`
	TargetCommit string   `json:"target_commit,omitempty"`
}

// Event is one append-only audit-trail record under status/events/.
type Event struct {
	EventAt        string      `json:"event_at"`
	EventType      string      `json:"event_type"`
	RunID          string      `json:"run_id"`
	BenchmarkUUID  string      `json:"benchmark_uuid"`
	ShardKey       string      `json:"shard_key"`
	Status         string      `json:"status"`
	WorkerID       string      `json:"worker_id"`
	Attempt        int         `json:"attempt,omitempty"`
	ExitCode       *int        `json:"exit_code,omitempty"`
	RetryInSeconds int         `json:"retry_in_seconds,omitempty"`
	NextRetryAt    string      `json:"next_retry_at,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Counts         *ShardCounts `json:"counts,omitempty"`
	Terminal       *bool       `json:"terminal,omitempty"`
}

// WorkerStatus is the advisory per-worker status object.
type WorkerStatus struct {
	RunID         string `json:"run_id"`
	BenchmarkUUID string `json:"benchmark_uuid"`
	WorkerID      string `json:"worker_id"`
	Hostname      string `json:"hostname"`
	LockOwner     string `json:"lock_owner"`
	State         string `json:"state"`
	CurrentShard  string `json:"current_shard"`
	Attempt       int    `json:"attempt"`
	LastExitCode  *int   `json:"last_exit_code,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// DLQEntry is a write-once summary of one permanently failed shard attempt.
type DLQEntry struct {
	RunID         string `json:"run_id"`
	BenchmarkUUID string `json:"benchmark_uuid"`
	ShardKey      string `json:"shard_key"`
	FuzzerKey     string `json:"fuzzer_key"`
	Status        string `json:"status"`
	Attempt       int    `json:"attempt"`
	MaxAttempts   int    `json:"max_attempts"`
	ExitCode      int    `json:"exit_code"`
	WorkerID      string `json:"worker_id"`
	FailedAt      string `json:"failed_at"`
}

// Lock is the single global benchmark-run lock object.
type Lock struct {
	Owner           string `json:"owner"`
	RunID           string `json:"run_id"`
	BenchmarkUUID   string `json:"benchmark_uuid"`
	Generation      int64  `json:"generation"`
	Token           string `json:"token"`
	LeaseSeconds    int    `json:"lease_seconds"`
	UpdatedBy       string `json:"updated_by"`
	AcquiredAt      string `json:"acquired_at"`
	AcquiredAtEpoch int64  `json:"acquired_at_epoch"`
	ExpiresAt       string `json:"expires_at"`
	ExpiresAtEpoch  int64  `json:"expires_at_epoch"`
}

// Expired reports whether the lock is no longer valid at the given instant.
func (l *Lock) Expired(now time.Time) bool {
	if l == nil {
		return true
	}
	return now.Unix() >= l.ExpiresAtEpoch
}

// KeyLayout computes the object-store key prefixes for one run.
type KeyLayout struct {
	RunID         string
	BenchmarkUUID string
}

const globalLockKey = "runs/_control/global-lock.json"

// GlobalLockKey is the fixed key of the singleton cross-run lock object.
func GlobalLockKey() string { return globalLockKey }

func (k KeyLayout) rootPrefix() string {
	return "runs/" + validate.Sanitize(k.RunID) + "/" + validate.Sanitize(k.BenchmarkUUID)
}

// ManifestKey is the launcher-written manifest object key.
func (k KeyLayout) ManifestKey() string { return k.rootPrefix() + "/manifest.json" }

// ShardPrefix is the prefix under which one object per shard lives.
func (k KeyLayout) ShardPrefix() string { return k.rootPrefix() + "/queue/shards/" }

// ShardKey is the object key of one shard's state. shardKey is sanitized
// (spec.md §9) before concatenation to rule out path traversal or prefix
// collisions.
func (k KeyLayout) ShardKey(shardKey string) string {
	return k.ShardPrefix() + validate.Sanitize(shardKey) + ".json"
}

// RunStatusKey is the object key of the aggregated run-status document.
func (k KeyLayout) RunStatusKey() string { return k.rootPrefix() + "/status/run.json" }

// EventPrefix is the prefix under which event-log objects are written.
func (k KeyLayout) EventPrefix() string { return k.rootPrefix() + "/status/events/" }

// WorkerStatusKey is the object key of one worker's advisory status.
// workerID is sanitized (spec.md §9) before concatenation.
func (k KeyLayout) WorkerStatusKey(workerID string) string {
	return k.rootPrefix() + "/status/workers/" + validate.Sanitize(workerID) + ".json"
}

// DLQPrefix is the prefix under which dead-letter entries are written.
func (k KeyLayout) DLQPrefix() string { return k.rootPrefix() + "/dlq/" }

// DLQKey is the object key of one shard attempt's dead-letter entry.
// shardKey is sanitized (spec.md §9) before concatenation.
func (k KeyLayout) DLQKey(shardKey string, attempt int) string {
	return k.DLQPrefix() + validate.Sanitize(shardKey) + "-" + strconv.Itoa(attempt) + ".json"
}
