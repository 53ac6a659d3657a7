// Package oracle answers "is this run done" from outside the worker
// fleet (spec.md §4.9): a terminal-status-first check with a
// manifest-plus-epoch deadline fallback for when the status document
// itself is missing or stale, plus a discovery mode that enumerates every
// run under a benchmark UUID. Grounded on
// original_source/scripts/run_completion.py.
package oracle

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
)

// Result is the outcome of one completion check.
type Result struct {
	RunID         string          `json:"run_id"`
	BenchmarkUUID string          `json:"benchmark_uuid"`
	Complete      bool            `json:"complete"`
	Source        string          `json:"source"` // "status", "deadline", or "unknown"
	State         string          `json:"state,omitempty"`
	Counts        coord.ShardCounts `json:"counts,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Check determines whether one run has finished. It first trusts
// status/run.json if present and terminal; if that document is absent or
// still non-terminal, it falls back to the launcher's manifest timeout:
// the run is treated as complete once now exceeds run_id (interpreted as
// a start epoch) plus timeout_hours plus graceSeconds, since a hung
// worker fleet will never write the terminal status itself.
func Check(ctx context.Context, store objectstore.Client, layout coord.KeyLayout, graceSeconds int) (Result, error) {
	result := Result{RunID: layout.RunID, BenchmarkUUID: layout.BenchmarkUUID}

	var status coord.RunStatus
	found, err := objectstore.GetJSON(ctx, store, layout.RunStatusKey(), &status)
	if err != nil {
		return result, err
	}
	if found && status.Terminal {
		result.Complete = true
		result.Source = "status"
		result.State = status.State
		result.Counts = status.Counts
		return result, nil
	}
	if found {
		result.State = status.State
		result.Counts = status.Counts
	}

	var manifest coord.Manifest
	manifestFound, err := objectstore.GetJSON(ctx, store, layout.ManifestKey(), &manifest)
	if err != nil {
		return result, err
	}
	if !manifestFound || manifest.TimeoutHours <= 0 {
		result.Source = "unknown"
		result.Reason = "no terminal status and no usable manifest deadline"
		return result, nil
	}

	startEpoch, err := strconv.ParseInt(layout.RunID, 10, 64)
	if err != nil {
		result.Source = "unknown"
		result.Reason = "run_id is not a parseable start epoch"
		return result, nil
	}
	deadline := time.Unix(startEpoch, 0).
		Add(time.Duration(manifest.TimeoutHours * float64(time.Hour))).
		Add(time.Duration(graceSeconds) * time.Second)
	if time.Now().After(deadline) {
		result.Complete = true
		result.Source = "deadline"
		result.Reason = "manifest timeout_hours + grace_seconds deadline exceeded"
		return result, nil
	}

	result.Source = "unknown"
	result.Reason = "run still within manifest deadline"
	return result, nil
}

// Discover enumerates every run_id known for a benchmark UUID by listing
// the shared "runs/" prefix and extracting the run_id path segment, then
// checks each one. Results are ordered newest first (largest decimal
// run_id first); every run is returned, complete or not.
func Discover(ctx context.Context, store objectstore.Client, benchmarkUUID string, graceSeconds int) ([]Result, error) {
	keys, err := store.List(ctx, "runs/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var runIDs []string
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) < 3 || parts[0] != "runs" {
			continue
		}
		runID, uuid := parts[1], parts[2]
		if runID == "_control" || uuid != benchmarkUUID {
			continue
		}
		if !seen[runID] {
			seen[runID] = true
			runIDs = append(runIDs, runID)
		}
	}

	sort.Slice(runIDs, func(i, j int) bool {
		if len(runIDs[i]) != len(runIDs[j]) {
			return len(runIDs[i]) > len(runIDs[j])
		}
		return runIDs[i] > runIDs[j]
	})

	results := make([]Result, 0, len(runIDs))
	for _, runID := range runIDs {
		layout := coord.KeyLayout{RunID: runID, BenchmarkUUID: benchmarkUUID}
		res, err := Check(ctx, store, layout, graceSeconds)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
