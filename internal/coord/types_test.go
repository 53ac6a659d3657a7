package coord

import (
	"testing"
	"time"
)

func TestShardCounts_Inflight(t *testing.T) {
	c := ShardCounts{Queued: 2, Running: 1, Retrying: 1, Succeeded: 3, Failed: 1}
	if got := c.Inflight(); got != 4 {
		t.Fatalf("Inflight() = %d, want 4", got)
	}
}

func TestLock_Expired(t *testing.T) {
	future := &Lock{ExpiresAtEpoch: time.Now().Add(time.Hour).Unix()}
	if future.Expired(time.Now()) {
		t.Fatalf("future lock reported expired")
	}

	past := &Lock{ExpiresAtEpoch: time.Now().Add(-time.Hour).Unix()}
	if !past.Expired(time.Now()) {
		t.Fatalf("past lock reported not expired")
	}

	var nilLock *Lock
	if !nilLock.Expired(time.Now()) {
		t.Fatalf("nil lock must report expired")
	}
}

func TestKeyLayout_KeyShapes(t *testing.T) {
	k := KeyLayout{RunID: "1700000000", BenchmarkUUID: "00000000000000000000000000000000"}

	if got, want := k.ManifestKey(), "runs/1700000000/00000000000000000000000000000000/manifest.json"; got != want {
		t.Fatalf("ManifestKey() = %q, want %q", got, want)
	}
	if got, want := k.ShardKey("a"), "runs/1700000000/00000000000000000000000000000000/queue/shards/a.json"; got != want {
		t.Fatalf("ShardKey() = %q, want %q", got, want)
	}
	if got, want := k.DLQKey("a", 3), "runs/1700000000/00000000000000000000000000000000/dlq/a-3.json"; got != want {
		t.Fatalf("DLQKey() = %q, want %q", got, want)
	}
	if got := GlobalLockKey(); got != "runs/_control/global-lock.json" {
		t.Fatalf("GlobalLockKey() = %q", got)
	}
}
