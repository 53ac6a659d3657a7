package worker

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveWorkerID_PrefersExplicitEnvOverride(t *testing.T) {
	os.Setenv("WORKER_ID", "explicit-worker")
	defer os.Unsetenv("WORKER_ID")

	assert.Equal(t, "explicit-worker", ResolveWorkerID(context.Background()))
}

func TestResolveWorkerID_FallsBackToHostnameOffEC2(t *testing.T) {
	os.Unsetenv("WORKER_ID")
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("hostname unavailable in this environment")
	}
	assert.Equal(t, host, ResolveWorkerID(context.Background()))
}
