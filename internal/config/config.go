// Package config loads run-coordination settings from the environment,
// grounded on the teacher's envconfig-based Config: a flat struct with
// envconfig tags and defaults, parsed under a single prefix and logged
// once at startup.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds settings shared by benchworker and benchctl. Environment
// variables are parsed with the RUNCOORD_ prefix, e.g.
// RUNCOORD_OBJECT_STORE_BUCKET, RUNCOORD_LEASE_SECONDS.
type Config struct {
	// Object-store backend
	ObjectStoreBucket    string `envconfig:"OBJECT_STORE_BUCKET" required:"true"`
	ObjectStoreRegion    string `envconfig:"OBJECT_STORE_REGION" default:"us-east-1"`
	ObjectStoreEndpoint  string `envconfig:"OBJECT_STORE_ENDPOINT" default:""`
	ObjectStoreAccessKey string `envconfig:"OBJECT_STORE_ACCESS_KEY" default:""`
	ObjectStoreSecretKey string `envconfig:"OBJECT_STORE_SECRET_KEY" default:""`
	ObjectStoreProfile   string `envconfig:"OBJECT_STORE_PROFILE" default:""`
	ObjectStorePathStyle bool   `envconfig:"OBJECT_STORE_PATH_STYLE" default:"false"`

	// Run identity
	RunID         string `envconfig:"RUN_ID" required:"true"`
	BenchmarkUUID string `envconfig:"BENCHMARK_UUID" required:"true"`

	// Lock and lease
	LeaseSeconds          int     `envconfig:"LEASE_SECONDS" default:"90"`
	LockPollSeconds       float64 `envconfig:"LOCK_POLL_SECONDS" default:"5"`
	AcquireTimeoutSeconds int     `envconfig:"ACQUIRE_TIMEOUT_SECONDS" default:"0"`

	// Queue
	ShardMaxAttempts     int `envconfig:"SHARD_MAX_ATTEMPTS" default:"3"`
	MaxParallelInstances int `envconfig:"MAX_PARALLEL_INSTANCES" default:"1"`

	// Worker
	WorkerID                 string `envconfig:"WORKER_ID" default:""`
	WorkDir                  string `envconfig:"WORKDIR" default:"/tmp/runcoord/work"`
	LogDir                   string `envconfig:"LOG_DIR" default:"/tmp/runcoord/logs"`
	FuzzersDir               string `envconfig:"FUZZERS_DIR" required:"true"`
	PollIntervalSeconds      int    `envconfig:"POLL_INTERVAL_SECONDS" default:"5"`
	HeartbeatIntervalSeconds int    `envconfig:"HEARTBEAT_INTERVAL_SECONDS" default:"30"`
	IdlePollLimit            int    `envconfig:"IDLE_POLL_LIMIT" default:"0"`

	// Completion oracle
	GraceSeconds int `envconfig:"GRACE_SECONDS" default:"3600"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// New parses environment variables prefixed RUNCOORD_ into a Config and
// rejects a heartbeat interval longer than a third of the lease.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("RUNCOORD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if cfg.HeartbeatIntervalSeconds*3 > cfg.LeaseSeconds {
		return nil, fmt.Errorf("heartbeat interval %ds must be at most a third of the %ds lease",
			cfg.HeartbeatIntervalSeconds, cfg.LeaseSeconds)
	}

	log.Info().
		Str("run_id", cfg.RunID).
		Str("benchmark_uuid", cfg.BenchmarkUUID).
		Str("object_store_bucket", cfg.ObjectStoreBucket).
		Int("lease_seconds", cfg.LeaseSeconds).
		Int("shard_max_attempts", cfg.ShardMaxAttempts).
		Int("max_parallel_instances", cfg.MaxParallelInstances).
		Msg("configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a Config populated with defaults suitable for unit
// tests, bypassing environment parsing.
func NewForTesting() *Config {
	return &Config{
		ObjectStoreBucket:        "test-bucket",
		RunID:                    "1700000000",
		BenchmarkUUID:            "00000000000000000000000000000000",
		LeaseSeconds:             90,
		LockPollSeconds:          5,
		ShardMaxAttempts:         3,
		MaxParallelInstances:     1,
		WorkDir:                  "/tmp/runcoord/work",
		LogDir:                   "/tmp/runcoord/logs",
		FuzzersDir:               "/opt/fuzzers",
		PollIntervalSeconds:      1,
		HeartbeatIntervalSeconds: 30,
		GraceSeconds:             3600,
		LogLevel:                 "debug",
	}
}
