package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scfuzzbench/runcoord/internal/config"
	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/health"
	"github.com/scfuzzbench/runcoord/internal/lock"
	applog "github.com/scfuzzbench/runcoord/internal/logger"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
	"github.com/scfuzzbench/runcoord/internal/worker"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	lg := applog.WithLevel(applog.New("benchworker"), cfg.LogLevel)

	store, err := objectstore.NewS3Client(context.Background(), objectstore.S3Config{
		Bucket:    cfg.ObjectStoreBucket,
		Region:    cfg.ObjectStoreRegion,
		Endpoint:  cfg.ObjectStoreEndpoint,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Profile:   cfg.ObjectStoreProfile,
		PathStyle: cfg.ObjectStorePathStyle,
	}, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("object store init")
	}

	layout := coord.KeyLayout{RunID: cfg.RunID, BenchmarkUUID: cfg.BenchmarkUUID}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = worker.ResolveWorkerID(context.Background())
	}

	lockM := lock.New(store, coord.GlobalLockKey(), lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := lockM.Acquire(ctx, lock.AcquireOptions{
		Owner:                 workerID,
		RunID:                 cfg.RunID,
		BenchmarkUUID:         cfg.BenchmarkUUID,
		Actor:                 workerID,
		LeaseSeconds:          cfg.LeaseSeconds,
		PollSeconds:           cfg.LockPollSeconds,
		AcquireTimeoutSeconds: cfg.AcquireTimeoutSeconds,
	}); err != nil {
		lg.Fatal().Err(err).Msg("lock acquire")
	}
	defer func() {
		if err := lockM.Release(context.Background(), workerID); err != nil {
			lg.Warn().Err(err).Msg("lock release")
		}
	}()

	checker := health.NewObjectStoreChecker(store, layout.ManifestKey())
	svc := health.NewServiceHealthChecker(lg, checker)
	go checker.Start(ctx, 30*time.Second)
	go svc.Start(ctx, 30*time.Second)

	w := worker.New(store, layout, lockM, nil, worker.Config{
		WorkerID:             workerID,
		WorkDir:              cfg.WorkDir,
		LogDir:               cfg.LogDir,
		FuzzersDir:           cfg.FuzzersDir,
		PollInterval:         time.Duration(cfg.PollIntervalSeconds) * time.Second,
		HeartbeatInterval:    time.Duration(cfg.HeartbeatIntervalSeconds) * time.Second,
		LeaseSeconds:         cfg.LeaseSeconds,
		MaxParallelInstances: cfg.MaxParallelInstances,
		ShardMaxAttempts:     cfg.ShardMaxAttempts,
		IdlePollLimit:        cfg.IdlePollLimit,
	}, lg)

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		lg.Error().Err(err).Msg("worker exit")
		os.Exit(1)
	}
}
