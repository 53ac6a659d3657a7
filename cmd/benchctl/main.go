package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scfuzzbench/runcoord/internal/coord"
	applog "github.com/scfuzzbench/runcoord/internal/logger"
	"github.com/scfuzzbench/runcoord/internal/objectstore"
)

var (
	bucketFlag    string
	regionFlag    string
	endpointFlag  string
	accessKeyFlag string
	secretKeyFlag string
	pathStyleFlag bool
	runIDFlag     string
	benchmarkFlag string

	rootCmd = &cobra.Command{
		Use:   "benchctl",
		Short: "CLI for the smart-contract fuzzing benchmark run-coordination core",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&bucketFlag, "bucket", "", "object store bucket (required)")
	rootCmd.PersistentFlags().StringVar(&regionFlag, "region", "us-east-1", "object store region")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "object store endpoint (non-AWS S3-compatible store)")
	rootCmd.PersistentFlags().StringVar(&accessKeyFlag, "access-key", "", "object store access key")
	rootCmd.PersistentFlags().StringVar(&secretKeyFlag, "secret-key", "", "object store secret key")
	rootCmd.PersistentFlags().BoolVar(&pathStyleFlag, "path-style", false, "force path-style addressing")
	rootCmd.PersistentFlags().StringVar(&runIDFlag, "run-id", "", "run ID")
	rootCmd.PersistentFlags().StringVar(&benchmarkFlag, "benchmark-uuid", "", "benchmark UUID")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	return applog.New("benchctl")
}

func newStore(ctx context.Context) (objectstore.Client, error) {
	if bucketFlag == "" {
		return nil, fmt.Errorf("--bucket is required")
	}
	return objectstore.NewS3Client(ctx, objectstore.S3Config{
		Bucket:    bucketFlag,
		Region:    regionFlag,
		Endpoint:  endpointFlag,
		AccessKey: accessKeyFlag,
		SecretKey: secretKeyFlag,
		PathStyle: pathStyleFlag,
	}, newLogger())
}

func newLayout() (coord.KeyLayout, error) {
	if runIDFlag == "" || benchmarkFlag == "" {
		return coord.KeyLayout{}, fmt.Errorf("--run-id and --benchmark-uuid are required")
	}
	return coord.KeyLayout{RunID: runIDFlag, BenchmarkUUID: benchmarkFlag}, nil
}
