package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scfuzzbench/runcoord/internal/coord"
	"github.com/scfuzzbench/runcoord/internal/queue"
	"github.com/scfuzzbench/runcoord/internal/runstatus"
	"github.com/scfuzzbench/runcoord/internal/validate"
)

func init() {
	queueCmd := &cobra.Command{Use: "queue", Short: "Shard queue operations"}

	var fuzzerKeys []string
	var shardsPerFuzzer int
	var shardMaxAttempts int
	var maxParallelInstances int
	var lockOwner string

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the shard queue for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}
			layout, err := newLayout()
			if err != nil {
				return err
			}
			if len(fuzzerKeys) == 0 {
				return fmt.Errorf("--fuzzer-keys is required")
			}

			var shards []coord.ShardSpec
			for _, fk := range fuzzerKeys {
				if err := validate.FuzzerKey(fk); err != nil {
					return err
				}
				for i := 0; i < shardsPerFuzzer; i++ {
					shards = append(shards, coord.ShardSpec{
						ShardKey:  fmt.Sprintf("%s-%d", fk, i),
						FuzzerKey: fk,
						RunIndex:  i,
					})
				}
			}

			return queue.Initialize(cmd.Context(), store, layout, shards, shardMaxAttempts, lockOwner, maxParallelInstances)
		},
	}
	initCmd.Flags().StringSliceVar(&fuzzerKeys, "fuzzer-keys", nil, "comma-separated fuzzer keys (required)")
	initCmd.Flags().IntVar(&shardsPerFuzzer, "shards-per-fuzzer", 1, "number of shards to create per fuzzer key")
	initCmd.Flags().IntVar(&shardMaxAttempts, "shard-max-attempts", 3, "max attempts per shard before it is failed permanently")
	initCmd.Flags().IntVar(&maxParallelInstances, "max-parallel-instances", 1, "recorded in run-status only, not enforced")
	initCmd.Flags().StringVar(&lockOwner, "lock-owner", "", "lock owner recorded in run-status")
	queueCmd.AddCommand(initCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the aggregated run-status document",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}
			layout, err := newLayout()
			if err != nil {
				return err
			}
			status, err := runstatus.Refresh(cmd.Context(), store, layout, lockOwner, maxParallelInstances, shardMaxAttempts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	queueCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(queueCmd)
}
