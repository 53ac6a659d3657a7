package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scfuzzbench/runcoord/internal/oracle"
)

func init() {
	completionCmd := &cobra.Command{Use: "completion", Short: "Completion oracle operations"}

	var checkGraceSeconds int
	var outputFormat string

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether one run has finished",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}
			layout, err := newLayout()
			if err != nil {
				return err
			}
			result, err := oracle.Check(cmd.Context(), store, layout, checkGraceSeconds)
			if err != nil {
				return err
			}
			switch outputFormat {
			case "plain":
				if result.Complete {
					fmt.Println("complete")
				} else {
					fmt.Println("incomplete")
				}
			default:
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			if !result.Complete {
				return fmt.Errorf("run not complete")
			}
			return nil
		},
	}
	checkCmd.Flags().IntVar(&checkGraceSeconds, "grace-seconds", 3600, "grace period added to the manifest timeout_hours deadline fallback")
	checkCmd.Flags().StringVar(&outputFormat, "output", "json", "output format: json or plain")
	completionCmd.AddCommand(checkCmd)

	var discoverGraceSeconds int

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Check completion for every run under --benchmark-uuid",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newStore(cmd.Context())
			if err != nil {
				return err
			}
			if benchmarkFlag == "" {
				return fmt.Errorf("--benchmark-uuid is required")
			}
			results, err := oracle.Discover(cmd.Context(), store, benchmarkFlag, discoverGraceSeconds)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	discoverCmd.Flags().IntVar(&discoverGraceSeconds, "grace-seconds", 3600, "grace period added to the manifest timeout_hours deadline fallback")
	completionCmd.AddCommand(discoverCmd)

	rootCmd.AddCommand(completionCmd)
}
