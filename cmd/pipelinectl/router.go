package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/normanking/contentpipe/router"
)

var routerSnapshotPath string

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Inspect LLM router bandit state",
}

var routerSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the learned per-arm bandit state from a persisted snapshot file",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := router.LoadSnapshots(routerSnapshotPath, nil)
		if err != nil {
			return fmt.Errorf("loading snapshot: %w", err)
		}

		domains := make([]string, 0, len(states))
		for d := range states {
			domains = append(domains, d)
		}
		sort.Strings(domains)

		for _, domain := range domains {
			snap := states[domain].Snapshot()
			fmt.Printf("domain=%s rng_seed=%d\n", snap.Domain, snap.RNGSeed)
			for _, arm := range snap.Arms {
				fmt.Printf("  arm=%-24s count=%-6d mean_reward=%.3f\n", arm.ID, arm.Count, arm.Mean)
			}
		}
		return nil
	},
}

func init() {
	routerSnapshotCmd.Flags().StringVar(&routerSnapshotPath, "file", "bandit_snapshot.json", "path to a persisted bandit snapshot")
	routerCmd.AddCommand(routerSnapshotCmd)
	rootCmd.AddCommand(routerCmd)
}
