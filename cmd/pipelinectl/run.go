package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/normanking/contentpipe/internal/bootstrap"
	"github.com/normanking/contentpipe/pipeline"
	"github.com/normanking/contentpipe/tenancy"
)

var (
	runTenant    string
	runWorkspace string
	runDepth     string
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Run the content pipeline against a single URL and print the terminal StepResult",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap.Build("pipelinectl")
		if err != nil {
			return fmt.Errorf("bootstrapping runtime: %w", err)
		}
		defer rt.Close()

		tc := tenancy.New(runTenant, runWorkspace)
		ctx := tenancy.WithTenant(context.Background(), tc)

		result, runErr := rt.Pipeline.Run(ctx, args[0], pipeline.Depth(runDepth))
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		fmt.Println(string(encoded))
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runTenant, "tenant", "default", "tenant id")
	runCmd.Flags().StringVar(&runWorkspace, "workspace", "default", "workspace id")
	runCmd.Flags().StringVar(&runDepth, "depth", string(pipeline.DepthStandard), "standard | deep | experimental")
	rootCmd.AddCommand(runCmd)
}
