// Command pipelinectl is the operator CLI for the content pipeline: run a
// URL synchronously from a terminal, inspect cache/router health, and list
// watch-queue jobs. Grounded on RedClaus-cortex/core's cobra root command
// (one rootCmd with no flags of its own, subcommands as separate files each
// binding their own flags and registering themselves in init()).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Operator CLI for the content intelligence pipeline",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
