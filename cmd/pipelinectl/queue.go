package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/normanking/contentpipe/queue"
)

var (
	queueStatus string
	queueLimit  int
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the durable watch queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watch-queue jobs, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := os.Getenv("QUEUE_DSN")
		if dsn == "" {
			return fmt.Errorf("QUEUE_DSN is required")
		}

		ctx := context.Background()
		store, err := queue.NewPostgresStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connecting to queue store: %w", err)
		}
		defer store.Close()

		jobs, err := store.List(ctx, queue.Status(queueStatus), queueLimit)
		if err != nil {
			return fmt.Errorf("listing jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("no jobs")
			return nil
		}
		fmt.Printf("%-6s %-10s %-10s %-12s %-20s %-8s %s\n", "id", "tenant", "workspace", "source_type", "external_id", "status", "created_at")
		for _, j := range jobs {
			fmt.Printf("%-6d %-10s %-10s %-12s %-20s %-8s %s\n", j.ID, j.Tenant, j.Workspace, j.SourceType, j.ExternalID, j.Status, j.CreatedAt.Format("2006-01-02T15:04:05"))
		}
		return nil
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "filter by status: queued | running | done | failed (default: all)")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 50, "maximum rows to print")
	queueCmd.AddCommand(queueListCmd)
	rootCmd.AddCommand(queueCmd)
}
