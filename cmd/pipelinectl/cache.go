package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/contentpipe/cache"
	"github.com/normanking/contentpipe/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the multi-level semantic cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache TTL configuration and shared-layer reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println("configured TTLs:")
		fmt.Printf("  llm:       %s\n", cfg.Cache.LLMTTL)
		fmt.Printf("  retrieval: %s\n", cfg.Cache.RetrievalTTL)
		fmt.Printf("  tool:      %s\n", cfg.Cache.ToolTTL)
		fmt.Printf("  routing:   %s\n", cfg.Cache.RoutingTTL)
		fmt.Printf("semantic cache: enabled=%v threshold=%.2f\n", cfg.Cache.EnableSemanticCache, cfg.Cache.SemanticCacheThreshold)

		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			fmt.Println("shared layer: REDIS_URL unset, exact-match cache is in-process only")
			return nil
		}

		layer, err := cache.NewRedisLayer(cache.RedisLayerOptions{RedisURL: redisURL, Namespace: "pipelinectl-probe"})
		if err != nil {
			fmt.Printf("shared layer: unreachable (%v)\n", err)
			return nil
		}
		defer layer.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := layer.HealthCheck(ctx); err != nil {
			fmt.Printf("shared layer: ping failed (%v)\n", err)
			return nil
		}
		fmt.Println("shared layer: reachable")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
