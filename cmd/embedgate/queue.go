package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/queue"
)

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show deferred-queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Deferred.QueuePath == "" {
				fmt.Println("deferred execution not configured (set deferred.queue_path)")
				return nil
			}

			q, err := queue.NewSQLite(cfg.Deferred.QueuePath)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			stats, err := q.Stats(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("enabled: %v\n", cfg.Deferred.Enabled)
			fmt.Printf("pending: %d\n", stats.Pending)
			fmt.Printf("claimed: %d\n", stats.Claimed)
			fmt.Printf("done:    %d\n", stats.Done)
			fmt.Printf("failed:  %d\n", stats.Failed)
			fmt.Printf("depth:   %d\n", stats.Depth())
			return nil
		},
	}
}
