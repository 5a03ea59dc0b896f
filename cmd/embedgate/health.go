package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/queue"
	"github.com/dshills/embedgate/internal/recovery"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run health checks against the configured engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			var depth recovery.DepthReporter
			if cfg.Deferred.Enabled && cfg.Deferred.QueuePath != "" {
				q, err := queue.NewSQLite(cfg.Deferred.QueuePath)
				if err != nil {
					return err
				}
				defer func() { _ = q.Close() }()
				depth = q
			}

			checker := recovery.NewHealthChecker(eng.provider, eng.cache, eng.breakers, depth, recovery.HealthOptions{})
			report := checker.Check(context.Background())

			fmt.Printf("status: %s\n\n", report.Status)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tSTATUS\tLATENCY\tDETAIL")
			for _, c := range report.Checks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Status, c.Latency.Round(time.Microsecond), c.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if len(report.Recommendations) > 0 {
				fmt.Println("\nrecommendations:")
				for _, r := range report.Recommendations {
					fmt.Printf("  - %s\n", r)
				}
			}

			if report.Status == recovery.StatusCritical {
				os.Exit(1)
			}
			return nil
		},
	}
}
