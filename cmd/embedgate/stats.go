package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache and call statistics",
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

			ctx := context.Background()

			stats, err := eng.cache.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cache entries:  %d\n", stats.Entries)
			fmt.Printf("hits / misses:  %d / %d (%.1f%% hit rate)\n", stats.Hits, stats.Misses, stats.HitRate*100)
			if stats.AvgDimension > 0 {
				fmt.Printf("avg dimension:  %.0f\n", stats.AvgDimension)
			}
			if !stats.Oldest.IsZero() {
				fmt.Printf("oldest entry:   %s\n", stats.Oldest.Format("2006-01-02 15:04:05"))
				fmt.Printf("newest entry:   %s\n", stats.Newest.Format("2006-01-02 15:04:05"))
			}

			if cfg.Telemetry.Path == "" {
				fmt.Println("\ncall telemetry: not recorded (set telemetry.path to enable)")
				return nil
			}
			recorder, err := telemetry.NewSQLite(cfg.Telemetry.Path)
			if err != nil {
				return err
			}
			defer func() { _ = recorder.Close() }()

			summaries, err := recorder.Summary(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Printf("\nno calls recorded in the last %s\n", since)
				return nil
			}

			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tCALLS\tITEMS\tFAILURES\tAVG MS\tEST COST")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f\t$%.6f\n",
					s.Operation, s.Calls, s.Items, s.Failures, s.AvgDurationMs, s.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "telemetry window")
	return cmd
}
