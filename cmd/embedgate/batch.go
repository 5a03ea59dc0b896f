package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/degrade"
)

func newBatchCmd() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "batch [text]...",
		Short: "Generate embeddings for several texts, with --stdin reading one per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if fromStdin {
				scanner := bufio.NewScanner(os.Stdin)
				scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
				for scanner.Scan() {
					texts = append(texts, scanner.Text())
				}
				if err := scanner.Err(); err != nil {
					return err
				}
			}
			if len(texts) == 0 {
				return fmt.Errorf("no texts given; pass arguments or --stdin")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.close()

			outcome, err := eng.orch.GenerateBatch(context.Background(), texts)
			if outcome != nil {
				fmt.Printf("embedded:   %d\n", len(outcome.Successful))
				fmt.Printf("failed:     %d\n", len(outcome.Failed))
				fmt.Printf("skipped:    %d\n", len(outcome.Skipped))
				fmt.Printf("cache hits: %d\n", outcome.CacheHits)
				for idx, ferr := range outcome.Failed {
					fmt.Printf("  item %d: %v\n", idx, ferr)
				}
			}
			// Partial success is still success for a CLI run; only a
			// total failure is worth a non-zero exit.
			if err != nil && !errors.Is(err, degrade.New(degrade.KindPartialBatch, "")) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read texts from stdin, one per line")
	return cmd
}
