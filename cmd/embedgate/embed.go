package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/telemetry"
)

func newEmbedCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "embed [text]",
		Short: "Generate an embedding for one text",
		Args:  cobra.MinimumNArgs(1),
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

			text := strings.Join(args, " ")
			vector, err := eng.orch.GenerateEmbedding(context.Background(), text)
			if err != nil {
				return err
			}
			if vector == nil {
				fmt.Println("blank text embeds to nothing")
				return nil
			}

			fmt.Printf("provider:  %s\n", eng.provider.Name())
			fmt.Printf("model:     %s\n", eng.provider.Model())
			fmt.Printf("dimension: %d\n", len(vector))
			fmt.Printf("est. cost: $%.6f\n", telemetry.EstimateCost(eng.provider.Model(), len(text)))
			if full {
				enc := json.NewEncoder(os.Stdout)
				return enc.Encode(vector)
			}
			preview := vector
			if len(preview) > 8 {
				preview = preview[:8]
			}
			fmt.Printf("vector:    %v ...\n", preview)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "print the entire vector as JSON")
	return cmd
}
