package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	// stdout is reserved for command output and the MCP protocol.
	log.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:     "embedgate",
		Short:   "Embedgate — resilient embedding generation with caching and degradation",
		Version: fmt.Sprintf("%s (built %s)", version, buildTime),
	}

	root.PersistentFlags().String("config", "", "path to YAML config file (default $EMBEDGATE_CONFIG)")

	root.AddCommand(
		newServeCmd(),
		newEmbedCmd(),
		newBatchCmd(),
		newStatsCmd(),
		newHealthCmd(),
		newQueueCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the config path from the flag, then the
// environment, then defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(config.EnvConfigPath)
	}
	return config.Load(path)
}
