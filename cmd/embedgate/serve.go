package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/embedgate/internal/mcp"
	"github.com/dshills/embedgate/internal/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log.Printf("embedgate v%s starting, sqlite driver: %s", version, storage.DriverName)

			srv, err := mcp.NewServer(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				log.Println("MCP server ready, listening on stdio...")
				errChan <- srv.Serve(ctx)
			}()

			select {
			case sig := <-sigChan:
				log.Printf("received signal %v, shutting down", sig)
				cancel()
				return nil
			case err := <-errChan:
				return err
			}
		},
	}
}
