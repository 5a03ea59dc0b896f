package mcp

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/config"
	"github.com/dshills/embedgate/internal/degrade"
	"github.com/dshills/embedgate/internal/dispatch"
	"github.com/dshills/embedgate/internal/orchestrator"
	"github.com/dshills/embedgate/internal/provider"
	"github.com/dshills/embedgate/internal/queue"
	"github.com/dshills/embedgate/internal/recovery"
	"github.com/dshills/embedgate/internal/telemetry"
)

const (
	// ServerName is the MCP server name
	ServerName = "embedgate"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultQueuePath is where the deferred queue lives when deferred
	// execution is enabled without an explicit path.
	DefaultQueuePath = "embedgate-queue.db"
)

// Server wraps the MCP server with the embedding engine.
type Server struct {
	mcp *server.MCPServer
	cfg *config.Config

	provider   provider.Client
	cache      cache.Store
	breakers   *breaker.Registry
	recorder   telemetry.Recorder
	orch       *orchestrator.Orchestrator
	dispatcher *dispatch.Dispatcher
	queue      *queue.SQLite // nil unless deferred execution is enabled
	worker     *queue.Worker // nil unless deferred execution is enabled
	recovery   *recovery.Service
	health     *recovery.HealthChecker
}

// NewServer assembles the engine from configuration and registers the
// MCP tools.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	client, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	store, err := newCache(cfg.Cache)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	recorder, err := newRecorder(cfg.Telemetry)
	if err != nil {
		_ = client.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
		OnStateChange: func(name string, from, to breaker.State) {
			recorder.RecordTransition(context.Background(), telemetry.TransitionEvent{
				Service: name,
				From:    from.String(),
				To:      to.String(),
			})
		},
	})

	orch := orchestrator.New(client, store, breakers, recorder, orchestrator.Options{
		Retry: orchestrator.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Multiplier:  2.0,
		},
		SubBatchItems:     cfg.Batch.SubBatchItems,
		SubBatchChars:     cfg.Batch.SubBatchChars,
		ItemFallback:      cfg.Batch.ItemFallbackEnabled(),
		ItemFallbackDelay: cfg.Batch.ItemFallbackDelay,
	})

	selector := dispatch.NewSelector(cfg.Deferred.Enabled, cfg.Deferred.OptedOutCollections)

	var workQueue *queue.SQLite
	var depth recovery.DepthReporter
	var dispatchQueue dispatch.Queue
	if cfg.Deferred.Enabled {
		path := cfg.Deferred.QueuePath
		if path == "" {
			path = DefaultQueuePath
		}
		workQueue, err = queue.NewSQLite(path)
		if err != nil {
			_ = client.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize queue: %w", err)
		}
		depth = workQueue
		dispatchQueue = workQueue
	}

	dispatcher := dispatch.NewDispatcher(selector, dispatchQueue, orch)

	var worker *queue.Worker
	if workQueue != nil {
		worker = queue.NewWorker(workQueue, orch, cacheSink{}, dispatcher.InFlight(), queue.WorkerOptions{
			Workers:      cfg.Deferred.Workers,
			PollInterval: cfg.Deferred.PollInterval,
			StaleAfter:   cfg.Deferred.StaleAfter,
		})
	}

	recoverySvc := recovery.NewService(recovery.ServiceOptions{
		MaxAttempts: cfg.Recovery.MaxAttempts,
		Window:      cfg.Recovery.Window,
	})
	registerRecoveryActions(recoverySvc, client, store, selector)

	health := recovery.NewHealthChecker(client, store, breakers, depth, recovery.HealthOptions{})

	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion),
		cfg:        cfg,
		provider:   client,
		cache:      store,
		breakers:   breakers,
		recorder:   recorder,
		orch:       orch,
		dispatcher: dispatcher,
		queue:      workQueue,
		worker:     worker,
		recovery:   recoverySvc,
		health:     health,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown. The
// deferred worker, when configured, drains the queue alongside.
func (s *Server) Serve(ctx context.Context) error {
	defer s.close()

	if s.worker != nil {
		workerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := s.worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				log.Printf("mcp: deferred worker stopped: %v", err)
			}
		}()
	}

	return server.ServeStdio(s.mcp)
}

func (s *Server) close() {
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if closer, ok := s.recorder.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	_ = s.cache.Close()
	_ = s.provider.Close()
}

// registerTools registers all MCP tools.
func (s *Server) registerTools() {
	s.mcp.AddTool(generateEmbeddingTool(), s.handleGenerateEmbedding)
	s.mcp.AddTool(generateBatchTool(), s.handleGenerateBatch)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(invalidateCacheTool(), s.handleInvalidateCache)
	s.mcp.AddTool(healthCheckTool(), s.handleHealthCheck)
	s.mcp.AddTool(queueStatusTool(), s.handleQueueStatus)
}

// newProvider builds the client from explicit config, falling back to
// environment detection.
func newProvider(cfg config.ProviderConfig) (provider.Client, error) {
	if cfg.Name == "" {
		return provider.NewFromEnv()
	}
	return provider.New(provider.Config{
		Provider: cfg.Name,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
	})
}

// newCache builds the durable cache when a path is configured, the
// in-process cache otherwise.
func newCache(cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Path == "" {
		return cache.NewMemory(int(cfg.MaxEntries), cfg.TTL), nil
	}
	return cache.NewSQLite(cfg.Path, cache.Options{
		TTL:                    cfg.TTL,
		MaxEntries:             cfg.MaxEntries,
		MaintenanceProbability: cfg.MaintenanceProbability,
	})
}

// newRecorder builds the telemetry recorder: SQLite when a path is
// configured, stderr logging otherwise, nothing when disabled.
func newRecorder(cfg config.TelemetryConfig) (telemetry.Recorder, error) {
	if !cfg.Enabled {
		return telemetry.Nop{}, nil
	}
	if cfg.Path == "" {
		return telemetry.Logger{}, nil
	}
	return telemetry.NewSQLite(cfg.Path)
}

// registerRecoveryActions binds the self-healing actions that make
// sense inside this process. All are idempotent.
func registerRecoveryActions(svc *recovery.Service, client provider.Client, store cache.Store, selector *dispatch.Selector) {
	svc.Register(recovery.StrategyClearCacheRetry, func(ctx context.Context, _ *degrade.Failure) error {
		n, err := store.Clear(ctx)
		if err != nil {
			return err
		}
		log.Printf("recovery: cleared %d cache entries", n)
		return nil
	})
	svc.Register(recovery.StrategyFallbackMode, func(_ context.Context, _ *degrade.Failure) error {
		// Stop deferring new work; callers continue on the sync path
		// and fall back to keyword search when that fails too.
		selector.SetEnabled(false)
		log.Printf("recovery: deferred execution disabled, running in fallback mode")
		return nil
	})
	svc.Register(recovery.StrategyReconnect, func(_ context.Context, _ *degrade.Failure) error {
		// Provider clients are stateless HTTP; reconnect amounts to
		// verifying the configuration still stands.
		if !client.Configured() {
			return fmt.Errorf("provider %s is no longer configured", client.Name())
		}
		return nil
	})
}

// cacheSink is the deferred-result sink for the standalone server:
// finished embeddings already live in the content-addressed cache, so
// completion only needs to be visible in the log.
type cacheSink struct{}

func (cacheSink) WriteEmbedding(_ context.Context, ref queue.ItemRef, _ string, vector []float32) error {
	log.Printf("queue: embedded item %s/%s/%s (%d dimensions)",
		ref.ServerID, ref.CollectionID, ref.ItemID, len(vector))
	return nil
}
