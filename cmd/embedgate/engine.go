package main

import (
	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/config"
	"github.com/dshills/embedgate/internal/orchestrator"
	"github.com/dshills/embedgate/internal/provider"
)

// engine bundles the pieces one-shot commands need.
type engine struct {
	provider provider.Client
	cache    cache.Store
	breakers *breaker.Registry
	orch     *orchestrator.Orchestrator
}

// newEngine wires provider, cache, breakers and orchestrator from
// configuration. Telemetry stays off for one-shot commands.
func newEngine(cfg *config.Config) (*engine, error) {
	var client provider.Client
	var err error
	if cfg.Provider.Name == "" {
		client, err = provider.NewFromEnv()
	} else {
		client, err = provider.New(provider.Config{
			Provider: cfg.Provider.Name,
			APIKey:   cfg.Provider.APIKey,
			BaseURL:  cfg.Provider.BaseURL,
			Model:    cfg.Provider.Model,
		})
	}
	if err != nil {
		return nil, err
	}

	var store cache.Store
	if cfg.Cache.Path == "" {
		store = cache.NewMemory(int(cfg.Cache.MaxEntries), cfg.Cache.TTL)
	} else {
		store, err = cache.NewSQLite(cfg.Cache.Path, cache.Options{
			TTL:                    cfg.Cache.TTL,
			MaxEntries:             cfg.Cache.MaxEntries,
			MaintenanceProbability: cfg.Cache.MaintenanceProbability,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
	})

	orch := orchestrator.New(client, store, breakers, nil, orchestrator.Options{
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

	return &engine{
		provider: client,
		cache:    store,
		breakers: breakers,
		orch:     orch,
	}, nil
}

func (e *engine) close() {
	_ = e.cache.Close()
	_ = e.provider.Close()
}
