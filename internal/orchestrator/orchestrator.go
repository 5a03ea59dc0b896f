package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/degrade"
	"github.com/dshills/embedgate/internal/provider"
	"github.com/dshills/embedgate/internal/telemetry"
)

// Circuit names. Single-item and batch generation fail independently,
// so they get independent circuits.
const (
	CircuitGeneration      = "embedding_generation"
	CircuitBatchGeneration = "embedding_batch_generation"
)

// Options tunes the orchestrator. Zero values take the defaults below.
type Options struct {
	Retry RetryConfig

	// SubBatchItems caps the item count per provider batch call.
	SubBatchItems int
	// SubBatchChars caps the total character count per provider batch
	// call, approximating the provider's token limit.
	SubBatchChars int

	// ItemFallback retries a failed sub-batch one item at a time.
	ItemFallback bool
	// ItemFallbackDelay is the pause between per-item fallback calls.
	ItemFallbackDelay time.Duration
}

// DefaultOptions returns the production orchestrator tuning.
func DefaultOptions() Options {
	return Options{
		Retry:             DefaultRetryConfig(),
		SubBatchItems:     50,
		SubBatchChars:     100 * 1024,
		ItemFallback:      true,
		ItemFallbackDelay: 100 * time.Millisecond,
	}
}

// Orchestrator is the resilient façade over an embedding provider. It
// combines cache-first lookup, circuit-breaker-guarded provider calls,
// retry with backoff, batch splitting and partial-failure accounting.
// Safe for concurrent use.
type Orchestrator struct {
	provider provider.Client
	cache    cache.Store
	breakers *breaker.Registry
	recorder telemetry.Recorder
	opts     Options

	// flight collapses concurrent single-item requests for the same
	// content address into one provider call.
	flight singleflight.Group

	// sleep is swappable so tests skip the per-item fallback delay.
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires an orchestrator over the given provider and cache. The
// recorder may be nil, which disables telemetry.
func New(client provider.Client, store cache.Store, breakers *breaker.Registry, recorder telemetry.Recorder, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = def.Retry
	}
	if opts.SubBatchItems <= 0 {
		opts.SubBatchItems = def.SubBatchItems
	}
	if opts.SubBatchItems > provider.MaxBatchSize {
		opts.SubBatchItems = provider.MaxBatchSize
	}
	if opts.SubBatchChars <= 0 {
		opts.SubBatchChars = def.SubBatchChars
	}
	if recorder == nil {
		recorder = telemetry.Nop{}
	}
	return &Orchestrator{
		provider: client,
		cache:    store,
		breakers: breakers,
		recorder: recorder,
		opts:     opts,
		sleep:    sleepCtx,
	}
}

// Provider exposes the underlying client for health checks and stats.
func (o *Orchestrator) Provider() provider.Client { return o.provider }

// Cache exposes the underlying store for health checks and stats.
func (o *Orchestrator) Cache() cache.Store { return o.cache }

// Breakers exposes the circuit registry for health checks and stats.
func (o *Orchestrator) Breakers() *breaker.Registry { return o.breakers }

// meta identifies the active embedding configuration for cache keys.
func (o *Orchestrator) meta() cache.Meta {
	return cache.Meta{
		Provider:  o.provider.Name(),
		Model:     o.provider.Model(),
		Dimension: o.provider.Dimension(),
	}
}

// GenerateEmbedding returns the embedding for text. Blank text returns
// (nil, nil) without any provider call. Cache hits never reach the
// provider. On miss the call goes through the generation circuit with
// retry; exhausted retries or an open circuit surface a typed
// degradation failure, never a raw provider error.
func (o *Orchestrator) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	meta := o.meta()
	if vector, ok := o.cache.Get(ctx, text, meta); ok {
		return vector, nil
	}

	// Concurrent requests for the same content address share one call.
	key := cache.Key(text, meta)
	result, err, _ := o.flight.Do(key, func() (interface{}, error) {
		return o.generateUncached(ctx, text, meta)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// generateUncached runs the guarded provider call and caches the result.
func (o *Orchestrator) generateUncached(ctx context.Context, text string, meta cache.Meta) ([]float32, error) {
	brk := o.breakers.Get(CircuitGeneration)
	start := time.Now()

	vector, err := breaker.Execute(ctx, brk,
		func(ctx context.Context) ([]float32, error) {
			return retryWithBackoff(ctx, o.opts.Retry, func(ctx context.Context) ([]float32, error) {
				return o.provider.GenerateEmbedding(ctx, text)
			})
		},
		nil,
	)

	o.recordCall(ctx, "generate_embedding", 1, len(text), start, err)
	if err != nil {
		return nil, o.degradeError(err)
	}

	if cerr := o.cache.Set(ctx, text, vector, meta); cerr != nil {
		// A cache write failure degrades to "uncached", never fails the
		// request that already paid for the vector.
		log.Printf("orchestrator: failed to cache embedding: %v", cerr)
	}
	return vector, nil
}

// degradeError converts a provider or circuit error into the typed
// failure callers act on.
func (o *Orchestrator) degradeError(err error) error {
	if errors.Is(err, breaker.ErrOpen) {
		return degrade.Wrap(degrade.KindVectorUnavailable, "embedding circuit open", err).
			WithContext("provider", o.provider.Name())
	}
	return degrade.FromError(err).WithContext("provider", o.provider.Name())
}

// recordCall emits one telemetry event for a provider call.
func (o *Orchestrator) recordCall(ctx context.Context, operation string, items, charCount int, start time.Time, err error) {
	outcome := telemetry.OutcomeSuccess
	switch {
	case errors.Is(err, breaker.ErrOpen):
		outcome = telemetry.OutcomeShortCircuit
	case err != nil:
		outcome = telemetry.OutcomeFailure
	}
	o.recorder.RecordCall(ctx, telemetry.CallEvent{
		Operation:    operation,
		Provider:     o.provider.Name(),
		Model:        o.provider.Model(),
		Items:        items,
		CharCount:    charCount,
		CostEstimate: telemetry.EstimateCost(o.provider.Model(), charCount),
		Duration:     time.Since(start),
		Outcome:      outcome,
	})
}

// sleepCtx pauses for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
