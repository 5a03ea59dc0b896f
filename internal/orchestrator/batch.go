package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/degrade"
)

// pending is one deduplicated text awaiting a provider call, with every
// input index it answers.
type pending struct {
	text    string
	indices []int
}

// GenerateBatch embeds texts and reports a per-index outcome. Texts are
// deduplicated against the cache first; only misses reach the provider,
// split into sub-batches under the item and character caps. Successful
// items are cached immediately, so a later crash never loses purchased
// work. The outcome is always returned; the error is nil only when
// every requested item succeeded.
func (o *Orchestrator) GenerateBatch(ctx context.Context, texts []string) (*BatchOutcome, error) {
	outcome := newBatchOutcome()
	meta := o.meta()

	// Deduplicate by content address so identical inputs cost one call.
	byKey := make(map[string]*pending)
	order := make([]string, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			outcome.Skipped = append(outcome.Skipped, i)
			continue
		}
		key := cache.Key(text, meta)
		p, ok := byKey[key]
		if !ok {
			p = &pending{text: text}
			byKey[key] = p
			order = append(order, key)
		}
		p.indices = append(p.indices, i)
	}
	if len(order) == 0 {
		return outcome, nil
	}

	// Cache pass. Hits never reach the provider.
	unique := make([]string, 0, len(order))
	for _, key := range order {
		unique = append(unique, byKey[key].text)
	}
	misses := make([]*pending, 0, len(order))
	hits := o.cache.GetMulti(ctx, unique, meta)
	for _, key := range order {
		p := byKey[key]
		if vector, ok := hits[p.text]; ok {
			for _, i := range p.indices {
				outcome.Successful[i] = vector
				outcome.CacheHits++
			}
			continue
		}
		misses = append(misses, p)
	}

	var firstErr error
	for _, sub := range splitSubBatches(misses, o.opts.SubBatchItems, o.opts.SubBatchChars) {
		if err := o.generateSubBatch(ctx, sub, meta, outcome); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	switch {
	case outcome.AllFailed():
		return outcome, degrade.Wrap(degrade.KindVectorUnavailable, "embedding service unavailable", firstErr).
			WithContext("failed", len(outcome.Failed))
	case !outcome.Complete():
		return outcome, degrade.New(degrade.KindPartialBatch, "some batch items failed").
			WithContext("successful", len(outcome.Successful)).
			WithContext("failed", len(outcome.Failed))
	}
	return outcome, nil
}

// splitSubBatches chunks pending items under both the item cap and the
// character budget. An item larger than the budget still travels alone.
func splitSubBatches(items []*pending, maxItems, maxChars int) [][]*pending {
	var batches [][]*pending
	var current []*pending
	chars := 0
	for _, p := range items {
		if len(current) > 0 && (len(current) >= maxItems || chars+len(p.text) > maxChars) {
			batches = append(batches, current)
			current = nil
			chars = 0
		}
		current = append(current, p)
		chars += len(p.text)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// generateSubBatch runs one provider batch call through the batch
// circuit, falling back to per-item calls when enabled. Every item in
// sub ends up in outcome.Successful or outcome.Failed.
func (o *Orchestrator) generateSubBatch(ctx context.Context, sub []*pending, meta cache.Meta, outcome *BatchOutcome) error {
	brk := o.breakers.Get(CircuitBatchGeneration)
	subTexts := make([]string, len(sub))
	chars := 0
	for i, p := range sub {
		subTexts[i] = p.text
		chars += len(p.text)
	}

	start := time.Now()
	vectors, err := breaker.Execute(ctx, brk,
		func(ctx context.Context) ([][]float32, error) {
			return retryWithBackoff(ctx, o.opts.Retry, func(ctx context.Context) ([][]float32, error) {
				return o.provider.GenerateBatch(ctx, subTexts)
			})
		},
		nil,
	)
	o.recordCall(ctx, "generate_batch", len(subTexts), chars, start, err)

	if err == nil {
		byText := make(map[string][]float32, len(sub))
		for i, p := range sub {
			byText[p.text] = vectors[i]
			for _, idx := range p.indices {
				outcome.Successful[idx] = vectors[i]
			}
		}
		if cerr := o.cache.SetMulti(ctx, byText, meta); cerr != nil {
			log.Printf("orchestrator: failed to cache batch: %v", cerr)
		}
		return nil
	}

	// The whole sub-batch call failed. Trade latency for resilience by
	// retrying one item at a time, unless the circuit already rejected
	// the call.
	if !o.opts.ItemFallback || errors.Is(err, breaker.ErrOpen) {
		o.failSubBatch(sub, outcome, err)
		return o.degradeError(err)
	}
	return o.itemFallback(ctx, sub, meta, outcome)
}

// itemFallback embeds each item of a failed sub-batch individually,
// pausing between calls. Successes are cached as they arrive.
func (o *Orchestrator) itemFallback(ctx context.Context, sub []*pending, meta cache.Meta, outcome *BatchOutcome) error {
	brk := o.breakers.Get(CircuitBatchGeneration)
	var firstErr error
	for n, p := range sub {
		if n > 0 {
			if err := o.sleep(ctx, o.opts.ItemFallbackDelay); err != nil {
				o.failSubBatch(sub[n:], outcome, err)
				if firstErr == nil {
					firstErr = o.degradeError(err)
				}
				return firstErr
			}
		}

		start := time.Now()
		vector, err := breaker.Execute(ctx, brk,
			func(ctx context.Context) ([]float32, error) {
				return retryWithBackoff(ctx, o.opts.Retry, func(ctx context.Context) ([]float32, error) {
					return o.provider.GenerateEmbedding(ctx, p.text)
				})
			},
			nil,
		)
		o.recordCall(ctx, "generate_batch_item", 1, len(p.text), start, err)

		if err != nil {
			o.failSubBatch(sub[n:n+1], outcome, err)
			if firstErr == nil {
				firstErr = o.degradeError(err)
			}
			if errors.Is(err, breaker.ErrOpen) {
				// No point hammering an open circuit item by item.
				o.failSubBatch(sub[n+1:], outcome, err)
				return firstErr
			}
			continue
		}

		for _, idx := range p.indices {
			outcome.Successful[idx] = vector
		}
		if cerr := o.cache.Set(ctx, p.text, vector, meta); cerr != nil {
			log.Printf("orchestrator: failed to cache embedding: %v", cerr)
		}
	}
	return firstErr
}

// failSubBatch marks every index of the given items failed.
func (o *Orchestrator) failSubBatch(sub []*pending, outcome *BatchOutcome, err error) {
	failure := o.degradeError(err)
	for _, p := range sub {
		for _, idx := range p.indices {
			outcome.Failed[idx] = failure
		}
	}
}
