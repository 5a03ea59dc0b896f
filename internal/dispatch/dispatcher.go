package dispatch

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/dshills/embedgate/internal/orchestrator"
)

// Request is one embedding request entering the dispatcher. ServerID,
// CollectionID and ItemID are required only for deferred execution.
type Request struct {
	ServerID     string
	CollectionID string
	ItemID       string
	Text         string
	Priority     int
}

// BatchRequest carries several items for one collection. Items maps
// item ID to text.
type BatchRequest struct {
	ServerID     string
	CollectionID string
	Items        map[string]string
	Priority     int
}

// Result is the dispatcher's answer for a single request. Exactly one
// of Queued, Skipped, or a terminal vector/error applies.
type Result struct {
	// Queued means the work was deferred; the embedding arrives later.
	Queued bool
	// Skipped means identical text is already being embedded and this
	// request was dropped to avoid duplicate spend.
	Skipped bool
	// Vector is the embedding for the sync path. Nil for blank text.
	Vector []float32
}

// BatchResult is the dispatcher's answer for a batch request, keyed by
// item ID on the sync path.
type BatchResult struct {
	Queued bool
	// Vectors holds embeddings for items that succeeded.
	Vectors map[string][]float32
	// Failed holds errors for items that did not.
	Failed map[string]error
	// Skipped lists item IDs already in flight elsewhere.
	Skipped []string
	// CacheHits counts vectors served from cache.
	CacheHits int
}

// Engine is the synchronous execution surface the dispatcher routes to.
// Satisfied by orchestrator.Orchestrator.
type Engine interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string) (*orchestrator.BatchOutcome, error)
}

// Dispatcher routes requests sync or deferred, guarding the sync path
// with in-flight claims so identical concurrent texts are embedded
// once.
type Dispatcher struct {
	selector *Selector
	queue    Queue
	engine   Engine
	inflight *InFlight
}

// NewDispatcher wires a dispatcher. queue may be nil when deferred
// execution is disabled; selecting the deferred path without a queue is
// an error.
func NewDispatcher(selector *Selector, queue Queue, engine Engine) *Dispatcher {
	return &Dispatcher{
		selector: selector,
		queue:    queue,
		engine:   engine,
		inflight: NewInFlight(),
	}
}

// InFlight exposes the claim set for queue workers, which share it so
// deferred and sync processing of the same text never overlap.
func (d *Dispatcher) InFlight() *InFlight { return d.inflight }

// Dispatch routes one request.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if d.selector.Select(req) == ModeDeferred {
		if d.queue == nil {
			return Result{}, fmt.Errorf("deferred execution selected but no queue configured")
		}
		err := d.queue.Enqueue(ctx, WorkItem{
			ServerID:     req.ServerID,
			CollectionID: req.CollectionID,
			ItemID:       req.ItemID,
			Text:         req.Text,
			Priority:     req.Priority,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to enqueue deferred work: %w", err)
		}
		return Result{Queued: true}, nil
	}

	release, ok := d.inflight.Acquire(HashText(req.Text))
	if !ok {
		log.Printf("dispatch: identical text already in flight, skipping item %q", req.ItemID)
		return Result{Skipped: true}, nil
	}
	defer release()

	vector, err := d.engine.GenerateEmbedding(ctx, req.Text)
	if err != nil {
		return Result{}, err
	}
	return Result{Vector: vector}, nil
}

// DispatchBatch routes one batch request. On the sync path, items whose
// text is already in flight are skipped; the rest run as one batch.
func (d *Dispatcher) DispatchBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if d.selector.SelectBatch(req) == ModeDeferred {
		if d.queue == nil {
			return BatchResult{}, fmt.Errorf("deferred execution selected but no queue configured")
		}
		err := d.queue.EnqueueBatch(ctx, BatchWorkItem{
			ServerID:     req.ServerID,
			CollectionID: req.CollectionID,
			Items:        req.Items,
			Priority:     req.Priority,
		})
		if err != nil {
			return BatchResult{}, fmt.Errorf("failed to enqueue deferred batch: %w", err)
		}
		return BatchResult{Queued: true}, nil
	}

	result := BatchResult{
		Vectors: make(map[string][]float32),
		Failed:  make(map[string]error),
	}

	// Deterministic order so outcome indexes map back to item IDs.
	ids := make([]string, 0, len(req.Items))
	for id := range req.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	claimed := make([]string, 0, len(ids))
	releases := make([]func(), 0, len(ids))
	defer func() {
		for _, release := range releases {
			release()
		}
	}()
	for _, id := range ids {
		release, ok := d.inflight.Acquire(HashText(req.Items[id]))
		if !ok {
			log.Printf("dispatch: identical text already in flight, skipping item %q", id)
			result.Skipped = append(result.Skipped, id)
			continue
		}
		releases = append(releases, release)
		claimed = append(claimed, id)
	}
	if len(claimed) == 0 {
		return result, nil
	}

	texts := make([]string, len(claimed))
	for i, id := range claimed {
		texts[i] = req.Items[id]
	}

	outcome, err := d.engine.GenerateBatch(ctx, texts)
	if outcome != nil {
		for idx, vector := range outcome.Successful {
			result.Vectors[claimed[idx]] = vector
		}
		for idx, ferr := range outcome.Failed {
			result.Failed[claimed[idx]] = ferr
		}
		result.CacheHits = outcome.CacheHits
	}
	return result, err
}
