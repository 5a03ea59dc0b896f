package queue

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/embedgate/internal/dispatch"
)

// ItemRef locates where a finished embedding must be written.
type ItemRef struct {
	ServerID     string
	CollectionID string
	ItemID       string
}

// ResultSink receives finished embeddings from the worker. Writes must
// be idempotent: at-least-once delivery means the same item can arrive
// twice.
type ResultSink interface {
	WriteEmbedding(ctx context.Context, ref ItemRef, text string, vector []float32) error
}

// WorkerOptions tunes the worker pool. Zero values take the defaults
// below.
type WorkerOptions struct {
	// Workers is the number of concurrent claim loops.
	Workers int
	// PollInterval is the idle wait between claim attempts.
	PollInterval time.Duration
	// StaleAfter is how long a claim may stand before it is assumed
	// abandoned and reclaimed.
	StaleAfter time.Duration
}

// DefaultWorkerOptions returns the production worker tuning.
func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		Workers:      2,
		PollInterval: time.Second,
		StaleAfter:   5 * time.Minute,
	}
}

// Worker drains the deferred queue by re-entering the orchestrator and
// writing results through the sink. It shares the dispatcher's
// in-flight claim set so deferred and synchronous processing of the
// same text never overlap.
type Worker struct {
	queue    *SQLite
	engine   dispatch.Engine
	sink     ResultSink
	inflight *dispatch.InFlight
	opts     WorkerOptions
}

// NewWorker wires a worker pool. inflight may be nil, which creates a
// private claim set.
func NewWorker(q *SQLite, engine dispatch.Engine, sink ResultSink, inflight *dispatch.InFlight, opts WorkerOptions) *Worker {
	def := DefaultWorkerOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	if inflight == nil {
		inflight = dispatch.NewInFlight()
	}
	return &Worker{
		queue:    q,
		engine:   engine,
		sink:     sink,
		inflight: inflight,
		opts:     opts,
	}
}

// Run drains the queue until the context is canceled. Always returns
// the context's error.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Workers; i++ {
		g.Go(func() error { return w.loop(ctx) })
	}
	g.Go(func() error { return w.reclaimLoop(ctx) })
	return g.Wait()
}

// loop claims and processes items until the context ends.
func (w *Worker) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := w.queue.Claim(ctx)
		if err != nil {
			log.Printf("queue: claim failed: %v", err)
		}
		if item == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}

		w.process(ctx, item)
	}
}

// reclaimLoop periodically returns abandoned claims to pending.
func (w *Worker) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.StaleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := w.queue.ReclaimStale(ctx, w.opts.StaleAfter)
			if err != nil {
				log.Printf("queue: stale reclaim failed: %v", err)
			} else if n > 0 {
				log.Printf("queue: reclaimed %d stale items", n)
			}
		}
	}
}

// process runs one claimed item end to end and settles its status.
func (w *Worker) process(ctx context.Context, item *Item) {
	var err error
	switch item.Kind {
	case KindSingle:
		err = w.processSingle(ctx, item)
	case KindBatch:
		err = w.processBatch(ctx, item)
	default:
		err = fmt.Errorf("unknown work item kind %q", item.Kind)
	}

	if err != nil {
		log.Printf("queue: item %d failed (attempt %d): %v", item.ID, item.Attempts, err)
		if ferr := w.queue.Fail(ctx, item.ID, err); ferr != nil {
			log.Printf("queue: failed to settle item %d: %v", item.ID, ferr)
		}
		return
	}
	if cerr := w.queue.Complete(ctx, item.ID); cerr != nil {
		log.Printf("queue: failed to complete item %d: %v", item.ID, cerr)
	}
}

func (w *Worker) processSingle(ctx context.Context, item *Item) error {
	release, ok := w.inflight.Acquire(dispatch.HashText(item.Text))
	if !ok {
		// Someone else is embedding this text right now. Put the item
		// back; the cache will absorb it on redelivery.
		log.Printf("queue: item %d text already in flight, releasing", item.ID)
		return w.queue.Release(ctx, item.ID)
	}
	defer release()

	vector, err := w.engine.GenerateEmbedding(ctx, item.Text)
	if err != nil {
		return err
	}
	if vector == nil {
		// Blank text embeds to nothing; the item is simply done.
		return nil
	}
	return w.sink.WriteEmbedding(ctx, ItemRef{
		ServerID:     item.ServerID,
		CollectionID: item.CollectionID,
		ItemID:       item.ItemID,
	}, item.Text, vector)
}

func (w *Worker) processBatch(ctx context.Context, item *Item) error {
	ids := make([]string, 0, len(item.Items))
	for id := range item.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	texts := make([]string, len(ids))
	for i, id := range ids {
		texts[i] = item.Items[id]
	}

	outcome, err := w.engine.GenerateBatch(ctx, texts)
	if outcome != nil {
		for idx, vector := range outcome.Successful {
			ref := ItemRef{
				ServerID:     item.ServerID,
				CollectionID: item.CollectionID,
				ItemID:       ids[idx],
			}
			if werr := w.sink.WriteEmbedding(ctx, ref, texts[idx], vector); werr != nil && err == nil {
				err = werr
			}
		}
	}
	// A partial failure requeues the whole batch; already-embedded
	// items come straight back from the cache on the next attempt.
	return err
}
