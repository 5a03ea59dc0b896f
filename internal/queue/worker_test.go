package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/degrade"
	"github.com/dshills/embedgate/internal/dispatch"
	"github.com/dshills/embedgate/internal/orchestrator"
)

// workerEngine is a controllable dispatch.Engine.
type workerEngine struct {
	mu      sync.Mutex
	embedFn func(ctx context.Context, text string) ([]float32, error)
	batchFn func(ctx context.Context, texts []string) (*orchestrator.BatchOutcome, error)
}

func newWorkerEngine() *workerEngine {
	return &workerEngine{
		embedFn: func(_ context.Context, text string) ([]float32, error) {
			return []float32{float32(len(text))}, nil
		},
		batchFn: func(_ context.Context, texts []string) (*orchestrator.BatchOutcome, error) {
			outcome := &orchestrator.BatchOutcome{
				Successful: make(map[int][]float32),
				Failed:     make(map[int]error),
			}
			for i, t := range texts {
				outcome.Successful[i] = []float32{float32(len(t))}
			}
			return outcome, nil
		},
	}
}

func (e *workerEngine) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	fn := e.embedFn
	e.mu.Unlock()
	return fn(ctx, text)
}

func (e *workerEngine) GenerateBatch(ctx context.Context, texts []string) (*orchestrator.BatchOutcome, error) {
	e.mu.Lock()
	fn := e.batchFn
	e.mu.Unlock()
	return fn(ctx, texts)
}

// recordingSink collects written embeddings.
type recordingSink struct {
	mu      sync.Mutex
	written map[string][]float32 // item ID -> vector
	err     error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		written: make(map[string][]float32),
	}
}

func (s *recordingSink) WriteEmbedding(_ context.Context, ref ItemRef, _ string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.written[ref.ItemID] = vector
	return nil
}

func (s *recordingSink) get(itemID string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.written[itemID]
	return v, ok
}

func newTestWorker(t *testing.T, engine dispatch.Engine, sink ResultSink) (*Worker, *SQLite) {
	t.Helper()
	q := newTestQueue(t)
	w := NewWorker(q, engine, sink, nil, WorkerOptions{
		Workers:      1,
		PollInterval: 5 * time.Millisecond,
		StaleAfter:   time.Minute,
	})
	return w, q
}

func TestProcessSingleWritesThroughSink(t *testing.T) {
	engine := newWorkerEngine()
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{
		ServerID: "srv", CollectionID: "col", ItemID: "item-1", Text: "hello",
	}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	w.process(ctx, item)

	vector, ok := sink.get("item-1")
	require.True(t, ok)
	assert.Equal(t, []float32{5}, vector)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Done)
}

func TestProcessSingleFailureRequeues(t *testing.T) {
	engine := newWorkerEngine()
	engine.embedFn = func(context.Context, string) ([]float32, error) {
		return nil, degrade.New(degrade.KindRateLimited, "provider rate limited")
	}
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "item-1", Text: "hello"}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)

	w.process(ctx, item)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "failed item must return for another attempt")
	_, ok := sink.get("item-1")
	assert.False(t, ok)
}

func TestProcessSingleInFlightReleases(t *testing.T) {
	engine := newWorkerEngine()
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx := context.Background()

	// Claim the text as if the sync path were embedding it right now.
	release, ok := w.inflight.Acquire(dispatch.HashText("hello"))
	require.True(t, ok)
	defer release()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "item-1", Text: "hello"}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)

	w.process(ctx, item)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "in-flight text must be released, not failed")
	_, written := sink.get("item-1")
	assert.False(t, written)
}

func TestProcessBatchWritesEachItem(t *testing.T) {
	engine := newWorkerEngine()
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx := context.Background()

	require.NoError(t, q.EnqueueBatch(ctx, dispatch.BatchWorkItem{
		ServerID: "srv", CollectionID: "col",
		Items: map[string]string{"a": "one", "b": "seven77"},
	}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)

	w.process(ctx, item)

	va, ok := sink.get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{3}, va)
	vb, ok := sink.get("b")
	require.True(t, ok)
	assert.Equal(t, []float32{7}, vb)
}

func TestProcessBatchPartialFailureRequeues(t *testing.T) {
	engine := newWorkerEngine()
	engine.batchFn = func(_ context.Context, texts []string) (*orchestrator.BatchOutcome, error) {
		return &orchestrator.BatchOutcome{
			Successful: map[int][]float32{0: {1}},
			Failed:     map[int]error{1: errors.New("boom")},
		}, degrade.New(degrade.KindPartialBatch, "some batch items failed")
	}
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx := context.Background()

	require.NoError(t, q.EnqueueBatch(ctx, dispatch.BatchWorkItem{
		Items: map[string]string{"a": "one", "b": "two"},
	}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)

	w.process(ctx, item)

	// The successful half is written; the batch itself retries.
	_, ok := sink.get("a")
	assert.True(t, ok)
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
}

// countingProvider counts real embedding calls behind the orchestrator.
type countingProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *countingProvider) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (p *countingProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.GenerateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (p *countingProvider) Dimension() int   { return 2 }
func (p *countingProvider) Name() string     { return "counting" }
func (p *countingProvider) Model() string    { return "counting-model" }
func (p *countingProvider) Configured() bool { return true }
func (p *countingProvider) Close() error     { return nil }

func (p *countingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	client := &countingProvider{}
	store := cache.NewMemory(100, time.Hour)
	breakers := breaker.NewRegistry(breaker.Config{FailureThreshold: 5, Cooldown: time.Minute})
	engine := orchestrator.New(client, store, breakers, nil, orchestrator.Options{
		Retry: orchestrator.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Multiplier:  2.0,
		},
	})
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{
		ServerID: "srv", CollectionID: "col", ItemID: "item-1", Text: "hello",
	}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)
	w.process(ctx, item)
	assert.Equal(t, 1, client.count())

	// At-least-once delivery: put the settled item back and run it
	// through the worker a second time.
	_, err = q.db.ExecContext(ctx, `
		UPDATE work_items SET status = ?, claimed_at = NULL WHERE id = ?
	`, StatusPending, item.ID)
	require.NoError(t, err)

	redelivered, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	w.process(ctx, redelivered)

	assert.Equal(t, 1, client.count(), "redelivery must be absorbed by the cache")
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries, "one cache entry, not two")

	qStats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), qStats.Done)
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	engine := newWorkerEngine()
	sink := newRecordingSink()
	w, q := newTestWorker(t, engine, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "a", Text: "one"}))
	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "b", Text: "two"}))

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for both items to be fully settled, not just written.
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, serr := q.Stats(context.Background())
		require.NoError(t, serr)
		if stats.Done == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker did not drain the queue in time: %+v", stats)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	_, okA := sink.get("a")
	_, okB := sink.get("b")
	assert.True(t, okA)
	assert.True(t, okB)
}
