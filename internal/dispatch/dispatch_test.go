package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/embedgate/internal/degrade"
	"github.com/dshills/embedgate/internal/orchestrator"
)

// fakeEngine is a controllable Engine.
type fakeEngine struct {
	mu          sync.Mutex
	singleCalls int
	batchCalls  int

	embedFn func(ctx context.Context, text string) ([]float32, error)
	batchFn func(ctx context.Context, texts []string) (*orchestrator.BatchOutcome, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
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

func (f *fakeEngine) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.singleCalls++
	f.mu.Unlock()
	return f.embedFn(ctx, text)
}

func (f *fakeEngine) GenerateBatch(ctx context.Context, texts []string) (*orchestrator.BatchOutcome, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	return f.batchFn(ctx, texts)
}

// fakeQueue records enqueued work.
type fakeQueue struct {
	mu      sync.Mutex
	items   []WorkItem
	batches []BatchWorkItem
	err     error
}

func (q *fakeQueue) Enqueue(_ context.Context, item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) EnqueueBatch(_ context.Context, batch BatchWorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, batch)
	return nil
}

func TestSelectorModes(t *testing.T) {
	full := Request{ServerID: "srv", CollectionID: "col", ItemID: "item", Text: "hello"}

	tests := []struct {
		name     string
		enabled  bool
		optedOut []string
		req      Request
		want     Mode
	}{
		{"disabled globally", false, nil, full, ModeSync},
		{"enabled with full context", true, nil, full, ModeDeferred},
		{"missing server id", true, nil, Request{CollectionID: "col", ItemID: "item", Text: "x"}, ModeSync},
		{"missing collection id", true, nil, Request{ServerID: "srv", ItemID: "item", Text: "x"}, ModeSync},
		{"missing item id", true, nil, Request{ServerID: "srv", CollectionID: "col", Text: "x"}, ModeSync},
		{"collection opted out", true, []string{"col"}, full, ModeSync},
		{"other collection opted out", true, []string{"other"}, full, ModeDeferred},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelector(tt.enabled, tt.optedOut)
			assert.Equal(t, tt.want, s.Select(tt.req))
		})
	}
}

func TestSelectorOptInOut(t *testing.T) {
	s := NewSelector(true, nil)
	req := Request{ServerID: "srv", CollectionID: "col", ItemID: "item", Text: "x"}

	assert.Equal(t, ModeDeferred, s.Select(req))
	s.OptOut("col")
	assert.Equal(t, ModeSync, s.Select(req))
	s.OptIn("col")
	assert.Equal(t, ModeDeferred, s.Select(req))
	s.SetEnabled(false)
	assert.Equal(t, ModeSync, s.Select(req))
}

func TestInFlightClaims(t *testing.T) {
	f := NewInFlight()

	release, ok := f.Acquire("k")
	require.True(t, ok)
	assert.Equal(t, 1, f.Len())

	_, ok = f.Acquire("k")
	assert.False(t, ok, "second claim for the same key must fail")

	_, ok2 := f.Acquire("other")
	assert.True(t, ok2, "unrelated keys claim independently")

	release()
	release() // double release is harmless
	assert.Equal(t, 1, f.Len())

	_, ok = f.Acquire("k")
	assert.True(t, ok, "released keys can be claimed again")
}

func TestHashTextNormalizes(t *testing.T) {
	assert.Equal(t, HashText("hello  world"), HashText("hello\nworld"))
	assert.NotEqual(t, HashText("hello"), HashText("Hello"))
}

func TestDispatchSyncPath(t *testing.T) {
	engine := newFakeEngine()
	d := NewDispatcher(NewSelector(false, nil), nil, engine)

	result, err := d.Dispatch(context.Background(), Request{Text: "hello"})
	require.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Equal(t, []float32{5}, result.Vector)
	assert.Equal(t, 0, d.InFlight().Len(), "claim must be released after execution")
}

func TestDispatchDeferredPath(t *testing.T) {
	engine := newFakeEngine()
	queue := &fakeQueue{}
	d := NewDispatcher(NewSelector(true, nil), queue, engine)

	result, err := d.Dispatch(context.Background(), Request{
		ServerID: "srv", CollectionID: "col", ItemID: "item-1", Text: "hello", Priority: 2,
	})
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Nil(t, result.Vector)

	require.Len(t, queue.items, 1)
	assert.Equal(t, WorkItem{
		ServerID: "srv", CollectionID: "col", ItemID: "item-1", Text: "hello", Priority: 2,
	}, queue.items[0])
	assert.Equal(t, 0, engine.singleCalls, "deferred requests must not run inline")
}

func TestDispatchEnqueueFailure(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue full")}
	d := NewDispatcher(NewSelector(true, nil), queue, newFakeEngine())

	_, err := d.Dispatch(context.Background(), Request{
		ServerID: "srv", CollectionID: "col", ItemID: "item-1", Text: "hello",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestDispatchSkipsInFlightDuplicate(t *testing.T) {
	engine := newFakeEngine()
	started := make(chan struct{})
	release := make(chan struct{})
	engine.embedFn = func(_ context.Context, text string) ([]float32, error) {
		close(started)
		<-release
		return []float32{1}, nil
	}
	d := NewDispatcher(NewSelector(false, nil), nil, engine)

	done := make(chan Result, 1)
	go func() {
		r, _ := d.Dispatch(context.Background(), Request{Text: "same"})
		done <- r
	}()
	<-started

	// Identical text while the first call is still running.
	second, err := d.Dispatch(context.Background(), Request{Text: "same"})
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, engine.singleCalls, "duplicate must not reach the engine")
}

func TestDispatchBatchSync(t *testing.T) {
	engine := newFakeEngine()
	d := NewDispatcher(NewSelector(false, nil), nil, engine)

	result, err := d.DispatchBatch(context.Background(), BatchRequest{
		Items: map[string]string{"a": "one", "b": "three33"},
	})
	require.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Equal(t, []float32{3}, result.Vectors["a"])
	assert.Equal(t, []float32{8}, result.Vectors["b"])
	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, d.InFlight().Len())
}

func TestDispatchBatchDeferred(t *testing.T) {
	queue := &fakeQueue{}
	d := NewDispatcher(NewSelector(true, nil), queue, newFakeEngine())

	result, err := d.DispatchBatch(context.Background(), BatchRequest{
		ServerID: "srv", CollectionID: "col",
		Items: map[string]string{"a": "one", "b": "two"},
	})
	require.NoError(t, err)
	assert.True(t, result.Queued)
	require.Len(t, queue.batches, 1)
	assert.Len(t, queue.batches[0].Items, 2)
}

func TestDispatchBatchPartialFailure(t *testing.T) {
	engine := newFakeEngine()
	itemErr := degrade.New(degrade.KindRateLimited, "provider rate limited")
	engine.batchFn = func(_ context.Context, texts []string) (*orchestrator.BatchOutcome, error) {
		outcome := &orchestrator.BatchOutcome{
			Successful: map[int][]float32{0: {1}},
			Failed:     map[int]error{1: itemErr},
		}
		return outcome, degrade.New(degrade.KindPartialBatch, "some batch items failed")
	}
	d := NewDispatcher(NewSelector(false, nil), nil, engine)

	result, err := d.DispatchBatch(context.Background(), BatchRequest{
		Items: map[string]string{"a": "one", "b": "two"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, degrade.New(degrade.KindPartialBatch, ""))
	assert.Contains(t, result.Vectors, "a")
	assert.ErrorIs(t, result.Failed["b"], itemErr)
}

func TestDispatchBatchSkipsInFlight(t *testing.T) {
	engine := newFakeEngine()
	d := NewDispatcher(NewSelector(false, nil), nil, engine)

	// Claim one text as if another worker were embedding it.
	release, ok := d.InFlight().Acquire(HashText("busy"))
	require.True(t, ok)
	defer release()

	result, err := d.DispatchBatch(context.Background(), BatchRequest{
		Items: map[string]string{"a": "busy", "b": "free"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Skipped)
	assert.Contains(t, result.Vectors, "b")
	assert.NotContains(t, result.Vectors, "a")
}
