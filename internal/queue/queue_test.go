package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/embedgate/internal/dispatch"
)

func newTestQueue(t *testing.T) *SQLite {
	t.Helper()
	q, err := NewSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueClaimRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{
		ServerID: "srv", CollectionID: "col", ItemID: "item-1", Text: "hello", Priority: 3,
	}))

	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, KindSingle, item.Kind)
	assert.Equal(t, "srv", item.ServerID)
	assert.Equal(t, "col", item.CollectionID)
	assert.Equal(t, "item-1", item.ItemID)
	assert.Equal(t, "hello", item.Text)
	assert.Equal(t, 3, item.Priority)
	assert.Equal(t, 1, item.Attempts)

	// Claimed items are not claimable again.
	second, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestClaimEmptyQueue(t *testing.T) {
	q := newTestQueue(t)

	item, err := q.Claim(context.Background())
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestClaimPriorityOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "low", Text: "a", Priority: 1}))
	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "high", Text: "b", Priority: 9}))
	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "low2", Text: "c", Priority: 1}))

	var order []string
	for {
		item, err := q.Claim(ctx)
		require.NoError(t, err)
		if item == nil {
			break
		}
		order = append(order, item.ItemID)
	}
	assert.Equal(t, []string{"high", "low", "low2"}, order, "priority first, then FIFO")
}

func TestCompleteSettlesItem(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "x", Text: "t"}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	require.NoError(t, q.Complete(ctx, item.ID))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Done)
	assert.Equal(t, int64(0), stats.Depth())
}

func TestFailRetriesUntilAttemptsExhausted(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	boom := errors.New("provider down")

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "x", Text: "t"}))

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		item, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, item, "attempt %d should be claimable", attempt)
		assert.Equal(t, attempt, item.Attempts)
		require.NoError(t, q.Fail(ctx, item.ID, boom))
	}

	// Attempt budget spent: the item parks as failed.
	item, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestReleaseDoesNotConsumeAttempt(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "x", Text: "t"}))

	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Attempts)

	require.NoError(t, q.Release(ctx, item.ID))

	item, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Attempts, "release must refund the attempt")
}

func TestEnqueueBatchRoundTrip(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueueBatch(ctx, dispatch.BatchWorkItem{
		ServerID: "srv", CollectionID: "col",
		Items:    map[string]string{"a": "one", "b": "two"},
		Priority: 1,
	}))

	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, KindBatch, item.Kind)
	assert.Equal(t, map[string]string{"a": "one", "b": "two"}, item.Items)
}

func TestReclaimStale(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "x", Text: "t"}))
	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)

	time.Sleep(10 * time.Millisecond)
	n, err := q.ReclaimStale(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Reclaimed items are claimable again.
	item, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.NotNil(t, item)
}

func TestStatsCountsByStatus(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "a", Text: "1"}))
	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "b", Text: "2"}))
	require.NoError(t, q.Enqueue(ctx, dispatch.WorkItem{ItemID: "c", Text: "3"}))

	item, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, item.ID))

	_, err = q.Claim(ctx)
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Claimed)
	assert.Equal(t, int64(1), stats.Done)
	assert.Equal(t, int64(2), stats.Depth())

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)
}
