package dispatch

import "context"

// WorkItem is one deferred embedding request. ServerID and CollectionID
// locate where the finished embedding must be written, which is what
// makes the item safe to resume after a restart.
type WorkItem struct {
	ServerID     string
	CollectionID string
	ItemID       string
	Text         string
	Priority     int
}

// BatchWorkItem defers several items for one collection in one queue
// entry. Items maps item ID to text.
type BatchWorkItem struct {
	ServerID     string
	CollectionID string
	Items        map[string]string
	Priority     int
}

// Queue is the deferred work hand-off. Delivery is at least once;
// consumers must tolerate re-delivery (the cache upsert absorbs
// duplicate embedding work).
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	EnqueueBatch(ctx context.Context, batch BatchWorkItem) error
}
