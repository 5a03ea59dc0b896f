package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/embedgate/internal/dispatch"
	"github.com/dshills/embedgate/internal/storage"
)

// Item statuses. Lifecycle: pending -> claimed -> done, or back to
// pending on a retryable failure until attempts run out, then failed.
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Item kinds.
const (
	KindSingle = "single"
	KindBatch  = "batch"
)

// DefaultMaxAttempts is how often an item is retried before it is
// parked as failed.
const DefaultMaxAttempts = 5

// Item is one claimed unit of deferred work. Either Text (single) or
// Items (batch) is populated, depending on Kind.
type Item struct {
	ID           int64
	Kind         string
	ServerID     string
	CollectionID string
	ItemID       string
	Text         string
	Items        map[string]string
	Priority     int
	Attempts     int
}

// Stats summarizes queue state for health checks.
type Stats struct {
	Pending int64
	Claimed int64
	Done    int64
	Failed  int64
}

// Depth is the backlog: items still waiting or being worked.
func (s Stats) Depth() int64 { return s.Pending + s.Claimed }

// SQLite is the durable at-least-once work queue. Producers enqueue
// through the dispatch.Queue interface; the worker claims, completes
// and retries. Safe for concurrent use.
type SQLite struct {
	db *sql.DB
}

var _ dispatch.Queue = (*SQLite)(nil)

// NewSQLite opens (or creates) the queue database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	if err := storage.ApplyMigrations(context.Background(), db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply queue migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database connection.
func (q *SQLite) Close() error {
	return q.db.Close()
}

// Enqueue adds one deferred item.
func (q *SQLite) Enqueue(ctx context.Context, item dispatch.WorkItem) error {
	now := time.Now()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO work_items (kind, server_id, collection_id, item_id, text, priority, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, KindSingle, item.ServerID, item.CollectionID, item.ItemID, item.Text, item.Priority, DefaultMaxAttempts, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue work item: %w", err)
	}
	return nil
}

// EnqueueBatch adds one deferred batch.
func (q *SQLite) EnqueueBatch(ctx context.Context, batch dispatch.BatchWorkItem) error {
	itemsJSON, err := json.Marshal(batch.Items)
	if err != nil {
		return fmt.Errorf("failed to encode batch items: %w", err)
	}
	now := time.Now()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO work_items (kind, server_id, collection_id, items_json, priority, max_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, KindBatch, batch.ServerID, batch.CollectionID, string(itemsJSON), batch.Priority, DefaultMaxAttempts, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue work batch: %w", err)
	}
	return nil
}

// Claim atomically takes the highest-priority pending item. Returns
// (nil, nil) when the queue is empty.
func (q *SQLite) Claim(ctx context.Context) (*Item, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM work_items
		WHERE status = ?
		ORDER BY priority DESC, id ASC
		LIMIT 1
	`, StatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending work: %w", err)
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE work_items
		SET status = ?, claimed_at = ?, updated_at = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?
	`, StatusClaimed, now, now, id, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim work item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another worker won the race; caller just polls again.
		return nil, nil
	}

	item := &Item{ID: id}
	var itemsJSON string
	err = tx.QueryRowContext(ctx, `
		SELECT kind, server_id, collection_id, item_id, text, items_json, priority, attempts
		FROM work_items WHERE id = ?
	`, id).Scan(&item.Kind, &item.ServerID, &item.CollectionID, &item.ItemID, &item.Text, &itemsJSON, &item.Priority, &item.Attempts)
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed work item: %w", err)
	}
	if item.Kind == KindBatch && itemsJSON != "" {
		if err := json.Unmarshal([]byte(itemsJSON), &item.Items); err != nil {
			return nil, fmt.Errorf("failed to decode batch items: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return item, nil
}

// Complete marks a claimed item done.
func (q *SQLite) Complete(ctx context.Context, id int64) error {
	// Only a claimed item can complete. A released or reclaimed item
	// stays pending and will be redelivered; the cache absorbs the
	// duplicate work.
	_, err := q.db.ExecContext(ctx, `
		UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, StatusDone, time.Now(), id, StatusClaimed)
	if err != nil {
		return fmt.Errorf("failed to complete work item: %w", err)
	}
	return nil
}

// Fail records a processing failure. The item returns to pending for
// another attempt until max_attempts is exhausted, then parks as
// failed.
func (q *SQLite) Fail(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE work_items
		SET status = CASE WHEN attempts >= max_attempts THEN ? ELSE ? END,
		    last_error = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, StatusFailed, StatusPending, msg, time.Now(), id, StatusClaimed)
	if err != nil {
		return fmt.Errorf("failed to record work item failure: %w", err)
	}
	return nil
}

// Release returns a claimed item to pending without consuming an
// attempt. Used when the worker declines the item, e.g. identical text
// already in flight.
func (q *SQLite) Release(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE work_items
		SET status = ?, attempts = attempts - 1, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, StatusPending, time.Now(), id, StatusClaimed)
	if err != nil {
		return fmt.Errorf("failed to release work item: %w", err)
	}
	return nil
}

// ReclaimStale returns items claimed longer than age ago to pending.
// Covers workers that died mid-item; re-delivery is the at-least-once
// part of the contract.
func (q *SQLite) ReclaimStale(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	res, err := q.db.ExecContext(ctx, `
		UPDATE work_items
		SET status = ?, claimed_at = NULL, updated_at = ?
		WHERE status = ? AND claimed_at < ?
	`, StatusPending, time.Now(), StatusClaimed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale work: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts items by status.
func (q *SQLite) Stats(ctx context.Context) (Stats, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM work_items GROUP BY status
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusClaimed:
			stats.Claimed = count
		case StatusDone:
			stats.Done = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// Depth is the current backlog, for health checks.
func (q *SQLite) Depth(ctx context.Context) (int64, error) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Depth(), nil
}
