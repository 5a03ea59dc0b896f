package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// memoryEntry is the value stored in the in-process cache.
type memoryEntry struct {
	vector    []float32
	meta      Meta
	createdAt time.Time
}

// Memory is a process-local Store backend on an expiring LRU. Used when
// no durable cache path is configured, and in tests.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemory creates an in-process cache holding at most maxEntries, each
// expiring after ttl.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Memory{
		lru: expirable.NewLRU[string, memoryEntry](maxEntries, nil, ttl),
	}
}

// Get returns a copy of the cached vector, or false on miss.
func (m *Memory) Get(_ context.Context, text string, meta Meta) ([]float32, bool) {
	entry, ok := m.lru.Get(Key(text, meta))
	if !ok {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)

	// Copy so caller mutations cannot pollute the cache.
	vector := make([]float32, len(entry.vector))
	copy(vector, entry.vector)
	return vector, true
}

// GetMulti returns only the hits, keyed by original text.
func (m *Memory) GetMulti(ctx context.Context, texts []string, meta Meta) map[string][]float32 {
	hits := make(map[string][]float32)
	for _, text := range texts {
		if _, done := hits[text]; done {
			continue
		}
		if vector, ok := m.Get(ctx, text, meta); ok {
			hits[text] = vector
		}
	}
	return hits
}

// Set upserts a vector. The LRU handles eviction at capacity.
func (m *Memory) Set(_ context.Context, text string, vector []float32, meta Meta) error {
	stored := make([]float32, len(vector))
	copy(stored, vector)
	m.lru.Add(Key(text, meta), memoryEntry{
		vector:    stored,
		meta:      meta,
		createdAt: time.Now(),
	})
	return nil
}

// SetMulti upserts several vectors keyed by text.
func (m *Memory) SetMulti(ctx context.Context, vectors map[string][]float32, meta Meta) error {
	for text, vector := range vectors {
		if err := m.Set(ctx, text, vector, meta); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate removes entries matching meta. Empty fields act as
// wildcards.
func (m *Memory) Invalidate(_ context.Context, meta Meta) (int64, error) {
	var removed int64
	for _, key := range m.lru.Keys() {
		entry, ok := m.lru.Peek(key)
		if !ok {
			continue
		}
		if meta.Provider != "" && entry.meta.Provider != meta.Provider {
			continue
		}
		if meta.Model != "" && entry.meta.Model != meta.Model {
			continue
		}
		if meta.Dimension > 0 && entry.meta.Dimension != meta.Dimension {
			continue
		}
		if m.lru.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) (int64, error) {
	count := int64(m.lru.Len())
	m.lru.Purge()
	return count, nil
}

// Stats reports usage statistics.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	stats := Stats{
		Entries: int64(m.lru.Len()),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	var dims int64
	for _, entry := range m.lru.Values() {
		dims += int64(len(entry.vector))
		if stats.Oldest.IsZero() || entry.createdAt.Before(stats.Oldest) {
			stats.Oldest = entry.createdAt
		}
		if entry.createdAt.After(stats.Newest) {
			stats.Newest = entry.createdAt
		}
	}
	if stats.Entries > 0 {
		stats.AvgDimension = float64(dims) / float64(stats.Entries)
	}
	return stats, nil
}

// Close is a no-op for the in-process backend.
func (m *Memory) Close() error {
	return nil
}
