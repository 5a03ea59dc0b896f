package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsDeterministic(t *testing.T) {
	meta := Meta{Provider: "openai", Model: "text-embedding-3-small", Dimension: 1536}
	assert.Equal(t, Key("hello world", meta), Key("hello world", meta))
}

func TestKeyNormalizesWhitespace(t *testing.T) {
	meta := Meta{Provider: "jina", Model: "jina-embeddings-v3", Dimension: 1024}
	assert.Equal(t, Key("hello world", meta), Key("  hello\n\tworld  ", meta))
	assert.NotEqual(t, Key("hello world", meta), Key("Hello world", meta), "case is significant")
}

func TestKeySeparatesConfigurations(t *testing.T) {
	base := Meta{Provider: "openai", Model: "text-embedding-3-small", Dimension: 1536}
	tests := []struct {
		name string
		meta Meta
	}{
		{"different provider", Meta{Provider: "jina", Model: base.Model, Dimension: base.Dimension}},
		{"different model", Meta{Provider: base.Provider, Model: "text-embedding-3-large", Dimension: base.Dimension}},
		{"different dimension", Meta{Provider: base.Provider, Model: base.Model, Dimension: 768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Key("same text", base), Key("same text", tt.meta))
		})
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vector := []float32{0.1, -2.5, 3.25, 0, -0.0625}
	assert.Equal(t, vector, deserializeVector(serializeVector(vector)))
}

func TestMemoryGetAfterSet(t *testing.T) {
	m := NewMemory(100, time.Hour)
	ctx := context.Background()
	meta := Meta{Provider: "local", Model: "local-embeddings", Dimension: 3}
	vector := []float32{1, 2, 3}

	require.NoError(t, m.Set(ctx, "hello", vector, meta))
	got, ok := m.Get(ctx, "hello", meta)
	require.True(t, ok)
	assert.Equal(t, vector, got)

	// Mutating the returned slice must not pollute the cache.
	got[0] = 99
	again, ok := m.Get(ctx, "hello", meta)
	require.True(t, ok)
	assert.Equal(t, float32(1), again[0])
}

func TestMemorySecondSetOverwrites(t *testing.T) {
	m := NewMemory(100, time.Hour)
	ctx := context.Background()
	meta := Meta{Provider: "local", Model: "local-embeddings", Dimension: 2}

	require.NoError(t, m.Set(ctx, "text", []float32{1, 1}, meta))
	require.NoError(t, m.Set(ctx, "text", []float32{2, 2}, meta))

	got, ok := m.Get(ctx, "text", meta)
	require.True(t, ok)
	assert.Equal(t, []float32{2, 2}, got)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries, "overwrite must not duplicate")
}

func TestMemoryGetMulti(t *testing.T) {
	m := NewMemory(100, time.Hour)
	ctx := context.Background()
	meta := Meta{Provider: "local", Model: "local-embeddings", Dimension: 1}

	require.NoError(t, m.Set(ctx, "a", []float32{1}, meta))
	require.NoError(t, m.Set(ctx, "c", []float32{3}, meta))

	hits := m.GetMulti(ctx, []string{"a", "b", "c"}, meta)
	assert.Len(t, hits, 2)
	assert.Equal(t, []float32{1}, hits["a"])
	assert.Equal(t, []float32{3}, hits["c"])
	assert.NotContains(t, hits, "b")
}

func TestMemoryInvalidateByMeta(t *testing.T) {
	m := NewMemory(100, time.Hour)
	ctx := context.Background()
	openai := Meta{Provider: "openai", Model: "small", Dimension: 2}
	jina := Meta{Provider: "jina", Model: "v3", Dimension: 2}

	require.NoError(t, m.Set(ctx, "a", []float32{1, 1}, openai))
	require.NoError(t, m.Set(ctx, "b", []float32{2, 2}, openai))
	require.NoError(t, m.Set(ctx, "c", []float32{3, 3}, jina))

	removed, err := m.Invalidate(ctx, Meta{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, ok := m.Get(ctx, "c", jina)
	assert.True(t, ok, "other provider untouched")
}

func TestMemoryClearAndStats(t *testing.T) {
	m := NewMemory(100, time.Hour)
	ctx := context.Background()
	meta := Meta{Provider: "local", Model: "local-embeddings", Dimension: 4}

	require.NoError(t, m.Set(ctx, "a", make([]float32, 4), meta))
	require.NoError(t, m.Set(ctx, "b", make([]float32, 4), meta))
	_, _ = m.Get(ctx, "a", meta)
	_, _ = m.Get(ctx, "missing", meta)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
	assert.InDelta(t, 4.0, stats.AvgDimension, 0.001)

	count, err := m.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	_, ok := m.Get(ctx, "a", meta)
	assert.False(t, ok)
}
