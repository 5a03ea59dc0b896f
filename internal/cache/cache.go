package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"time"
)

// Meta identifies the embedding configuration an entry was generated
// under. Provider, model and dimension are all part of the cache key, so
// changing any of them can never serve a vector cached for the old
// configuration.
type Meta struct {
	Provider  string
	Model     string
	Dimension int
}

// Entry is one cached embedding.
type Entry struct {
	Key            string
	Vector         []float32
	Dimension      int
	CreatedAt      time.Time
	LastAccessedAt time.Time
	HitCount       int64
}

// Stats summarizes cache usage.
type Stats struct {
	Entries      int64
	Hits         int64
	Misses       int64
	HitRate      float64
	AvgDimension float64
	Oldest       time.Time
	Newest       time.Time
}

// Store is the content-addressed embedding cache contract. Lookups
// swallow backend failures and report a miss; a cache outage must never
// break embedding generation.
type Store interface {
	// Get returns the cached vector for (text, meta), or false on miss.
	Get(ctx context.Context, text string, meta Meta) ([]float32, bool)

	// GetMulti returns only the hits, keyed by original text.
	GetMulti(ctx context.Context, texts []string, meta Meta) map[string][]float32

	// Set upserts a vector. Re-caching the same (text, meta) refreshes
	// timestamps without duplicating entries.
	Set(ctx context.Context, text string, vector []float32, meta Meta) error

	// SetMulti upserts several vectors keyed by text.
	SetMulti(ctx context.Context, vectors map[string][]float32, meta Meta) error

	// Invalidate removes entries matching meta. Empty Provider/Model and
	// zero Dimension act as wildcards. Returns the removed count.
	Invalidate(ctx context.Context, meta Meta) (int64, error)

	// Clear removes every entry and returns the removed count.
	Clear(ctx context.Context) (int64, error)

	// Stats reports usage statistics.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// NormalizeText collapses runs of whitespace so trivially reformatted
// inputs collide into one cache entry. Case is preserved: embedding
// models are case sensitive.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Key derives the content address for (text, meta). It is a pure
// function of its inputs: identical requests always collide into one
// entry, and no two configurations ever share one.
func Key(text string, meta Meta) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(text)))
	h.Write([]byte{0})
	h.Write([]byte(meta.Provider))
	h.Write([]byte{0})
	h.Write([]byte(meta.Model))
	h.Write([]byte{0})
	var dim [4]byte
	binary.LittleEndian.PutUint32(dim[:], uint32(meta.Dimension))
	h.Write(dim[:])
	return hex.EncodeToString(h.Sum(nil))
}

// serializeVector converts a float32 slice to a little-endian byte blob.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
