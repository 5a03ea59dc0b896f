package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dshills/embedgate/internal/storage"
)

// Options tunes the durable cache. Zero values take the defaults below.
type Options struct {
	// TTL is how long an entry stays eligible for serving. Expired
	// entries are removed by the maintenance pass.
	TTL time.Duration
	// MaxEntries bounds the cache size; excess entries are reclaimed
	// least-recently-accessed first.
	MaxEntries int64
	// MaintenanceProbability is the chance any single request triggers
	// a maintenance pass, avoiding a dedicated scheduler.
	MaintenanceProbability float64
}

// DefaultOptions returns the production cache tuning.
func DefaultOptions() Options {
	return Options{
		TTL:                    30 * 24 * time.Hour,
		MaxEntries:             100000,
		MaintenanceProbability: 0.01,
	}
}

// SQLite is the durable Store backend. Safe for concurrent use; SQLite
// serializes writers through the single connection.
type SQLite struct {
	db   *sql.DB
	opts Options

	hits   atomic.Int64
	misses atomic.Int64

	// randFloat is swappable so tests can force or suppress maintenance.
	randFloat func() float64
}

// NewSQLite opens (or creates) the cache database at dbPath.
func NewSQLite(dbPath string, opts Options) (*SQLite, error) {
	def := DefaultOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.MaintenanceProbability <= 0 {
		opts.MaintenanceProbability = def.MaintenanceProbability
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := storage.ApplyMigrations(context.Background(), db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply cache migrations: %w", err)
	}

	return &SQLite{
		db:        db,
		opts:      opts,
		randFloat: rand.Float64,
	}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the cached vector for (text, meta). Backend failures are
// logged and reported as a miss: a cache outage degrades to "always
// miss", it never breaks generation.
func (s *SQLite) Get(ctx context.Context, text string, meta Meta) ([]float32, bool) {
	defer s.maybeMaintain(ctx)

	key := Key(text, meta)
	var blob []byte
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, created_at FROM embedding_cache WHERE cache_key = ?`,
		key,
	).Scan(&blob, &createdAt)
	if err == sql.ErrNoRows {
		s.misses.Add(1)
		return nil, false
	}
	if err != nil {
		log.Printf("cache: lookup failed, treating as miss: %v", err)
		s.misses.Add(1)
		return nil, false
	}
	if time.Since(createdAt) > s.opts.TTL {
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	s.touch(ctx, key)
	return deserializeVector(blob), true
}

// GetMulti returns cached vectors for the given texts, keyed by the
// original text. Only hits are present.
func (s *SQLite) GetMulti(ctx context.Context, texts []string, meta Meta) map[string][]float32 {
	defer s.maybeMaintain(ctx)

	hits := make(map[string][]float32)
	if len(texts) == 0 {
		return hits
	}

	keyToText := make(map[string]string, len(texts))
	placeholders := make([]string, 0, len(texts))
	args := make([]interface{}, 0, len(texts))
	for _, text := range texts {
		key := Key(text, meta)
		if _, dup := keyToText[key]; dup {
			continue
		}
		keyToText[key] = text
		placeholders = append(placeholders, "?")
		args = append(args, key)
	}

	query := `SELECT cache_key, vector, created_at FROM embedding_cache WHERE cache_key IN (` +
		strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("cache: bulk lookup failed, treating as all-miss: %v", err)
		s.misses.Add(int64(len(keyToText)))
		return hits
	}
	defer func() { _ = rows.Close() }()

	hitKeys := make([]string, 0, len(keyToText))
	for rows.Next() {
		var key string
		var blob []byte
		var createdAt time.Time
		if err := rows.Scan(&key, &blob, &createdAt); err != nil {
			log.Printf("cache: bulk scan failed: %v", err)
			continue
		}
		if time.Since(createdAt) > s.opts.TTL {
			continue
		}
		hits[keyToText[key]] = deserializeVector(blob)
		hitKeys = append(hitKeys, key)
	}
	if err := rows.Err(); err != nil {
		log.Printf("cache: bulk lookup failed mid-scan: %v", err)
	}

	s.hits.Add(int64(len(hitKeys)))
	s.misses.Add(int64(len(keyToText) - len(hitKeys)))
	for _, key := range hitKeys {
		s.touch(ctx, key)
	}
	return hits
}

// Set upserts a vector under its content address.
func (s *SQLite) Set(ctx context.Context, text string, vector []float32, meta Meta) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (cache_key, vector, dimension, provider, model, created_at, last_accessed_at, hit_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(cache_key) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at
	`, Key(text, meta), serializeVector(vector), len(vector), meta.Provider, meta.Model, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// SetMulti upserts several vectors in one transaction.
func (s *SQLite) SetMulti(ctx context.Context, vectors map[string][]float32, meta Meta) error {
	if len(vectors) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for text, vector := range vectors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO embedding_cache (cache_key, vector, dimension, provider, model, created_at, last_accessed_at, hit_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
			ON CONFLICT(cache_key) DO UPDATE SET
				vector = excluded.vector,
				dimension = excluded.dimension,
				created_at = excluded.created_at,
				last_accessed_at = excluded.last_accessed_at
		`, Key(text, meta), serializeVector(vector), len(vector), meta.Provider, meta.Model, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert cache entry: %w", err)
		}
	}
	return tx.Commit()
}

// Invalidate removes entries matching meta. Empty Provider/Model and
// zero Dimension act as wildcards.
func (s *SQLite) Invalidate(ctx context.Context, meta Meta) (int64, error) {
	conds := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if meta.Provider != "" {
		conds = append(conds, "provider = ?")
		args = append(args, meta.Provider)
	}
	if meta.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, meta.Model)
	}
	if meta.Dimension > 0 {
		conds = append(conds, "dimension = ?")
		args = append(args, meta.Dimension)
	}

	query := `DELETE FROM embedding_cache`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return result.RowsAffected()
}

// Clear removes every entry.
func (s *SQLite) Clear(ctx context.Context) (int64, error) {
	return s.Invalidate(ctx, Meta{})
}

// Stats reports entry count, hit rate and dimension/age aggregates.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	var avgDim sql.NullFloat64
	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(dimension), MIN(created_at), MAX(created_at)
		FROM embedding_cache
	`).Scan(&stats.Entries, &avgDim, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}
	if avgDim.Valid {
		stats.AvgDimension = avgDim.Float64
	}
	if oldest.Valid {
		stats.Oldest = oldest.Time
	}
	if newest.Valid {
		stats.Newest = newest.Time
	}
	return stats, nil
}

// touch refreshes access metadata on a hit. Best effort.
func (s *SQLite) touch(ctx context.Context, key string) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE embedding_cache SET last_accessed_at = ?, hit_count = hit_count + 1 WHERE cache_key = ?`,
		time.Now(), key)
	if err != nil {
		log.Printf("cache: failed to update access metadata: %v", err)
	}
}

// maybeMaintain runs the reclamation pass on a small fraction of
// requests instead of from a dedicated scheduler.
func (s *SQLite) maybeMaintain(ctx context.Context) {
	if s.randFloat() >= s.opts.MaintenanceProbability {
		return
	}
	if err := s.Maintain(ctx); err != nil {
		log.Printf("cache: maintenance pass failed: %v", err)
	}
}

// Maintain removes expired entries and enforces the entry cap by
// evicting least-recently-accessed entries first.
func (s *SQLite) Maintain(ctx context.Context) error {
	cutoff := time.Now().Add(-s.opts.TTL)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM embedding_cache WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to expire cache entries: %w", err)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count cache entries: %w", err)
	}
	if count <= s.opts.MaxEntries {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM embedding_cache WHERE cache_key IN (
			SELECT cache_key FROM embedding_cache
			ORDER BY last_accessed_at ASC
			LIMIT ?
		)
	`, count-s.opts.MaxEntries)
	if err != nil {
		return fmt.Errorf("failed to reclaim cache entries: %w", err)
	}
	return nil
}
