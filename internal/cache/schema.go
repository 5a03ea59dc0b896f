package cache

import "github.com/dshills/embedgate/internal/storage"

// migrations defines the cache database schema, applied in order by the
// shared migration runner.
var migrations = []storage.Migration{
	{
		Version: "0.1.0",
		Up: `
CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS embedding_cache (
	cache_key TEXT PRIMARY KEY,
	vector BLOB NOT NULL,
	dimension INTEGER NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL,
	hit_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_embedding_cache_provider_model ON embedding_cache(provider, model);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_created_at ON embedding_cache(created_at);
CREATE INDEX IF NOT EXISTS idx_embedding_cache_last_accessed ON embedding_cache(last_accessed_at);
`,
		Down: `
DROP INDEX IF EXISTS idx_embedding_cache_last_accessed;
DROP INDEX IF EXISTS idx_embedding_cache_created_at;
DROP INDEX IF EXISTS idx_embedding_cache_provider_model;
DROP TABLE IF EXISTS embedding_cache;
DROP TABLE IF EXISTS schema_version;
`,
	},
}
