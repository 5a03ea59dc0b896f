package queue

import "github.com/dshills/embedgate/internal/storage"

// migrations defines the deferred work queue schema.
var migrations = []storage.Migration{
	{
		Version: "0.1.0",
		Up: `
CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS work_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	server_id TEXT NOT NULL,
	collection_id TEXT NOT NULL,
	item_id TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	items_json TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	last_error TEXT NOT NULL DEFAULT '',
	claimed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_items_status_priority ON work_items(status, priority DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_work_items_claimed_at ON work_items(claimed_at);
`,
		Down: `
DROP INDEX IF EXISTS idx_work_items_claimed_at;
DROP INDEX IF EXISTS idx_work_items_status_priority;
DROP TABLE IF EXISTS work_items;
DROP TABLE IF EXISTS schema_version;
`,
	},
}
