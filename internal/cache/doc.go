// Package cache provides the content-addressed embedding cache.
//
// Entries are keyed by a stable hash over normalized text plus the
// provider, model and dimension it was generated under, so identical
// requests always collide into one entry and a configuration change
// never serves a stale vector. Writes are upserts; two backends satisfy
// the Store contract:
//
//   - SQLite: durable, with TTL expiry, a probabilistic maintenance pass
//     and an LRU-ordered entry cap. The driver is selected at build time
//     (mattn/go-sqlite3 under cgo, modernc.org/sqlite otherwise).
//   - Memory: a process-local expiring LRU for cacheless deployments
//     and tests.
//
// Lookups never propagate backend failures. A broken cache degrades to
// "always miss"; embedding generation carries on uncached.
//
//	store, err := cache.NewSQLite(dbPath, cache.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	meta := cache.Meta{Provider: "openai", Model: "text-embedding-3-small", Dimension: 1536}
//	if vec, ok := store.Get(ctx, text, meta); ok {
//	    return vec
//	}
package cache
