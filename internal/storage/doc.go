// Package storage holds the SQLite plumbing shared by the cache, the
// deferred queue and the telemetry recorder: driver selection (C driver
// under cgo, pure Go otherwise), connection setup, and the versioned
// migration runner.
//
// Each consumer defines its own schema as a []Migration and applies it
// through ApplyMigrations; versions are tracked per database file in a
// schema_version table.
package storage
