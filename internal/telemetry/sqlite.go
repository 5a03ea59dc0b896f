package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/dshills/embedgate/internal/storage"
)

// migrations defines the telemetry database schema.
var migrations = []storage.Migration{
	{
		Version: "0.1.0",
		Up: `
CREATE TABLE IF NOT EXISTS schema_version (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS call_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	items INTEGER NOT NULL,
	char_count INTEGER NOT NULL,
	cost_estimate REAL NOT NULL,
	duration_ms INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_events_operation ON call_events(operation);
CREATE INDEX IF NOT EXISTS idx_call_events_at ON call_events(at);

CREATE TABLE IF NOT EXISTS transition_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	service TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state TEXT NOT NULL,
	at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transition_events_service ON transition_events(service);
`,
		Down: `
DROP INDEX IF EXISTS idx_transition_events_service;
DROP TABLE IF EXISTS transition_events;
DROP INDEX IF EXISTS idx_call_events_at;
DROP INDEX IF EXISTS idx_call_events_operation;
DROP TABLE IF EXISTS call_events;
DROP TABLE IF EXISTS schema_version;
`,
	},
}

// SQLite persists telemetry events for the stats subcommand. Recording
// is best effort: failures are logged, never returned.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the telemetry database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}
	if err := storage.ApplyMigrations(context.Background(), db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply telemetry migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordCall(ctx context.Context, e CallEvent) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_events (operation, provider, model, items, char_count, cost_estimate, duration_ms, outcome, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Operation, e.Provider, e.Model, e.Items, e.CharCount, e.CostEstimate, e.Duration.Milliseconds(), string(e.Outcome), e.At)
	if err != nil {
		log.Printf("telemetry: failed to record call event: %v", err)
	}
}

func (s *SQLite) RecordTransition(ctx context.Context, e TransitionEvent) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transition_events (service, from_state, to_state, at)
		VALUES (?, ?, ?, ?)
	`, e.Service, e.From, e.To, e.At)
	if err != nil {
		log.Printf("telemetry: failed to record transition event: %v", err)
	}
}

// OperationSummary aggregates call events for one operation.
type OperationSummary struct {
	Operation     string
	Calls         int64
	Items         int64
	TotalCost     float64
	AvgDurationMs float64
	Failures      int64
}

// Summary aggregates call events since the given time, grouped by
// operation.
func (s *SQLite) Summary(ctx context.Context, since time.Time) ([]OperationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT operation, COUNT(*), SUM(items), SUM(cost_estimate), AVG(duration_ms),
		       SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END)
		FROM call_events
		WHERE at >= ?
		GROUP BY operation
		ORDER BY operation
	`, since)
	if err != nil {
		return nil, fmt.Errorf("telemetry summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]OperationSummary, 0)
	for rows.Next() {
		var s OperationSummary
		if err := rows.Scan(&s.Operation, &s.Calls, &s.Items, &s.TotalCost, &s.AvgDurationMs, &s.Failures); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
