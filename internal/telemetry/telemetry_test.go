package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		charCount int
		want      float64
	}{
		{"openai small", "text-embedding-3-small", 4000, 0.00002},
		{"openai large", "text-embedding-3-large", 4000, 0.00013},
		{"unknown model is free", "local-embeddings", 4000, 0},
		{"zero chars", "text-embedding-3-small", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateCost(tt.model, tt.charCount), 1e-9)
		})
	}
}

func newTestRecorder(t *testing.T) *SQLite {
	t.Helper()
	rec, err := NewSQLite(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec
}

func TestSQLiteSummary(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.RecordCall(ctx, CallEvent{
		Operation:    "generate_embedding",
		Provider:     "openai",
		Model:        "text-embedding-3-small",
		Items:        1,
		CharCount:    400,
		CostEstimate: 0.000002,
		Duration:     120 * time.Millisecond,
		Outcome:      OutcomeSuccess,
	})
	rec.RecordCall(ctx, CallEvent{
		Operation:    "generate_embedding",
		Provider:     "openai",
		Model:        "text-embedding-3-small",
		Items:        1,
		CharCount:    400,
		CostEstimate: 0.000002,
		Duration:     80 * time.Millisecond,
		Outcome:      OutcomeFailure,
	})
	rec.RecordCall(ctx, CallEvent{
		Operation: "generate_batch",
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		Items:     40,
		Duration:  300 * time.Millisecond,
		Outcome:   OutcomePartial,
	})

	summaries, err := rec.Summary(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byOp := make(map[string]OperationSummary, len(summaries))
	for _, s := range summaries {
		byOp[s.Operation] = s
	}

	single := byOp["generate_embedding"]
	assert.Equal(t, int64(2), single.Calls)
	assert.Equal(t, int64(2), single.Items)
	assert.Equal(t, int64(1), single.Failures)
	assert.InDelta(t, 100, single.AvgDurationMs, 0.1)

	batch := byOp["generate_batch"]
	assert.Equal(t, int64(1), batch.Calls)
	assert.Equal(t, int64(40), batch.Items)
	assert.Zero(t, batch.Failures)
}

func TestSummaryWindow(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.RecordCall(ctx, CallEvent{
		Operation: "generate_embedding",
		Outcome:   OutcomeSuccess,
		At:        time.Now().Add(-2 * time.Hour),
	})

	summaries, err := rec.Summary(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, summaries)

	summaries, err = rec.Summary(ctx, time.Now().Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestRecordTransition(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	rec.RecordTransition(ctx, TransitionEvent{
		Service: "embedding_generation",
		From:    "closed",
		To:      "open",
	})

	var count int
	require.NoError(t, rec.db.QueryRow("SELECT COUNT(*) FROM transition_events").Scan(&count))
	assert.Equal(t, 1, count)
}
