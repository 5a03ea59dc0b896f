package telemetry

import (
	"context"
	"log"
	"time"
)

// Outcome labels how a provider call ended.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeFailure      Outcome = "failure"
	OutcomePartial      Outcome = "partial"
	OutcomeShortCircuit Outcome = "short_circuit"
)

// CallEvent is one provider call: what was asked, what it cost, how it
// went.
type CallEvent struct {
	Operation    string
	Provider     string
	Model        string
	Items        int
	CharCount    int
	CostEstimate float64
	Duration     time.Duration
	Outcome      Outcome
	At           time.Time
}

// TransitionEvent is one circuit breaker state change.
type TransitionEvent struct {
	Service string
	From    string
	To      string
	At      time.Time
}

// Recorder consumes discrete telemetry events. Recording must never
// block or fail the operation being measured; implementations swallow
// their own errors.
type Recorder interface {
	RecordCall(ctx context.Context, event CallEvent)
	RecordTransition(ctx context.Context, event TransitionEvent)
}

// Nop discards all events.
type Nop struct{}

func (Nop) RecordCall(context.Context, CallEvent)             {}
func (Nop) RecordTransition(context.Context, TransitionEvent) {}

// Logger writes events to the standard logger (stderr).
type Logger struct{}

func (Logger) RecordCall(_ context.Context, e CallEvent) {
	log.Printf("telemetry: %s provider=%s model=%s items=%d cost=$%.6f duration=%s outcome=%s",
		e.Operation, e.Provider, e.Model, e.Items, e.CostEstimate, e.Duration, e.Outcome)
}

func (Logger) RecordTransition(_ context.Context, e TransitionEvent) {
	log.Printf("telemetry: circuit %s %s -> %s", e.Service, e.From, e.To)
}

// Per-1k-token USD rates for cost estimation. Unknown models cost zero;
// estimates are for budgeting visibility, not billing.
var costPer1kTokens = map[string]float64{
	"text-embedding-3-small": 0.00002,
	"text-embedding-3-large": 0.00013,
	"jina-embeddings-v3":     0.00002,
}

// EstimateCost approximates the USD cost of embedding charCount
// characters with the given model, using the rough 4-chars-per-token
// heuristic.
func EstimateCost(model string, charCount int) float64 {
	rate, ok := costPer1kTokens[model]
	if !ok {
		return 0
	}
	tokens := float64(charCount) / 4.0
	return tokens / 1000.0 * rate
}
