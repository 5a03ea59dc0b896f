// Package orchestrator is the resilient façade between callers and the
// embedding provider. It layers, in order: blank-input short circuit,
// content-addressed cache lookup, single-flight deduplication, circuit
// breaking per operation, and retry with exponential backoff plus
// jitter for retryable failures only.
//
// Batch requests are deduplicated against the cache, split into
// sub-batches under configurable item and character caps, and accounted
// per index in a BatchOutcome. A failed sub-batch optionally degrades
// to per-item calls with a pacing delay. Successful vectors are cached
// as soon as they arrive.
//
// Callers never see raw provider errors. Anything that survives the
// resilience layers surfaces as a degrade.Failure so the caller can
// pick a fallback path instead of aborting.
package orchestrator
