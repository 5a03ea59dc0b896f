// Package recovery classifies degradation failures into handling
// policies, runs bounded self-healing actions, and answers health
// checks.
//
// Classification is a fixed table keyed by failure kind. Recovery
// actions are registered per strategy by the wiring code and must be
// idempotent; the service enforces a rolling attempt budget per
// (kind, context) identity so a recurring failure cannot trigger
// unbounded healing churn. Health reports run a small probe battery
// and are cached for a short window.
package recovery
