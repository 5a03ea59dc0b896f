// Package breaker implements a per-service circuit breaker.
//
// A breaker wraps calls to an external dependency and short-circuits
// them while the dependency is known-bad, bounding caller latency and
// preventing retry storms against a degraded service.
//
// State machine: Closed counts consecutive failures; reaching the
// threshold opens the circuit. While Open, calls are rejected with
// ErrOpen until the cool-down elapses, after which exactly one probe is
// allowed through (HalfOpen). A successful probe closes the circuit and
// resets counters; a failed probe reopens it with a doubled cool-down,
// capped at MaxCooldown.
//
// Usage:
//
//	reg := breaker.NewRegistry(breaker.DefaultConfig())
//	b := reg.Get("embedding_generation")
//	vec, err := breaker.Execute(ctx, b,
//	    func(ctx context.Context) ([]float32, error) {
//	        return client.Embed(ctx, text)
//	    },
//	    func(ctx context.Context, cause error) ([]float32, error) {
//	        return nil, degrade.Wrap(degrade.KindVectorUnavailable, "circuit open", cause)
//	    })
package breaker
