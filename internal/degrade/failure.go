package degrade

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind identifies a class of degradation failure. The set of kinds is
// closed: every kind must have an entry in the classification table, and
// constructing a Failure with an unclassified kind panics.
type Kind string

const (
	// KindConnectionLost covers network-level failures reaching the
	// provider or the cache storage backend.
	KindConnectionLost Kind = "connection_lost"
	// KindMemoryExhausted is raised when batch processing exceeds
	// available memory headroom.
	KindMemoryExhausted Kind = "memory_exhausted"
	// KindVectorUnavailable means no embedding capability is usable at
	// all; callers should continue with keyword-only search.
	KindVectorUnavailable Kind = "vector_unavailable"
	// KindRateLimited covers provider 429 responses.
	KindRateLimited Kind = "rate_limited"
	// KindCacheDegraded means the cache backend is failing; generation
	// continues uncached.
	KindCacheDegraded Kind = "cache_degraded"
	// KindConfigInvalid covers bad credentials or misconfiguration.
	KindConfigInvalid Kind = "config_invalid"
	// KindPartialBatch means some items of a batch embedded and others
	// did not.
	KindPartialBatch Kind = "partial_batch"
)

// Severity orders failures by how much of the system they impact.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Fallback names the degradation strategy the caller should apply.
type Fallback string

const (
	FallbackReconnect      Fallback = "reconnect"
	FallbackReduceBatch    Fallback = "reduce_batch_size"
	FallbackKeywordSearch  Fallback = "keyword_search"
	FallbackDelayedRetry   Fallback = "delayed_retry"
	FallbackBypassCache    Fallback = "bypass_cache"
	FallbackDisableFeature Fallback = "disable_feature"
	FallbackPartialResult  Fallback = "partial_result"
)

// Classification is the fixed mapping from kind to handling policy.
type Classification struct {
	Severity  Severity
	Retryable bool
	Fallback  Fallback
}

// table is the closed classification table. New kinds must be added here
// explicitly; there is no default row.
var table = map[Kind]Classification{
	KindConnectionLost:    {SeverityCritical, true, FallbackReconnect},
	KindMemoryExhausted:   {SeverityHigh, false, FallbackReduceBatch},
	KindVectorUnavailable: {SeverityMedium, false, FallbackKeywordSearch},
	KindRateLimited:       {SeverityLow, true, FallbackDelayedRetry},
	KindCacheDegraded:     {SeverityLow, false, FallbackBypassCache},
	KindConfigInvalid:     {SeverityCritical, false, FallbackDisableFeature},
	KindPartialBatch:      {SeverityMedium, true, FallbackPartialResult},
}

// Classify returns the classification for a kind. The second return is
// false only for kinds outside the closed table.
func Classify(kind Kind) (Classification, bool) {
	c, ok := table[kind]
	return c, ok
}

// Kinds returns every classified kind. Useful for exhaustive tests.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(table))
	for k := range table {
		kinds = append(kinds, k)
	}
	return kinds
}

// Failure is a typed degradation error. It is immutable once constructed;
// WithContext returns a copy. Severity, Retryable and Fallback are derived
// from the classification table, never set by hand.
type Failure struct {
	Kind      Kind
	Severity  Severity
	Retryable bool
	Fallback  Fallback
	// Hint is a short machine-readable string for the messaging layer.
	// The engine never renders user-facing text itself.
	Hint    string
	Context map[string]any
	cause   error
}

// New constructs a Failure for a classified kind. Panics on an
// unclassified kind: that is a programming error, not a runtime state.
func New(kind Kind, hint string) *Failure {
	c, ok := table[kind]
	if !ok {
		panic(fmt.Sprintf("degrade: unclassified failure kind %q", kind))
	}
	return &Failure{
		Kind:      kind,
		Severity:  c.Severity,
		Retryable: c.Retryable,
		Fallback:  c.Fallback,
		Hint:      hint,
	}
}

// Wrap constructs a Failure carrying an underlying cause.
func Wrap(kind Kind, hint string, cause error) *Failure {
	f := New(kind, hint)
	f.cause = cause
	return f
}

// WithContext returns a copy of the failure with an added context entry.
func (f *Failure) WithContext(key string, value any) *Failure {
	cp := *f
	cp.Context = make(map[string]any, len(f.Context)+1)
	for k, v := range f.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s (%s): %v", f.Kind, f.Severity, f.cause)
	}
	return fmt.Sprintf("%s (%s): %s", f.Kind, f.Severity, f.Hint)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

// Is makes errors.Is match on kind, so callers can compare against a
// template failure without caring about hint or context.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if errors.As(target, &other) {
		return f.Kind == other.Kind
	}
	return false
}

// FromError classifies an arbitrary error into a Failure. Already-typed
// failures pass through unchanged. Unrecognized errors are treated as
// lost connections, the retryable catch-all for provider I/O.
func FromError(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(KindConnectionLost, "provider call timed out", err)
	case errors.Is(err, context.Canceled):
		return Wrap(KindConnectionLost, "provider call canceled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindConnectionLost, "network error reaching provider", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return Wrap(KindRateLimited, "provider rate limited", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "api key not set"):
		return Wrap(KindConfigInvalid, "provider credentials rejected", err)
	case strings.Contains(msg, "out of memory") || strings.Contains(msg, "cannot allocate"):
		return Wrap(KindMemoryExhausted, "memory exhausted during batch", err)
	}

	return Wrap(KindConnectionLost, "provider call failed", err)
}

// IsRetryable reports whether err is worth another attempt. Untyped
// errors are classified first.
func IsRetryable(err error) bool {
	f := FromError(err)
	if f == nil {
		return false
	}
	return f.Retryable
}
