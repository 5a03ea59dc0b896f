package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned to the fallback when the circuit rejects a call
// without attempting the primary function.
var ErrOpen = errors.New("circuit open")

// State is the circuit position. Transitions are total functions of
// (current state, call outcome, elapsed time); concurrent callers only
// ever observe them under the breaker mutex.
type State int

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls immediately until the cool-down elapses.
	StateOpen
	// StateHalfOpen allows exactly one probe call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls a breaker's thresholds and timing.
type Config struct {
	// FailureThreshold is the count of consecutive failures that opens
	// the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before allowing a
	// probe. Doubles after each failed probe, capped at MaxCooldown.
	Cooldown time.Duration
	// MaxCooldown caps cool-down escalation. Zero means 10x Cooldown.
	MaxCooldown time.Duration
	// OnStateChange is invoked (outside the lock) on every transition.
	OnStateChange func(name string, from, to State)

	// Now is an injectable clock for tests. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the thresholds used for provider circuits.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a single named circuit. Create one per logical external
// service; independent services must never share a breaker.
type Breaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	cooldown time.Duration
	// probing is true while the single HalfOpen probe is in flight.
	probing bool
}

// New creates a breaker named for the service it guards.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 10 * cfg.Cooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:     name,
		cfg:      cfg,
		state:    StateClosed,
		cooldown: cfg.Cooldown,
	}
}

// Name returns the guarded service name.
func (b *Breaker) Name() string { return b.name }

// Snapshot reports the current state for health checks and stats.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
	NextProbeAt         time.Time
}

// Snapshot returns a consistent view of the breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Name:                b.name,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
	if b.state == StateOpen {
		s.NextProbeAt = b.openedAt.Add(b.cooldown)
	}
	return s
}

// allow decides whether a call may proceed. probe is true when the call
// is the single HalfOpen probe.
func (b *Breaker) allow() (proceed, probe bool) {
	b.mu.Lock()
	var transition func()
	defer func() {
		b.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		transition = b.setStateLocked(StateHalfOpen)
		b.probing = true
		return true, true
	case StateHalfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, false
}

// record folds a call outcome back into the state machine.
func (b *Breaker) record(success, probe bool) {
	b.mu.Lock()
	var transition func()
	defer func() {
		b.mu.Unlock()
		if transition != nil {
			transition()
		}
	}()

	if success {
		b.failures = 0
		b.probing = false
		b.cooldown = b.cfg.Cooldown
		if b.state != StateClosed {
			transition = b.setStateLocked(StateClosed)
		}
		return
	}

	if probe {
		// Failed probe reopens with a longer cool-down.
		b.probing = false
		b.openedAt = b.cfg.Now()
		b.cooldown = min(b.cooldown*2, b.cfg.MaxCooldown)
		transition = b.setStateLocked(StateOpen)
		return
	}

	b.failures++
	if b.state == StateClosed && b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.cfg.Now()
		b.cooldown = b.cfg.Cooldown
		transition = b.setStateLocked(StateOpen)
	}
}

// setStateLocked changes state and returns the notification to run once
// the lock is released. Caller must hold b.mu.
func (b *Breaker) setStateLocked(to State) func() {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange == nil || from == to {
		return nil
	}
	cb := b.cfg.OnStateChange
	return func() { cb(b.name, from, to) }
}

// Execute routes a call through the breaker. When the circuit is open
// the fallback runs with ErrOpen and the primary is never invoked; when
// the primary fails, the outcome is recorded and the fallback runs with
// the primary's error. A nil fallback re-raises.
func Execute[T any](ctx context.Context, b *Breaker, primary func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	proceed, probe := b.allow()
	if !proceed {
		if fallback == nil {
			var zero T
			return zero, ErrOpen
		}
		return fallback(ctx, ErrOpen)
	}

	result, err := primary(ctx)
	b.record(err == nil, probe)
	if err == nil {
		return result, nil
	}
	if fallback == nil {
		var zero T
		return zero, err
	}
	return fallback(ctx, err)
}
