package recovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/dshills/embedgate/internal/degrade"
)

// Action is one idempotent recovery step. Actions side-effect only on
// external collaborators; the recovery service holds no long-lived
// resource of its own.
type Action func(ctx context.Context, f *degrade.Failure) error

// ServiceOptions tunes the attempt budget. Zero values take the
// defaults below.
type ServiceOptions struct {
	// MaxAttempts bounds recovery attempts per (kind, context) key
	// inside the rolling Window.
	MaxAttempts int
	Window      time.Duration

	// Now is an injectable clock for tests.
	Now func() time.Time
}

// DefaultServiceOptions returns the production recovery budget.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		MaxAttempts: 5,
		Window:      time.Hour,
	}
}

// Service looks up and runs recovery strategies for classified
// failures, bounding attempts per failure identity so a recurring
// failure cannot trigger unbounded healing churn. Safe for concurrent
// use.
type Service struct {
	opts ServiceOptions

	mu       sync.Mutex
	actions  map[Strategy]Action
	attempts map[string][]time.Time
}

// NewService creates a recovery service with no registered actions.
func NewService(opts ServiceOptions) *Service {
	def := DefaultServiceOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		opts:     opts,
		actions:  make(map[Strategy]Action),
		attempts: make(map[string][]time.Time),
	}
}

// Register binds an action to a strategy, replacing any previous one.
func (s *Service) Register(strategy Strategy, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[strategy] = action
}

// RecoveryID derives the stable identity of a failure occurrence:
// failures of the same kind in the same context share an attempt
// budget.
func RecoveryID(kind degrade.Kind, contextKey string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(contextKey))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// AttemptRecovery classifies the failure, checks the attempt budget and
// runs the registered strategy. Returns true only when the action ran
// and reported success. The attempt is recorded whether or not the
// action succeeds.
func (s *Service) AttemptRecovery(ctx context.Context, f *degrade.Failure, contextKey string) bool {
	if f == nil {
		return false
	}
	c := Classify(f)
	id := RecoveryID(f.Kind, contextKey)

	s.mu.Lock()
	action, registered := s.actions[c.Strategy]
	if !registered {
		s.mu.Unlock()
		log.Printf("recovery: no action registered for strategy %s (kind=%s)", c.Strategy, f.Kind)
		return false
	}
	if !s.recordAttemptLocked(id) {
		s.mu.Unlock()
		log.Printf("recovery: attempt budget exhausted for kind=%s context=%s", f.Kind, contextKey)
		return false
	}
	s.mu.Unlock()

	if err := action(ctx, f); err != nil {
		log.Printf("recovery: strategy %s failed for kind=%s: %v", c.Strategy, f.Kind, err)
		return false
	}
	log.Printf("recovery: strategy %s succeeded for kind=%s", c.Strategy, f.Kind)
	return true
}

// Attempts reports how many budget slots are used for a failure
// identity inside the current window.
func (s *Service) Attempts(kind degrade.Kind, contextKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := RecoveryID(kind, contextKey)
	s.pruneLocked(id)
	return len(s.attempts[id])
}

// recordAttemptLocked prunes the window and claims a slot. Caller must
// hold s.mu.
func (s *Service) recordAttemptLocked(id string) bool {
	s.pruneLocked(id)
	if len(s.attempts[id]) >= s.opts.MaxAttempts {
		return false
	}
	s.attempts[id] = append(s.attempts[id], s.opts.Now())
	return true
}

// pruneLocked drops attempts older than the rolling window. Caller
// must hold s.mu.
func (s *Service) pruneLocked(id string) {
	cutoff := s.opts.Now().Add(-s.opts.Window)
	kept := s.attempts[id][:0]
	for _, at := range s.attempts[id] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(s.attempts, id)
		return
	}
	s.attempts[id] = kept
}
