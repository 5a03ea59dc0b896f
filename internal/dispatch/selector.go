package dispatch

import "sync"

// Mode is the chosen execution path for one request.
type Mode int

const (
	// ModeSync runs the request through the orchestrator immediately.
	ModeSync Mode = iota
	// ModeDeferred hands the request to the queue and returns at once.
	ModeDeferred
)

func (m Mode) String() string {
	if m == ModeDeferred {
		return "deferred"
	}
	return "sync"
}

// Selector decides sync versus deferred per request. Deferred is chosen
// only when it is globally enabled, the request carries the identifiers
// needed to resume it later, and the owning collection has not opted
// out. Safe for concurrent use.
type Selector struct {
	mu       sync.RWMutex
	enabled  bool
	optedOut map[string]struct{}
}

// NewSelector creates a selector. optedOut lists collection IDs that
// always run synchronously.
func NewSelector(enabled bool, optedOut []string) *Selector {
	s := &Selector{
		enabled:  enabled,
		optedOut: make(map[string]struct{}, len(optedOut)),
	}
	for _, id := range optedOut {
		s.optedOut[id] = struct{}{}
	}
	return s
}

// SetEnabled flips the global deferred switch.
func (s *Selector) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}

// OptOut pins a collection to synchronous execution.
func (s *Selector) OptOut(collectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optedOut[collectionID] = struct{}{}
}

// OptIn removes a collection's synchronous pin.
func (s *Selector) OptIn(collectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.optedOut, collectionID)
}

// Select picks the mode for a single-item request.
func (s *Selector) Select(req Request) Mode {
	return s.pick(req.ServerID, req.CollectionID, req.ItemID != "")
}

// SelectBatch picks the mode for a batch request.
func (s *Selector) SelectBatch(req BatchRequest) Mode {
	return s.pick(req.ServerID, req.CollectionID, len(req.Items) > 0)
}

func (s *Selector) pick(serverID, collectionID string, resumable bool) Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.enabled {
		return ModeSync
	}
	// Without the full identifier set the work cannot be resumed later.
	if serverID == "" || collectionID == "" || !resumable {
		return ModeSync
	}
	if _, out := s.optedOut[collectionID]; out {
		return ModeSync
	}
	return ModeDeferred
}
