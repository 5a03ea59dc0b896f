package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/dshills/embedgate/internal/cache"
)

// InFlight tracks texts currently being embedded, keyed by content
// hash. It prevents two concurrent requests for identical text from
// paying the provider twice: the second claim fails and the caller
// skips the work.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewInFlight creates an empty claim set.
func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[string]struct{})}
}

// HashText derives the claim key for a text. Whitespace-normalized so
// trivially reformatted duplicates collide.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(cache.NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// Acquire claims a key. On success the returned release function must
// be called exactly when processing ends; calling it more than once is
// harmless. ok is false when the key is already claimed.
func (f *InFlight) Acquire(key string) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return nil, false
	}
	f.keys[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.keys, key)
		})
	}, true
}

// Len reports how many claims are outstanding.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}
