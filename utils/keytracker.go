package utils

import "sync"

// KeyTracker tracks natural keys seen within one extraction batch so the
// writer receives each slot at most once per cycle
type KeyTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewKeyTracker creates a new tracker
func NewKeyTracker() *KeyTracker {
	return &KeyTracker{seen: make(map[string]struct{})}
}

// Add returns true if the key is new (not seen before), false if duplicate
func (t *KeyTracker) Add(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.seen[key]; exists {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// Count returns the number of tracked keys
func (t *KeyTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
