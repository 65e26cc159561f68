package orchestrators

import (
	"sync"
	"time"
)

// KeyedMutex serializes work per string key. Submissions for the same
// (date, session) must not interleave; different keys run in parallel.
// Acquisition waits are bounded so a stuck submission cannot queue
// callers forever.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]chan struct{})}
}

// TryLock acquires the slot for key, waiting at most wait.
// PRE: key is non-empty, wait > 0
// POST: Returns true and holds the slot, or false after the wait expired
func (k *KeyedMutex) TryLock(key string, wait time.Duration) bool {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		k.slots[key] = slot
	}
	k.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return true
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case slot <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

// Unlock releases the slot for key.
// PRE: the caller holds the slot
// POST: The slot is free for the next waiter
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	k.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-slot:
	default:
	}
}
