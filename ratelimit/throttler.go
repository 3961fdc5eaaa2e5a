package ratelimit

import (
	"sync"
	"time"
)

type throttleCounter struct {
	index     int
	updatedAt time.Time
}

// Throttler enforces an escalating per-key cooldown between attempts,
// indexed into a fixed backoff table. A denied Consume escalates the
// required cooldown (capped at the last table entry), so hammering a key
// only pushes the next permitted attempt further out. Reset clears the key
// back to the initial cooldown after a successful operation.
type Throttler[K comparable] struct {
	mu       sync.Mutex
	timeouts []time.Duration
	storage  map[K]*throttleCounter
	now      func() time.Time
}

// NewThrottler creates a throttler over the given cooldown table. The table
// must be non-empty and is not copied.
func NewThrottler[K comparable](timeouts []time.Duration) *Throttler[K] {
	return &Throttler[K]{
		timeouts: timeouts,
		storage:  make(map[K]*throttleCounter),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *Throttler[K]) WithClock(now func() time.Time) *Throttler[K] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	return t
}

// Consume records an attempt for the key. The first attempt always succeeds.
// Subsequent attempts succeed only once the current cooldown has elapsed
// since the last permitted attempt; a denied attempt escalates the cooldown.
func (t *Throttler[K]) Consume(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	counter, ok := t.storage[key]
	if !ok {
		t.storage[key] = &throttleCounter{index: 0, updatedAt: now}
		return true
	}
	if now.Sub(counter.updatedAt) < t.timeouts[counter.index] {
		if counter.index < len(t.timeouts)-1 {
			counter.index++
		}
		return false
	}
	counter.updatedAt = now
	return true
}

// Reset clears the key's throttle state.
func (t *Throttler[K]) Reset(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.storage, key)
}
