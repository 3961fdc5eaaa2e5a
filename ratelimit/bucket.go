package ratelimit

import (
	"sync"
	"time"
)

type refillingBucket struct {
	count      int
	refilledAt time.Time
}

// RefillingTokenBucket grants up to max tokens per key and refills one token
// every refill interval. New keys start with a full bucket.
type RefillingTokenBucket[K comparable] struct {
	mu             sync.Mutex
	max            int
	refillInterval time.Duration
	storage        map[K]*refillingBucket
	now            func() time.Time
}

// NewRefillingTokenBucket creates a bucket with the given capacity and
// refill interval.
func NewRefillingTokenBucket[K comparable](max int, refillInterval time.Duration) *RefillingTokenBucket[K] {
	return &RefillingTokenBucket[K]{
		max:            max,
		refillInterval: refillInterval,
		storage:        make(map[K]*refillingBucket),
		now:            time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (b *RefillingTokenBucket[K]) WithClock(now func() time.Time) *RefillingTokenBucket[K] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

func (b *RefillingTokenBucket[K]) refilled(bucket *refillingBucket, now time.Time) (int, int) {
	refill := int(now.Sub(bucket.refilledAt) / b.refillInterval)
	if refill < 0 {
		refill = 0
	}
	count := bucket.count + refill
	if count > b.max {
		count = b.max
	}
	return count, refill
}

// Check reports whether Consume(key, cost) would currently succeed. It never
// mutates bucket state.
func (b *RefillingTokenBucket[K]) Check(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.storage[key]
	if !ok {
		return cost <= b.max
	}
	count, _ := b.refilled(bucket, b.now())
	return count >= cost
}

// Consume takes cost tokens from the key's bucket. It returns false, without
// mutating state, when fewer than cost tokens are available.
func (b *RefillingTokenBucket[K]) Consume(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bucket, ok := b.storage[key]
	if !ok {
		if cost > b.max {
			return false
		}
		b.storage[key] = &refillingBucket{count: b.max - cost, refilledAt: now}
		return true
	}

	count, refill := b.refilled(bucket, now)
	if count < cost {
		return false
	}
	bucket.count = count - cost
	// Advance by whole intervals only, so partial refill progress is kept.
	bucket.refilledAt = bucket.refilledAt.Add(time.Duration(refill) * b.refillInterval)
	return true
}

type expiringBucket struct {
	count     int
	createdAt time.Time
}

// ExpiringTokenBucket grants a fixed allowance of max uses per key per
// window. Once the window elapses the allowance resets in full; tokens do
// not trickle back gradually. Models "N attempts per 30 minutes".
type ExpiringTokenBucket[K comparable] struct {
	mu        sync.Mutex
	max       int
	expiresIn time.Duration
	storage   map[K]*expiringBucket
	now       func() time.Time
}

// NewExpiringTokenBucket creates a bucket granting max uses per window.
func NewExpiringTokenBucket[K comparable](max int, expiresIn time.Duration) *ExpiringTokenBucket[K] {
	return &ExpiringTokenBucket[K]{
		max:       max,
		expiresIn: expiresIn,
		storage:   make(map[K]*expiringBucket),
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (b *ExpiringTokenBucket[K]) WithClock(now func() time.Time) *ExpiringTokenBucket[K] {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// Check reports whether Consume(key, cost) would currently succeed without
// mutating state.
func (b *ExpiringTokenBucket[K]) Check(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.storage[key]
	if !ok {
		return cost <= b.max
	}
	if b.now().Sub(bucket.createdAt) >= b.expiresIn {
		return cost <= b.max
	}
	return bucket.count >= cost
}

// Consume takes cost tokens from the key's current window, starting a fresh
// window when the previous one has expired.
func (b *ExpiringTokenBucket[K]) Consume(key K, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bucket, ok := b.storage[key]
	if !ok || now.Sub(bucket.createdAt) >= b.expiresIn {
		if cost > b.max {
			return false
		}
		b.storage[key] = &expiringBucket{count: b.max - cost, createdAt: now}
		return true
	}
	if bucket.count < cost {
		return false
	}
	bucket.count -= cost
	return true
}

// Reset clears the key's window, restoring the full allowance.
func (b *ExpiringTokenBucket[K]) Reset(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.storage, key)
}
