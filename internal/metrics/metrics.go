// Package metrics provides lock-free in-process counters for engine
// observability. Counters live in cache-line-padded slots and are bumped
// with atomic adds; the write path is allocation-free.
//
// This package owns storage and snapshots only. It performs no I/O and
// imports no sibling package.
package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID uint16

const (
	// MetricSignInSuccess counts successful primary authentications.
	MetricSignInSuccess MetricID = iota
	// MetricSignInFailure counts rejected credentials.
	MetricSignInFailure
	// MetricSignInThrottled counts sign-ins denied by the throttler.
	MetricSignInThrottled
	// MetricSessionCreated counts issued sessions.
	MetricSessionCreated
	// MetricSessionRenewed counts sliding-expiration renewals.
	MetricSessionRenewed
	// MetricSessionInvalidated counts deleted sessions.
	MetricSessionInvalidated
	// MetricTOTPSuccess counts accepted TOTP codes.
	MetricTOTPSuccess
	// MetricTOTPFailure counts rejected TOTP codes.
	MetricTOTPFailure
	// MetricRecoveryCodeUsed counts successful recovery-code resets.
	MetricRecoveryCodeUsed
	// MetricRecoveryCodeFailed counts rejected recovery codes.
	MetricRecoveryCodeFailed
	// MetricRecoveryCodeConflict counts double-spend conflicts.
	MetricRecoveryCodeConflict
	// MetricEmailVerificationSent counts issued verification challenges.
	MetricEmailVerificationSent
	// MetricEmailVerificationSuccess counts verified emails.
	MetricEmailVerificationSuccess
	// MetricEmailVerificationFailure counts rejected verification codes.
	MetricEmailVerificationFailure
	// MetricEmailVerificationExpired counts auto-reissued challenges.
	MetricEmailVerificationExpired
	// MetricPasswordResetRequested counts created reset sessions.
	MetricPasswordResetRequested
	// MetricPasswordResetCompleted counts completed password resets.
	MetricPasswordResetCompleted
	// MetricPasswordResetFailure counts rejected reset steps.
	MetricPasswordResetFailure
	// MetricRateLimitHit counts operations denied by any budget.
	MetricRateLimitHit

	// MetricIDCount is the number of defined metrics.
	MetricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config controls metric collection.
type Config struct {
	Enabled bool
}

// Metrics holds the counter slots. A nil or disabled Metrics is a no-op.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// New creates a Metrics instance.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc bumps one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= MetricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot deep-copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{Counters: make(map[MetricID]uint64, int(MetricIDCount))}
	if m == nil || !m.enabled {
		return s
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
