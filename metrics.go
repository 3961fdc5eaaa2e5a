package authcore

import internalmetrics "github.com/nexusscholar/authcore/internal/metrics"

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricSignInSuccess counts successful primary authentications.
	MetricSignInSuccess = internalmetrics.MetricSignInSuccess
	// MetricSignInFailure counts rejected credentials.
	MetricSignInFailure = internalmetrics.MetricSignInFailure
	// MetricSignInThrottled counts sign-ins denied by the throttler.
	MetricSignInThrottled = internalmetrics.MetricSignInThrottled
	// MetricSessionCreated counts issued sessions.
	MetricSessionCreated = internalmetrics.MetricSessionCreated
	// MetricSessionRenewed counts sliding-expiration renewals.
	MetricSessionRenewed = internalmetrics.MetricSessionRenewed
	// MetricSessionInvalidated counts deleted sessions.
	MetricSessionInvalidated = internalmetrics.MetricSessionInvalidated
	// MetricTOTPSuccess counts accepted TOTP codes.
	MetricTOTPSuccess = internalmetrics.MetricTOTPSuccess
	// MetricTOTPFailure counts rejected TOTP codes.
	MetricTOTPFailure = internalmetrics.MetricTOTPFailure
	// MetricRecoveryCodeUsed counts successful recovery-code resets.
	MetricRecoveryCodeUsed = internalmetrics.MetricRecoveryCodeUsed
	// MetricRecoveryCodeFailed counts rejected recovery codes.
	MetricRecoveryCodeFailed = internalmetrics.MetricRecoveryCodeFailed
	// MetricRecoveryCodeConflict counts recovery-code double-spends.
	MetricRecoveryCodeConflict = internalmetrics.MetricRecoveryCodeConflict
	// MetricEmailVerificationSent counts issued verification challenges.
	MetricEmailVerificationSent = internalmetrics.MetricEmailVerificationSent
	// MetricEmailVerificationSuccess counts verified emails.
	MetricEmailVerificationSuccess = internalmetrics.MetricEmailVerificationSuccess
	// MetricEmailVerificationFailure counts rejected verification codes.
	MetricEmailVerificationFailure = internalmetrics.MetricEmailVerificationFailure
	// MetricEmailVerificationExpired counts auto-reissued challenges.
	MetricEmailVerificationExpired = internalmetrics.MetricEmailVerificationExpired
	// MetricPasswordResetRequested counts created reset sessions.
	MetricPasswordResetRequested = internalmetrics.MetricPasswordResetRequested
	// MetricPasswordResetCompleted counts completed password resets.
	MetricPasswordResetCompleted = internalmetrics.MetricPasswordResetCompleted
	// MetricPasswordResetFailure counts rejected reset steps.
	MetricPasswordResetFailure = internalmetrics.MetricPasswordResetFailure
	// MetricRateLimitHit counts operations denied by any budget.
	MetricRateLimitHit = internalmetrics.MetricRateLimitHit
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
