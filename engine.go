package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/nexusscholar/authcore/internal/audit"
	internalmetrics "github.com/nexusscholar/authcore/internal/metrics"
	"github.com/nexusscholar/authcore/password"
	"github.com/nexusscholar/authcore/ratelimit"
	"github.com/nexusscholar/authcore/secrets"
)

// Engine is the session and credential lifecycle engine. Build one through
// [Builder]; all methods are then safe for concurrent use.
type Engine struct {
	config  Config
	store   Store
	sender  EmailSender
	codec   *secrets.Codec
	hasher  *password.Hasher
	metrics *internalmetrics.Metrics
	audit   *internalaudit.Dispatcher
	now     func() time.Time

	globalBucket       *ratelimit.RefillingTokenBucket[string]
	globalShared       *ratelimit.FixedWindowLimiter
	signInThrottler    *ratelimit.Throttler[string]
	totpBucket         *ratelimit.ExpiringTokenBucket[string]
	recoveryBucket     *ratelimit.ExpiringTokenBucket[string]
	sendEmailBucket    *ratelimit.ExpiringTokenBucket[string]
	verifyEmailBucket  *ratelimit.ExpiringTokenBucket[string]
	resetIPBucket      *ratelimit.RefillingTokenBucket[string]
	resetRequestBucket *ratelimit.ExpiringTokenBucket[string]
	resetCodeBucket    *ratelimit.ExpiringTokenBucket[string]
}

// Close flushes and stops the audit dispatcher. The engine must not be used
// after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot returns a deep copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AllowRequest consumes the global per-IP request budget: cost 1 for reads,
// 3 for mutations, by convention. Requests without a client IP in ctx pass
// unthrottled. Call it before any flow method.
func (e *Engine) AllowRequest(ctx context.Context, cost int) error {
	if e == nil {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return nil
	}

	if e.globalShared != nil {
		ok, err := e.globalShared.Consume(ctx, ip, cost)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !ok {
			e.metricInc(MetricRateLimitHit)
			return ErrRateLimited
		}
		return nil
	}

	if !e.globalBucket.Consume(ip, cost) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

const (
	auditSignUp               = "sign_up"
	auditSignIn               = "sign_in"
	auditOAuthSignIn          = "oauth_sign_in"
	auditSignOut              = "sign_out"
	auditPasswordChange       = "password_change"
	auditTOTPSetup            = "totp_setup"
	auditTOTPVerify           = "totp_verify"
	auditTwoFactorReset       = "two_factor_reset"
	auditVerificationSent     = "email_verification_sent"
	auditEmailVerified        = "email_verified"
	auditPasswordResetRequest = "password_reset_request"
	auditPasswordReset        = "password_reset"
)

func (e *Engine) emitAudit(ctx context.Context, action, userID, sessionID string, success bool, cause error) {
	if e == nil || e.audit == nil {
		return
	}
	ev := internalaudit.NewEvent(action)
	ev.UserID = userID
	ev.SessionID = sessionID
	ev.IP = clientIPFromContext(ctx)
	ev.Success = success
	if cause != nil {
		ev.Error = cause.Error()
	}
	e.audit.Emit(ctx, ev)
}

// storeFailure wraps unexpected store errors. ErrNotFound must be handled
// by the caller before reaching here.
func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// checkEmail applies the syntactic policy for untrusted email input:
// contains @ and a dot in the domain, shorter than 256 bytes.
func checkEmail(email string) error {
	if email == "" || len(email) >= 256 {
		return ErrInvalidInput
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidInput
	}
	if !strings.Contains(email[at+1:], ".") {
		return ErrInvalidInput
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrEmailInUse) || errors.Is(err, ErrConflict)
}
