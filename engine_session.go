package authcore

import (
	"context"

	"github.com/nexusscholar/authcore/session"
)

// CreateSession persists a session for the given bearer token. The token
// itself is returned to the caller for the cookie; only its hash is stored.
func (e *Engine) CreateSession(ctx context.Context, token, userID string, flags session.Flags) (session.Session, error) {
	if e == nil {
		return session.Session{}, ErrEngineNotReady
	}
	s := session.Session{
		ID:                session.IDFromToken(token),
		UserID:            userID,
		ExpiresAt:         e.now().Add(e.config.Session.Lifetime),
		TwoFactorVerified: flags.TwoFactorVerified,
		OAuth2Verified:    flags.OAuth2Verified,
	}
	if err := e.store.CreateSession(ctx, s); err != nil {
		return session.Session{}, storeFailure("create session", err)
	}
	e.metricInc(MetricSessionCreated)
	return s, nil
}

// ValidateSessionToken resolves a bearer token to its session and user.
// Absent and expired sessions both yield ErrNotAuthenticated; expired rows
// are deleted on the way out. A session past half its lifetime is renewed
// for a full lifetime (sliding expiration); renewal still requires
// activity, so an idle session dies on schedule.
//
// Validation plus renewal is read-then-maybe-write: concurrent requests may
// both extend the same session. The extension is idempotent, so that is
// harmless and deliberately not treated as an error.
func (e *Engine) ValidateSessionToken(ctx context.Context, token string) (session.Session, User, error) {
	if e == nil {
		return session.Session{}, User{}, ErrEngineNotReady
	}
	if token == "" {
		return session.Session{}, User{}, ErrNotAuthenticated
	}

	id := session.IDFromToken(token)
	s, u, err := e.store.SessionWithUser(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return session.Session{}, User{}, ErrNotAuthenticated
		}
		return session.Session{}, User{}, storeFailure("load session", err)
	}

	now := e.now()
	if s.ExpiredAt(now) {
		if err := e.store.DeleteSession(ctx, id); err != nil && !isNotFound(err) {
			return session.Session{}, User{}, storeFailure("delete expired session", err)
		}
		e.metricInc(MetricSessionInvalidated)
		return session.Session{}, User{}, ErrNotAuthenticated
	}

	if !now.Before(s.ExpiresAt.Add(-e.config.Session.Lifetime / 2)) {
		s.ExpiresAt = now.Add(e.config.Session.Lifetime)
		if err := e.store.UpdateSessionExpiry(ctx, id, s.ExpiresAt); err != nil && !isNotFound(err) {
			return session.Session{}, User{}, storeFailure("renew session", err)
		}
		e.metricInc(MetricSessionRenewed)
	}

	return s, u, nil
}

// InvalidateSession hard-deletes one session. Deleting an already-absent
// session is not an error.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteSession(ctx, sessionID); err != nil && !isNotFound(err) {
		return storeFailure("delete session", err)
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// InvalidateUserSessions hard-deletes every session belonging to the user.
// Called on password change and account deletion so a stolen session dies
// with the credential.
func (e *Engine) InvalidateUserSessions(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.DeleteUserSessions(ctx, userID); err != nil {
		return storeFailure("delete user sessions", err)
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}

// SetSessionTwoFactorVerified flips the session's 2FA flag. One-way: there
// is no operation that clears it on a live session.
func (e *Engine) SetSessionTwoFactorVerified(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := e.store.SetSessionTwoFactorVerified(ctx, sessionID); err != nil {
		if isNotFound(err) {
			return ErrNotAuthenticated
		}
		return storeFailure("set session 2fa verified", err)
	}
	return nil
}
