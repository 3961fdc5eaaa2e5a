package authcore

import (
	"context"
	"crypto/subtle"

	"github.com/nexusscholar/authcore/otp"
	"github.com/nexusscholar/authcore/session"
)

// ForgotPassword starts a password reset. For a known email it creates a
// reset session, mails the verification code, and returns the reset token.
// For an unknown email it returns (nil, nil): the transport layer shows the
// same "check your inbox" page either way, so the response does not leak
// account existence. Both the per-IP and the per-email request budgets are
// consumed before the lookup.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (*ResetTicket, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}

	if ip := clientIPFromContext(ctx); ip != "" && !e.resetIPBucket.Consume(ip, 1) {
		e.metricInc(MetricRateLimitHit)
		return nil, ErrRateLimited
	}
	if !e.resetRequestBucket.Consume(email, 1) {
		e.metricInc(MetricRateLimitHit)
		return nil, ErrRateLimited
	}

	u, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, storeFailure("load user", err)
	}

	if err := e.store.DeleteUserResetSessions(ctx, u.ID); err != nil {
		return nil, storeFailure("delete reset sessions", err)
	}

	token, err := session.GenerateToken()
	if err != nil {
		return nil, err
	}
	code, err := otp.NewCode(e.config.PasswordReset.CodeDigits)
	if err != nil {
		return nil, err
	}
	rs := session.ResetSession{
		ID:        session.IDFromToken(token),
		UserID:    u.ID,
		Email:     u.Email,
		Code:      code,
		ExpiresAt: e.now().Add(e.config.PasswordReset.TTL),
	}
	if err := e.store.CreateResetSession(ctx, rs); err != nil {
		return nil, storeFailure("create reset session", err)
	}

	if err := e.sender.Send(ctx, u.Email, EmailPasswordResetCode, code); err != nil {
		return nil, err
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditPasswordResetRequest, u.ID, rs.ID, true, nil)
	return &ResetTicket{Token: token, ExpiresAt: rs.ExpiresAt}, nil
}

// validateResetToken resolves a reset token, deleting expired sessions on
// the way out. Absent and expired both map to ErrNotAuthenticated.
func (e *Engine) validateResetToken(ctx context.Context, token string) (session.ResetSession, User, error) {
	if token == "" {
		return session.ResetSession{}, User{}, ErrNotAuthenticated
	}
	id := session.IDFromToken(token)
	rs, u, err := e.store.ResetSessionWithUser(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return session.ResetSession{}, User{}, ErrNotAuthenticated
		}
		return session.ResetSession{}, User{}, storeFailure("load reset session", err)
	}
	if rs.ExpiredAt(e.now()) {
		if err := e.store.DeleteUserResetSessions(ctx, rs.UserID); err != nil && !isNotFound(err) {
			return session.ResetSession{}, User{}, storeFailure("delete reset sessions", err)
		}
		return session.ResetSession{}, User{}, ErrNotAuthenticated
	}
	return rs, u, nil
}

// ValidateResetToken exposes reset-session lookup to the transport layer so
// each step of the flow can route the user to the right page.
func (e *Engine) ValidateResetToken(ctx context.Context, token string) (session.ResetSession, User, error) {
	if e == nil {
		return session.ResetSession{}, User{}, ErrEngineNotReady
	}
	return e.validateResetToken(ctx, token)
}

// VerifyResetEmailCode checks the emailed code against the reset session.
// Success proves control of the inbox: the reset session advances, and if
// the session's address is still the account's address the account itself
// becomes verified too.
func (e *Engine) VerifyResetEmailCode(ctx context.Context, token, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	rs, u, err := e.validateResetToken(ctx, token)
	if err != nil {
		return err
	}
	if rs.EmailVerified {
		return ErrForbidden
	}

	if !e.resetCodeBucket.Consume(rs.UserID, 1) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}

	if subtle.ConstantTimeCompare([]byte(rs.Code), []byte(code)) != 1 {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditPasswordReset, rs.UserID, rs.ID, false, ErrInvalidCredential)
		return ErrInvalidCredential
	}

	if err := e.store.SetResetSessionEmailVerified(ctx, rs.ID); err != nil {
		return storeFailure("set reset session email verified", err)
	}
	if u.Email == rs.Email && !u.EmailVerified {
		if err := e.store.SetEmailVerified(ctx, rs.UserID, rs.Email); err != nil {
			return storeFailure("set email verified", err)
		}
	}
	e.resetCodeBucket.Reset(rs.UserID)
	return nil
}

// VerifyResetTOTP completes the second-factor step of a reset with a TOTP
// code. Only reachable once the email step has passed, and only for
// accounts with TOTP enrolled.
func (e *Engine) VerifyResetTOTP(ctx context.Context, token, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	rs, u, err := e.validateResetToken(ctx, token)
	if err != nil {
		return err
	}
	if !rs.EmailVerified || rs.TwoFactorVerified || !u.Registered2FA {
		return ErrForbidden
	}

	if !e.totpBucket.Consume(rs.UserID, 1) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}

	encrypted, err := e.store.TOTPKey(ctx, rs.UserID)
	if err != nil {
		return storeFailure("load totp key", err)
	}
	if encrypted == "" {
		return ErrForbidden
	}
	key, err := e.codec.Decrypt(encrypted)
	if err != nil {
		return err
	}
	if !otp.Verify(key, e.config.TOTP.Period, e.config.TOTP.Digits, code, e.now()) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditTOTPVerify, rs.UserID, rs.ID, false, ErrInvalidCredential)
		return ErrInvalidCredential
	}
	e.totpBucket.Reset(rs.UserID)
	e.metricInc(MetricTOTPSuccess)

	if err := e.store.SetResetSessionTwoFactorVerified(ctx, rs.ID); err != nil {
		return storeFailure("set reset session 2fa verified", err)
	}
	return nil
}

// VerifyResetRecoveryCode completes the second-factor step of a reset with
// the account's recovery code. On success the code is rotated and the
// account's 2FA enrollment is cleared, exactly as in
// [Engine.ResetTwoFactorWithRecoveryCode], which also clears the
// Registered2FA gate the reset session would otherwise still face.
func (e *Engine) VerifyResetRecoveryCode(ctx context.Context, token, code string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	rs, u, err := e.validateResetToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !rs.EmailVerified || rs.TwoFactorVerified || !u.Registered2FA {
		return "", ErrForbidden
	}

	newCode, err := e.resetTwoFactor(ctx, rs.UserID, code)
	if err != nil {
		return "", err
	}

	if err := e.store.SetResetSessionTwoFactorVerified(ctx, rs.ID); err != nil {
		return "", storeFailure("set reset session 2fa verified", err)
	}
	return newCode, nil
}

// ResetPassword finishes the reset: the session must have passed the email
// step and, for 2FA accounts, the second-factor step. All of the user's
// sessions and reset sessions are destroyed, then one fresh session is
// issued carrying the reset session's two-factor standing.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (SignInResult, error) {
	if e == nil {
		return SignInResult{}, ErrEngineNotReady
	}
	rs, u, err := e.validateResetToken(ctx, token)
	if err != nil {
		return SignInResult{}, err
	}
	if !rs.EmailVerified {
		return SignInResult{}, ErrForbidden
	}
	if u.Registered2FA && !rs.TwoFactorVerified {
		return SignInResult{}, ErrForbidden
	}
	if len(newPassword) < e.config.Password.MinLength {
		return SignInResult{}, ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return SignInResult{}, err
	}

	if err := e.store.DeleteUserResetSessions(ctx, u.ID); err != nil {
		return SignInResult{}, storeFailure("delete reset sessions", err)
	}
	if err := e.InvalidateUserSessions(ctx, u.ID); err != nil {
		return SignInResult{}, err
	}
	if err := e.store.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return SignInResult{}, storeFailure("update password hash", err)
	}

	newToken, err := session.GenerateToken()
	if err != nil {
		return SignInResult{}, err
	}
	s, err := e.CreateSession(ctx, newToken, u.ID, session.Flags{
		TwoFactorVerified: rs.TwoFactorVerified,
	})
	if err != nil {
		return SignInResult{}, err
	}

	e.metricInc(MetricPasswordResetCompleted)
	e.emitAudit(ctx, auditPasswordReset, u.ID, s.ID, true, nil)
	return SignInResult{User: u, Token: newToken, Session: s}, nil
}
