package authcore

import (
	"context"
	"crypto/subtle"

	"github.com/nexusscholar/authcore/otp"
	"github.com/nexusscholar/authcore/session"
)

// issueVerification replaces the user's verification challenge with a fresh
// one bound to email and mails the code. At most one challenge exists per
// user, so requesting a new one invalidates any outstanding code.
func (e *Engine) issueVerification(ctx context.Context, userID, email string) (EmailVerificationRequest, error) {
	if err := e.store.DeleteUserVerificationRequests(ctx, userID); err != nil {
		return EmailVerificationRequest{}, storeFailure("delete verification requests", err)
	}

	id, err := session.GenerateToken()
	if err != nil {
		return EmailVerificationRequest{}, err
	}
	code, err := otp.NewCode(e.config.EmailVerification.CodeDigits)
	if err != nil {
		return EmailVerificationRequest{}, err
	}

	r := EmailVerificationRequest{
		ID:        id,
		UserID:    userID,
		Code:      code,
		Email:     email,
		ExpiresAt: e.now().Add(e.config.EmailVerification.TTL),
	}
	if err := e.store.CreateVerificationRequest(ctx, r); err != nil {
		return EmailVerificationRequest{}, storeFailure("create verification request", err)
	}

	if err := e.sender.Send(ctx, email, EmailVerificationCode, code); err != nil {
		return EmailVerificationRequest{}, err
	}
	e.metricInc(MetricEmailVerificationSent)
	e.emitAudit(ctx, auditVerificationSent, userID, "", true, nil)
	return r, nil
}

// RequestEmailVerification issues a fresh challenge for the caller's
// current (still unverified) address, subject to the per-user send budget.
func (e *Engine) RequestEmailVerification(ctx context.Context, token string) (EmailVerificationRequest, error) {
	if e == nil {
		return EmailVerificationRequest{}, ErrEngineNotReady
	}
	_, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return EmailVerificationRequest{}, err
	}
	if !e.sendEmailBucket.Consume(u.ID, 1) {
		e.metricInc(MetricRateLimitHit)
		return EmailVerificationRequest{}, ErrRateLimited
	}
	return e.issueVerification(ctx, u.ID, u.Email)
}

// UpdateEmail starts an email change: the new address must be unused, and a
// challenge is mailed to it. The account's address only changes once the
// code is confirmed through [Engine.VerifyEmail]. On accounts with TOTP
// enrolled the session must be two-factor verified first.
func (e *Engine) UpdateEmail(ctx context.Context, token, newEmail string) (EmailVerificationRequest, error) {
	if e == nil {
		return EmailVerificationRequest{}, ErrEngineNotReady
	}
	s, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return EmailVerificationRequest{}, err
	}
	if u.Registered2FA && !s.TwoFactorVerified {
		return EmailVerificationRequest{}, ErrForbidden
	}
	newEmail = normalizeEmail(newEmail)
	if err := checkEmail(newEmail); err != nil {
		return EmailVerificationRequest{}, err
	}
	if _, err := e.store.UserByEmail(ctx, newEmail); err == nil {
		return EmailVerificationRequest{}, ErrEmailInUse
	} else if !isNotFound(err) {
		return EmailVerificationRequest{}, storeFailure("check email", err)
	}
	if !e.sendEmailBucket.Consume(u.ID, 1) {
		e.metricInc(MetricRateLimitHit)
		return EmailVerificationRequest{}, ErrRateLimited
	}
	return e.issueVerification(ctx, u.ID, newEmail)
}

// VerifyEmail checks a challenge code. An expired challenge is replaced and
// the replacement returned alongside ErrExpired so the caller can tell the
// user a new code went out. A correct code marks the account verified at
// the challenge's address and, because the password-reset flow anchors on a
// verified address, deletes the user's outstanding reset sessions.
func (e *Engine) VerifyEmail(ctx context.Context, token, requestID, code string) (*EmailVerificationRequest, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	_, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !e.verifyEmailBucket.Consume(u.ID, 1) {
		e.metricInc(MetricRateLimitHit)
		return nil, ErrRateLimited
	}

	r, err := e.store.VerificationRequest(ctx, u.ID, requestID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotAuthenticated
		}
		return nil, storeFailure("load verification request", err)
	}

	if !e.now().Before(r.ExpiresAt) {
		e.metricInc(MetricEmailVerificationExpired)
		replacement, issueErr := e.issueVerification(ctx, u.ID, r.Email)
		if issueErr != nil {
			return nil, issueErr
		}
		return &replacement, ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(r.Code), []byte(code)) != 1 {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEmailVerified, u.ID, "", false, ErrInvalidCredential)
		return nil, ErrInvalidCredential
	}

	if err := e.store.DeleteUserVerificationRequests(ctx, u.ID); err != nil {
		return nil, storeFailure("delete verification requests", err)
	}
	if err := e.store.SetEmailVerified(ctx, u.ID, r.Email); err != nil {
		return nil, storeFailure("set email verified", err)
	}
	// Reset sessions were anchored on an address that is no longer the
	// latest verified one.
	if err := e.store.DeleteUserResetSessions(ctx, u.ID); err != nil {
		return nil, storeFailure("delete reset sessions", err)
	}
	e.verifyEmailBucket.Reset(u.ID)

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEmailVerified, u.ID, "", true, nil)
	return nil, nil
}
