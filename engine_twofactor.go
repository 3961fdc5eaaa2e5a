package authcore

import (
	"context"
	"crypto/subtle"

	"github.com/nexusscholar/authcore/otp"
)

// SetupTOTP begins TOTP enrollment: a fresh secret and its provisioning URI
// for the authenticator app. Nothing is persisted until the user proves
// possession through [Engine.ConfirmTOTPSetup], so an abandoned setup page
// leaves no trace.
func (e *Engine) SetupTOTP(ctx context.Context, token string) (TOTPSetup, error) {
	if e == nil {
		return TOTPSetup{}, ErrEngineNotReady
	}
	_, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return TOTPSetup{}, err
	}
	if !u.EmailVerified {
		return TOTPSetup{}, ErrForbidden
	}

	_, encoded, err := otp.GenerateSecret()
	if err != nil {
		return TOTPSetup{}, err
	}
	return TOTPSetup{
		SecretBase32: encoded,
		URI:          otp.KeyURI(e.config.TOTP.Issuer, u.Email, encoded, e.config.TOTP.Digits, e.config.TOTP.Period),
	}, nil
}

// ConfirmTOTPSetup verifies a code against the candidate secret and, on
// success, stores the secret encrypted and marks the session two-factor
// verified. Re-enrollment over an existing key is allowed for sessions that
// are already two-factor verified.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, token, secretBase32, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	s, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return err
	}
	if !u.EmailVerified {
		return ErrForbidden
	}
	if u.Registered2FA && !s.TwoFactorVerified {
		return ErrForbidden
	}

	secret, err := otp.DecodeSecret(secretBase32)
	if err != nil {
		return ErrInvalidInput
	}

	if !e.totpBucket.Consume(u.ID, 1) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}
	if !otp.Verify(secret, e.config.TOTP.Period, e.config.TOTP.Digits, code, e.now()) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditTOTPSetup, u.ID, s.ID, false, ErrInvalidCredential)
		return ErrInvalidCredential
	}
	e.totpBucket.Reset(u.ID)

	encrypted, err := e.codec.Encrypt(secret)
	if err != nil {
		return err
	}
	if err := e.store.UpdateTOTPKey(ctx, u.ID, encrypted); err != nil {
		return storeFailure("update totp key", err)
	}
	if err := e.SetSessionTwoFactorVerified(ctx, s.ID); err != nil {
		return err
	}

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditTOTPSetup, u.ID, s.ID, true, nil)
	return nil
}

// VerifyTOTP completes the second-factor step of a sign-in. Subject to the
// per-user attempt budget, which resets on success.
func (e *Engine) VerifyTOTP(ctx context.Context, token, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	s, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return err
	}
	if !u.Registered2FA || s.TwoFactorVerified {
		return ErrForbidden
	}

	if !e.totpBucket.Consume(u.ID, 1) {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}

	encrypted, err := e.store.TOTPKey(ctx, u.ID)
	if err != nil {
		return storeFailure("load totp key", err)
	}
	if encrypted == "" {
		return ErrForbidden
	}
	secret, err := e.codec.Decrypt(encrypted)
	if err != nil {
		return err
	}
	if !otp.Verify(secret, e.config.TOTP.Period, e.config.TOTP.Digits, code, e.now()) {
		e.metricInc(MetricTOTPFailure)
		e.emitAudit(ctx, auditTOTPVerify, u.ID, s.ID, false, ErrInvalidCredential)
		return ErrInvalidCredential
	}
	e.totpBucket.Reset(u.ID)

	if err := e.SetSessionTwoFactorVerified(ctx, s.ID); err != nil {
		return err
	}
	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditTOTPVerify, u.ID, s.ID, true, nil)
	return nil
}

// RecoveryCode returns the caller's recovery code in plaintext so it can be
// shown once on the account security page. On 2FA accounts the session must
// be two-factor verified.
func (e *Engine) RecoveryCode(ctx context.Context, token string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	s, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return "", err
	}
	if u.Registered2FA && !s.TwoFactorVerified {
		return "", ErrForbidden
	}

	encrypted, err := e.store.RecoveryCode(ctx, u.ID, false)
	if err != nil {
		return "", storeFailure("load recovery code", err)
	}
	return e.codec.DecryptString(encrypted)
}

// ResetTwoFactorWithRecoveryCode disables 2FA for a locked-out user: the
// supplied recovery code is spent, a replacement is generated, the TOTP key
// is cleared, and every session is downgraded to not-two-factor-verified.
// The new recovery code is returned for display.
//
// Exactly one of two racing calls with the same code can win; the loser
// gets ErrConflict.
func (e *Engine) ResetTwoFactorWithRecoveryCode(ctx context.Context, token, code string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}
	_, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return "", err
	}
	if !u.Registered2FA {
		return "", ErrForbidden
	}

	newCode, err := e.resetTwoFactor(ctx, u.ID, code)
	if err != nil {
		return "", err
	}
	e.emitAudit(ctx, auditTwoFactorReset, u.ID, "", true, nil)
	return newCode, nil
}

// resetTwoFactor spends the recovery code and rotates it. The read takes a
// row lock and the write is conditional on the old ciphertext, so two
// concurrent spends of the same code resolve to one winner; the loser's
// conditional write matches nothing and maps to ErrConflict.
func (e *Engine) resetTwoFactor(ctx context.Context, userID, code string) (string, error) {
	if !e.recoveryBucket.Consume(userID, 1) {
		e.metricInc(MetricRateLimitHit)
		return "", ErrRateLimited
	}

	oldEncrypted, err := e.store.RecoveryCode(ctx, userID, true)
	if err != nil {
		if isNotFound(err) {
			return "", ErrNotAuthenticated
		}
		return "", storeFailure("load recovery code", err)
	}
	oldPlain, err := e.codec.DecryptString(oldEncrypted)
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(oldPlain), []byte(code)) != 1 {
		e.metricInc(MetricRecoveryCodeFailed)
		e.emitAudit(ctx, auditTwoFactorReset, userID, "", false, ErrInvalidCredential)
		return "", ErrInvalidCredential
	}

	newPlain, err := otp.NewRecoveryCode()
	if err != nil {
		return "", err
	}
	newEncrypted, err := e.codec.EncryptString(newPlain)
	if err != nil {
		return "", err
	}

	ok, err := e.store.ResetTwoFactor(ctx, userID, oldEncrypted, newEncrypted)
	if err != nil {
		return "", storeFailure("reset two factor", err)
	}
	if !ok {
		e.metricInc(MetricRecoveryCodeConflict)
		return "", ErrConflict
	}

	e.recoveryBucket.Reset(userID)
	e.metricInc(MetricRecoveryCodeUsed)
	return newPlain, nil
}
