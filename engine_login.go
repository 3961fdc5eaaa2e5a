package authcore

import (
	"context"
	"strings"

	"github.com/nexusscholar/authcore/otp"
	"github.com/nexusscholar/authcore/session"
)

// SignUp registers a password account. The account starts unverified; a
// verification challenge is created and emailed as part of registration,
// and the returned session carries neither verification flag.
//
// The recovery code is generated and sealed here, at account creation, so
// every account can recover from 2FA lockout even before enrolling TOTP.
func (e *Engine) SignUp(ctx context.Context, email, username, passwordPlain string) (SignUpResult, error) {
	if e == nil {
		return SignUpResult{}, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return SignUpResult{}, err
	}
	if username = strings.TrimSpace(username); username == "" || len(username) >= 64 {
		return SignUpResult{}, ErrInvalidInput
	}
	if len(passwordPlain) < e.config.Password.MinLength {
		return SignUpResult{}, ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(passwordPlain)
	if err != nil {
		return SignUpResult{}, err
	}
	recoveryPlain, err := otp.NewRecoveryCode()
	if err != nil {
		return SignUpResult{}, err
	}
	recovery, err := e.codec.EncryptString(recoveryPlain)
	if err != nil {
		return SignUpResult{}, err
	}

	u, err := e.store.CreateUser(ctx, NewUser{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		RecoveryCode: recovery,
	})
	if err != nil {
		if isConflict(err) {
			return SignUpResult{}, ErrEmailInUse
		}
		return SignUpResult{}, storeFailure("create user", err)
	}

	verification, err := e.issueVerification(ctx, u.ID, email)
	if err != nil {
		return SignUpResult{}, err
	}

	token, err := session.GenerateToken()
	if err != nil {
		return SignUpResult{}, err
	}
	s, err := e.CreateSession(ctx, token, u.ID, session.Flags{})
	if err != nil {
		return SignUpResult{}, err
	}

	e.emitAudit(ctx, auditSignUp, u.ID, s.ID, true, nil)
	return SignUpResult{User: u, Token: token, Session: s, Verification: verification}, nil
}

// SignIn authenticates email and password and issues a fresh session. The
// per-email throttler is consumed before the account lookup so unknown and
// known emails cost the same; unknown email, OAuth-only account, and wrong
// password are all ErrInvalidCredential.
//
// When the account has TOTP enrolled, SecondFactorRequired is set and the
// session must complete [Engine.VerifyTOTP] before reaching 2FA-gated
// resources.
func (e *Engine) SignIn(ctx context.Context, email, passwordPlain string) (SignInResult, error) {
	if e == nil {
		return SignInResult{}, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return SignInResult{}, err
	}

	if !e.signInThrottler.Consume(email) {
		e.metricInc(MetricSignInThrottled)
		e.emitAudit(ctx, auditSignIn, "", "", false, ErrRateLimited)
		return SignInResult{}, ErrRateLimited
	}

	u, err := e.store.UserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			e.metricInc(MetricSignInFailure)
			return SignInResult{}, ErrInvalidCredential
		}
		return SignInResult{}, storeFailure("load user", err)
	}

	hash, err := e.store.PasswordHash(ctx, u.ID)
	if err != nil {
		return SignInResult{}, storeFailure("load password hash", err)
	}
	if hash == "" {
		// OAuth-only account: no password to check.
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditSignIn, u.ID, "", false, ErrInvalidCredential)
		return SignInResult{}, ErrInvalidCredential
	}
	ok, err := e.hasher.Verify(passwordPlain, hash)
	if err != nil {
		return SignInResult{}, err
	}
	if !ok {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditSignIn, u.ID, "", false, ErrInvalidCredential)
		return SignInResult{}, ErrInvalidCredential
	}

	e.signInThrottler.Reset(email)

	token, err := session.GenerateToken()
	if err != nil {
		return SignInResult{}, err
	}
	s, err := e.CreateSession(ctx, token, u.ID, session.Flags{})
	if err != nil {
		return SignInResult{}, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditSignIn, u.ID, s.ID, true, nil)
	return SignInResult{
		User:                 u,
		Token:                token,
		Session:              s,
		SecondFactorRequired: u.Registered2FA,
	}, nil
}

// SignInWithGitHub signs in (or registers) an account from a validated
// GitHub identity. The caller has already completed the OAuth dance; the
// engine only trusts its result. New accounts are created email-verified,
// since GitHub attested the address.
//
// When the account has TOTP enrolled the session still requires a TOTP
// step: OAuth proves the identity provider login, not the second factor.
func (e *Engine) SignInWithGitHub(ctx context.Context, githubID, email, username string) (SignInResult, error) {
	if e == nil {
		return SignInResult{}, ErrEngineNotReady
	}
	if githubID == "" {
		return SignInResult{}, ErrInvalidInput
	}
	email = normalizeEmail(email)

	u, err := e.store.UserByGitHubID(ctx, githubID)
	if err != nil {
		if !isNotFound(err) {
			return SignInResult{}, storeFailure("load user", err)
		}
		if err := checkEmail(email); err != nil {
			return SignInResult{}, err
		}
		if username = strings.TrimSpace(username); username == "" || len(username) >= 64 {
			return SignInResult{}, ErrInvalidInput
		}
		recoveryPlain, err := otp.NewRecoveryCode()
		if err != nil {
			return SignInResult{}, err
		}
		recovery, err := e.codec.EncryptString(recoveryPlain)
		if err != nil {
			return SignInResult{}, err
		}
		u, err = e.store.CreateUser(ctx, NewUser{
			Email:         email,
			Username:      username,
			RecoveryCode:  recovery,
			GitHubID:      githubID,
			EmailVerified: true,
		})
		if err != nil {
			if isConflict(err) {
				return SignInResult{}, ErrEmailInUse
			}
			return SignInResult{}, storeFailure("create user", err)
		}
	}

	token, err := session.GenerateToken()
	if err != nil {
		return SignInResult{}, err
	}
	s, err := e.CreateSession(ctx, token, u.ID, session.Flags{OAuth2Verified: true})
	if err != nil {
		return SignInResult{}, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditOAuthSignIn, u.ID, s.ID, true, nil)
	return SignInResult{
		User:                 u,
		Token:                token,
		Session:              s,
		SecondFactorRequired: u.Registered2FA,
	}, nil
}

// SignOut deletes the session behind the token. Unknown tokens are a no-op.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return nil
	}
	id := session.IDFromToken(token)
	if err := e.InvalidateSession(ctx, id); err != nil {
		return err
	}
	e.emitAudit(ctx, auditSignOut, "", id, true, nil)
	return nil
}

// UpdatePassword changes the caller's password after re-verifying the
// current one. On accounts with TOTP enrolled the session must already be
// two-factor verified. Every session is invalidated and one replacement is
// issued, carrying the caller's verification flags forward.
func (e *Engine) UpdatePassword(ctx context.Context, token, currentPassword, newPassword string) (SignInResult, error) {
	if e == nil {
		return SignInResult{}, ErrEngineNotReady
	}
	s, u, err := e.ValidateSessionToken(ctx, token)
	if err != nil {
		return SignInResult{}, err
	}
	if u.Registered2FA && !s.TwoFactorVerified {
		return SignInResult{}, ErrForbidden
	}
	if len(newPassword) < e.config.Password.MinLength {
		return SignInResult{}, ErrPasswordPolicy
	}

	hash, err := e.store.PasswordHash(ctx, u.ID)
	if err != nil {
		return SignInResult{}, storeFailure("load password hash", err)
	}
	if hash == "" {
		return SignInResult{}, ErrInvalidCredential
	}
	ok, err := e.hasher.Verify(currentPassword, hash)
	if err != nil {
		return SignInResult{}, err
	}
	if !ok {
		e.emitAudit(ctx, auditPasswordChange, u.ID, s.ID, false, ErrInvalidCredential)
		return SignInResult{}, ErrInvalidCredential
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return SignInResult{}, err
	}
	if err := e.store.UpdatePasswordHash(ctx, u.ID, newHash); err != nil {
		return SignInResult{}, storeFailure("update password hash", err)
	}
	if err := e.InvalidateUserSessions(ctx, u.ID); err != nil {
		return SignInResult{}, err
	}

	newToken, err := session.GenerateToken()
	if err != nil {
		return SignInResult{}, err
	}
	replacement, err := e.CreateSession(ctx, newToken, u.ID, session.Flags{
		TwoFactorVerified: s.TwoFactorVerified,
		OAuth2Verified:    s.OAuth2Verified,
	})
	if err != nil {
		return SignInResult{}, err
	}

	e.emitAudit(ctx, auditPasswordChange, u.ID, replacement.ID, true, nil)
	return SignInResult{User: u, Token: newToken, Session: replacement}, nil
}
