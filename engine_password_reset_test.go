package authcore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/otp"
)

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)

	ticket, err := engine.ForgotPassword(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if ticket != nil {
		t.Fatal("unknown email must not yield a ticket")
	}
	if sender.count(authcore.EmailPasswordResetCode) != 0 {
		t.Fatal("unknown email must not trigger mail")
	}
}

func TestPasswordResetEndToEnd(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")

	ticket, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	if ticket == nil {
		t.Fatal("expected a ticket for a known email")
	}

	// The password step is gated until the email code passes.
	_, err = engine.ResetPassword(context.Background(), ticket.Token, "brand-new-password")
	if !errors.Is(err, authcore.ErrForbidden) {
		t.Fatalf("expected ErrForbidden before email verification, got %v", err)
	}

	code := sender.lastCode(t, authcore.EmailPasswordResetCode)
	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, code); err != nil {
		t.Fatalf("VerifyResetEmailCode failed: %v", err)
	}

	result, err := engine.ResetPassword(context.Background(), ticket.Token, "brand-new-password")
	if err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Old session dead, replacement works, new password signs in.
	if _, _, err := engine.ValidateSessionToken(context.Background(), res.Token); !errors.Is(err, authcore.ErrNotAuthenticated) {
		t.Fatalf("expected pre-reset session dead, got %v", err)
	}
	if _, _, err := engine.ValidateSessionToken(context.Background(), result.Token); err != nil {
		t.Fatalf("replacement session invalid: %v", err)
	}
	if _, err := engine.SignIn(context.Background(), "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("sign-in with new password failed: %v", err)
	}

	// The reset token is single-use.
	if _, err := engine.ResetPassword(context.Background(), ticket.Token, "another-password"); !errors.Is(err, authcore.ErrNotAuthenticated) {
		t.Fatalf("expected dead reset token, got %v", err)
	}
}

func TestForgotPasswordVerifiesAccountEmail(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)
	signUpUser(t, engine, "alice@example.com")

	// The account never completed sign-up verification, but proving inbox
	// control during a reset verifies it.
	ticket, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil || ticket == nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := sender.lastCode(t, authcore.EmailPasswordResetCode)
	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, code); err != nil {
		t.Fatalf("VerifyResetEmailCode failed: %v", err)
	}

	result, err := engine.ResetPassword(context.Background(), ticket.Token, "brand-new-password")
	if err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if !result.User.EmailVerified {
		t.Fatal("expected account verified through the reset flow")
	}
}

func TestVerifyResetEmailCodeRejectsWrongCode(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)
	verifiedUser(t, engine, sender, "alice@example.com")

	ticket, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil || ticket == nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := sender.lastCode(t, authcore.EmailPasswordResetCode)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, wrong); !errors.Is(err, authcore.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	// The right code still works after a wrong attempt.
	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, code); err != nil {
		t.Fatalf("correct code rejected: %v", err)
	}
}

func TestResetSessionExpires(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	verifiedUser(t, engine, sender, "alice@example.com")

	ticket, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil || ticket == nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	clock.Advance(authcore.DefaultConfig().PasswordReset.TTL)

	code := sender.lastCode(t, authcore.EmailPasswordResetCode)
	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, code); !errors.Is(err, authcore.ErrNotAuthenticated) {
		t.Fatalf("expected expired reset session, got %v", err)
	}
}

func TestForgotPasswordRequestBudget(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)
	verifiedUser(t, engine, sender, "alice@example.com")

	limit := authcore.DefaultConfig().PasswordReset.RequestLimit
	for i := 0; i < limit; i++ {
		if _, err := engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	_, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestForgotPasswordPerIPBudget(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := authcore.WithClientIP(context.Background(), "203.0.113.7")

	limit := authcore.DefaultConfig().PasswordReset.RequestsPerIP
	for i := 0; i < limit; i++ {
		// Distinct unknown addresses: only the IP budget is shared.
		if _, err := engine.ForgotPassword(ctx, fmt.Sprintf("nobody%d@example.com", i)); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	_, err := engine.ForgotPassword(ctx, "one-more@example.com")
	if !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestPasswordResetWithTOTPSecondFactor(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")
	secret := enrollTOTP(t, engine, res.Token, clock)

	ticket, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil || ticket == nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := sender.lastCode(t, authcore.EmailPasswordResetCode)
	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, code); err != nil {
		t.Fatalf("VerifyResetEmailCode failed: %v", err)
	}

	// Email alone is not enough on a 2FA account.
	if _, err := engine.ResetPassword(context.Background(), ticket.Token, "brand-new-password"); !errors.Is(err, authcore.ErrForbidden) {
		t.Fatalf("expected ErrForbidden before second factor, got %v", err)
	}

	totpCode, err := otp.Code(secret, authcore.DefaultConfig().TOTP.Period, authcore.DefaultConfig().TOTP.Digits, clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.VerifyResetTOTP(context.Background(), ticket.Token, totpCode); err != nil {
		t.Fatalf("VerifyResetTOTP failed: %v", err)
	}

	result, err := engine.ResetPassword(context.Background(), ticket.Token, "brand-new-password")
	if err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// The replacement session carries the reset's two-factor standing.
	s, _, err := engine.ValidateSessionToken(context.Background(), result.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !s.TwoFactorVerified {
		t.Fatal("expected replacement session to be two-factor verified")
	}
}

func TestPasswordResetWithRecoveryCode(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")
	enrollTOTP(t, engine, res.Token, clock)

	recovery, err := engine.RecoveryCode(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("RecoveryCode failed: %v", err)
	}

	ticket, err := engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil || ticket == nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := sender.lastCode(t, authcore.EmailPasswordResetCode)
	if err := engine.VerifyResetEmailCode(context.Background(), ticket.Token, code); err != nil {
		t.Fatalf("VerifyResetEmailCode failed: %v", err)
	}

	newRecovery, err := engine.VerifyResetRecoveryCode(context.Background(), ticket.Token, recovery)
	if err != nil {
		t.Fatalf("VerifyResetRecoveryCode failed: %v", err)
	}
	if newRecovery == "" || newRecovery == recovery {
		t.Fatal("expected a rotated recovery code")
	}

	result, err := engine.ResetPassword(context.Background(), ticket.Token, "brand-new-password")
	if err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Recovery spend cleared TOTP enrollment.
	if result.User.Registered2FA {
		t.Fatal("expected 2FA enrollment cleared after recovery spend")
	}
}
