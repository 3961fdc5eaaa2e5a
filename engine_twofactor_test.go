package authcore_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/memstore"
	"github.com/nexusscholar/authcore/otp"
)

// enrollTOTP completes TOTP enrollment for the session and returns the raw
// secret so tests can mint codes.
func enrollTOTP(t *testing.T, engine *authcore.Engine, token string, clock *fakeClock) []byte {
	t.Helper()

	setup, err := engine.SetupTOTP(context.Background(), token)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	secret, err := otp.DecodeSecret(setup.SecretBase32)
	if err != nil {
		t.Fatalf("DecodeSecret failed: %v", err)
	}

	cfg := authcore.DefaultConfig()
	code, err := otp.Code(secret, cfg.TOTP.Period, cfg.TOTP.Digits, clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.ConfirmTOTPSetup(context.Background(), token, setup.SecretBase32, code); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	return secret
}

func TestSetupTOTPRequiresVerifiedEmail(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	res := signUpUser(t, engine, "alice@example.com")

	_, err := engine.SetupTOTP(context.Background(), res.Token)
	if !errors.Is(err, authcore.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unverified account, got %v", err)
	}
}

func TestSetupTOTPReturnsProvisioningURI(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")

	setup, err := engine.SetupTOTP(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("SetupTOTP failed: %v", err)
	}
	if setup.SecretBase32 == "" {
		t.Fatal("expected a secret")
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected URI: %s", setup.URI)
	}

	// Abandoned setup persists nothing.
	_, u, err := engine.ValidateSessionToken(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if u.Registered2FA {
		t.Fatal("setup alone must not enroll 2FA")
	}
}

func TestConfirmTOTPSetupEnrollsAndVerifiesSession(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")

	enrollTOTP(t, engine, res.Token, clock)

	s, u, err := engine.ValidateSessionToken(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Registered2FA {
		t.Fatal("expected 2FA enrolled after confirmation")
	}
	if !s.TwoFactorVerified {
		t.Fatal("expected confirming session to be two-factor verified")
	}
}

func TestConfirmTOTPSetupRejectsWrongCode(t *testing.T) {
	engine, _, sender, _ := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")

	setup, err := engine.SetupTOTP(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	err = engine.ConfirmTOTPSetup(context.Background(), res.Token, setup.SecretBase32, "000000")
	if !errors.Is(err, authcore.ErrInvalidCredential) && !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestSignInRequiresSecondFactorAfterEnrollment(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")
	secret := enrollTOTP(t, engine, res.Token, clock)

	signin, err := engine.SignIn(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !signin.SecondFactorRequired {
		t.Fatal("expected second factor required")
	}
	s, _, err := engine.ValidateSessionToken(context.Background(), signin.Token)
	if err != nil {
		t.Fatal(err)
	}
	if s.TwoFactorVerified {
		t.Fatal("fresh session must not be two-factor verified")
	}

	cfg := authcore.DefaultConfig()
	code, err := otp.Code(secret, cfg.TOTP.Period, cfg.TOTP.Digits, clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.VerifyTOTP(context.Background(), signin.Token, code); err != nil {
		t.Fatalf("VerifyTOTP failed: %v", err)
	}

	s, _, err = engine.ValidateSessionToken(context.Background(), signin.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !s.TwoFactorVerified {
		t.Fatal("expected session two-factor verified after VerifyTOTP")
	}
}

func TestVerifyTOTPAttemptBudget(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")
	enrollTOTP(t, engine, res.Token, clock)

	signin, err := engine.SignIn(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatal(err)
	}

	limit := authcore.DefaultConfig().TOTP.MaxAttempts
	for i := 0; i < limit; i++ {
		if err := engine.VerifyTOTP(context.Background(), signin.Token, "000000"); !errors.Is(err, authcore.ErrInvalidCredential) {
			t.Fatalf("attempt %d: expected ErrInvalidCredential, got %v", i, err)
		}
	}
	if err := engine.VerifyTOTP(context.Background(), signin.Token, "000000"); !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRecoveryCodeRequiresTwoFactorOnEnrolledAccount(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")

	// Without 2FA the code is readable from any session.
	if _, err := engine.RecoveryCode(context.Background(), res.Token); err != nil {
		t.Fatalf("RecoveryCode failed: %v", err)
	}

	enrollTOTP(t, engine, res.Token, clock)

	signin, err := engine.SignIn(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RecoveryCode(context.Background(), signin.Token); !errors.Is(err, authcore.ErrForbidden) {
		t.Fatalf("expected ErrForbidden before second factor, got %v", err)
	}
}

func TestResetTwoFactorWithRecoveryCode(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")
	enrollTOTP(t, engine, res.Token, clock)

	recovery, err := engine.RecoveryCode(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}

	newCode, err := engine.ResetTwoFactorWithRecoveryCode(context.Background(), res.Token, recovery)
	if err != nil {
		t.Fatalf("ResetTwoFactorWithRecoveryCode failed: %v", err)
	}
	if newCode == recovery {
		t.Fatal("expected a rotated recovery code")
	}

	s, u, err := engine.ValidateSessionToken(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if u.Registered2FA {
		t.Fatal("expected TOTP enrollment cleared")
	}
	if s.TwoFactorVerified {
		t.Fatal("expected sessions downgraded")
	}

	// The spent code is dead; the rotated one is live.
	if _, err := engine.RecoveryCode(context.Background(), res.Token); err != nil {
		t.Fatal(err)
	}
	got, err := engine.RecoveryCode(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got != newCode {
		t.Fatal("stored recovery code does not match the returned one")
	}
}

func TestResetTwoFactorRejectsWrongRecoveryCode(t *testing.T) {
	engine, _, sender, clock := newTestEngine(t)
	res := verifiedUser(t, engine, sender, "alice@example.com")
	enrollTOTP(t, engine, res.Token, clock)

	_, err := engine.ResetTwoFactorWithRecoveryCode(context.Background(), res.Token, "WRONGCODEWRONGCO")
	if !errors.Is(err, authcore.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	// Enrollment untouched by the failed attempt.
	_, u, err := engine.ValidateSessionToken(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Registered2FA {
		t.Fatal("failed attempt must not clear enrollment")
	}
}

// barrierStore holds every locked recovery-code read until all expected
// readers have arrived, forcing two spends of the same code to read the
// same ciphertext before either writes.
type barrierStore struct {
	authcore.Store
	readers sync.WaitGroup
}

func (s *barrierStore) RecoveryCode(ctx context.Context, userID string, forUpdate bool) (string, error) {
	if forUpdate {
		s.readers.Done()
		s.readers.Wait()
	}
	return s.Store.RecoveryCode(ctx, userID, forUpdate)
}

func TestRecoveryCodeDoubleSpendHasOneWinner(t *testing.T) {
	store := &barrierStore{Store: memstore.New()}
	sender := &captureSender{}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	engine, err := authcore.New().
		WithConfig(testConfig()).
		WithStore(store).
		WithEmailSender(sender).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	res := verifiedUser(t, engine, sender, "alice@example.com")
	enrollTOTP(t, engine, res.Token, clock)

	recovery, err := engine.RecoveryCode(context.Background(), res.Token)
	if err != nil {
		t.Fatal(err)
	}

	store.readers.Add(2)
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.ResetTwoFactorWithRecoveryCode(context.Background(), res.Token, recovery)
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, authcore.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner and one conflict, got %d/%d", wins, conflicts)
	}
}
