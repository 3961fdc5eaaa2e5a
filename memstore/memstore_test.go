package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/session"
)

func createUser(t *testing.T, s *Store, email string) authcore.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), authcore.NewUser{
		Email:        email,
		Username:     "u",
		PasswordHash: "hash",
		RecoveryCode: "encrypted-recovery",
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	s := New()
	createUser(t, s, "a@example.com")

	_, err := s.CreateUser(context.Background(), authcore.NewUser{Email: "a@example.com", RecoveryCode: "rc"})
	if !errors.Is(err, authcore.ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
}

func TestRegistered2FATracksTOTPKey(t *testing.T) {
	s := New()
	u := createUser(t, s, "a@example.com")
	ctx := context.Background()

	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Registered2FA {
		t.Fatal("fresh user must not be 2FA enrolled")
	}

	if err := s.UpdateTOTPKey(ctx, u.ID, "encrypted-key"); err != nil {
		t.Fatal(err)
	}
	got, err = s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Registered2FA {
		t.Fatal("expected 2FA enrolled with a key present")
	}
}

func TestResetTwoFactorIsConditionalOnOldCiphertext(t *testing.T) {
	s := New()
	u := createUser(t, s, "a@example.com")
	ctx := context.Background()

	if err := s.UpdateTOTPKey(ctx, u.ID, "encrypted-key"); err != nil {
		t.Fatal(err)
	}
	sess := session.Session{ID: "sid", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour), TwoFactorVerified: true}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	ok, err := s.ResetTwoFactor(ctx, u.ID, "encrypted-recovery", "rotated")
	if err != nil {
		t.Fatalf("ResetTwoFactor failed: %v", err)
	}
	if !ok {
		t.Fatal("first spend must win")
	}

	// Second spend against the stale ciphertext loses.
	ok, err = s.ResetTwoFactor(ctx, u.ID, "encrypted-recovery", "rotated-again")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("stale ciphertext must not match")
	}

	// Side effects of the winning spend.
	key, err := s.TOTPKey(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		t.Fatal("expected TOTP key cleared")
	}
	got, _, err := s.SessionWithUser(ctx, "sid")
	if err != nil {
		t.Fatal(err)
	}
	if got.TwoFactorVerified {
		t.Fatal("expected sessions downgraded")
	}
	code, err := s.RecoveryCode(ctx, u.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if code != "rotated" {
		t.Fatalf("expected rotated code, got %q", code)
	}
}

func TestVerificationRequestScopedToUser(t *testing.T) {
	s := New()
	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")
	ctx := context.Background()

	r := authcore.EmailVerificationRequest{ID: "req", UserID: a.ID, Code: "123456", Email: a.Email, ExpiresAt: time.Now().Add(time.Minute)}
	if err := s.CreateVerificationRequest(ctx, r); err != nil {
		t.Fatal(err)
	}

	if _, err := s.VerificationRequest(ctx, a.ID, "req"); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := s.VerificationRequest(ctx, b.ID, "req"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong user, got %v", err)
	}
}

func TestDeleteUserSessionsOnlyTouchesOwner(t *testing.T) {
	s := New()
	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")
	ctx := context.Background()

	_ = s.CreateSession(ctx, session.Session{ID: "sa", UserID: a.ID, ExpiresAt: time.Now().Add(time.Hour)})
	_ = s.CreateSession(ctx, session.Session{ID: "sb", UserID: b.ID, ExpiresAt: time.Now().Add(time.Hour)})

	if err := s.DeleteUserSessions(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.SessionWithUser(ctx, "sa"); !errors.Is(err, authcore.ErrNotFound) {
		t.Fatalf("expected a's session gone, got %v", err)
	}
	if _, _, err := s.SessionWithUser(ctx, "sb"); err != nil {
		t.Fatalf("b's session must survive: %v", err)
	}
}
