package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/nexusscholar/authcore/internal/audit"
	"github.com/nexusscholar/authcore/session"
)

// User is the credential-relevant account projection. Registered2FA is
// derived by the store from TOTP key presence and is never persisted as its
// own column, so it cannot drift.
type User struct {
	ID            string
	Email         string
	Username      string
	EmailVerified bool
	Registered2FA bool
	GitHubID      string
}

// NewUser is the input for [UserStore.CreateUser]. Exactly one of
// PasswordHash or GitHubID is set, matching the account's primary
// authentication method. RecoveryCode is already encrypted.
type NewUser struct {
	Email         string
	Username      string
	PasswordHash  string
	RecoveryCode  string
	GitHubID      string
	EmailVerified bool
}

// EmailVerificationRequest is a short-lived one-time-code challenge binding
// a user to a candidate email address. At most one exists per user.
type EmailVerificationRequest struct {
	ID        string
	UserID    string
	Code      string
	Email     string
	ExpiresAt time.Time
}

// UserStore is the account-credential side of the persistent store.
// Encrypted values (TOTP key, recovery code) are opaque strings produced by
// the engine's secret codec; stores never see plaintext.
type UserStore interface {
	// CreateUser inserts an account. Returns ErrEmailInUse when the email
	// already exists (unique-constraint violation).
	CreateUser(ctx context.Context, input NewUser) (User, error)
	UserByID(ctx context.Context, userID string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByGitHubID(ctx context.Context, githubID string) (User, error)

	// PasswordHash returns the stored hash, or "" for OAuth-only accounts.
	PasswordHash(ctx context.Context, userID string) (string, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetEmailVerified marks the account verified and records email as the
	// account's address (email changes land here after verification).
	SetEmailVerified(ctx context.Context, userID, email string) error

	// TOTPKey returns the encrypted TOTP key, or "" when none is enrolled.
	TOTPKey(ctx context.Context, userID string) (string, error)
	UpdateTOTPKey(ctx context.Context, userID, encryptedKey string) error

	// RecoveryCode returns the encrypted recovery code. With forUpdate set
	// the row is read under a row lock (or equivalent) so a concurrent
	// rotation serializes behind it.
	RecoveryCode(ctx context.Context, userID string, forUpdate bool) (string, error)

	// ResetTwoFactor atomically rotates the recovery code, clears the TOTP
	// key, and downgrades TwoFactorVerified on all of the user's sessions,
	// keyed on oldEncrypted still being the stored value. Returns false
	// when the conditional write matched zero rows (double-spend).
	ResetTwoFactor(ctx context.Context, userID, oldEncrypted, newEncrypted string) (bool, error)
}

// SessionStore persists ordinary authenticated sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s session.Session) error
	// SessionWithUser returns the session joined with its user, or
	// ErrNotFound.
	SessionWithUser(ctx context.Context, sessionID string) (session.Session, User, error)
	UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error
	// SetSessionTwoFactorVerified flips the flag to true. There is no way
	// back within a session's lifetime.
	SetSessionTwoFactorVerified(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

// ResetSessionStore persists password-reset sessions.
type ResetSessionStore interface {
	CreateResetSession(ctx context.Context, s session.ResetSession) error
	ResetSessionWithUser(ctx context.Context, sessionID string) (session.ResetSession, User, error)
	SetResetSessionEmailVerified(ctx context.Context, sessionID string) error
	SetResetSessionTwoFactorVerified(ctx context.Context, sessionID string) error
	DeleteUserResetSessions(ctx context.Context, userID string) error
}

// VerificationStore persists email verification challenges.
type VerificationStore interface {
	CreateVerificationRequest(ctx context.Context, r EmailVerificationRequest) error
	VerificationRequest(ctx context.Context, userID, requestID string) (EmailVerificationRequest, error)
	DeleteUserVerificationRequests(ctx context.Context, userID string) error
}

// Store is the full persistent-store contract the engine is built with.
// memstore implements it in process memory; pgstore implements it on
// PostgreSQL.
type Store interface {
	UserStore
	SessionStore
	ResetSessionStore
	VerificationStore
}

// EmailKind selects the email template at the sender.
type EmailKind string

const (
	// EmailVerificationCode is the account/email-change verification mail.
	EmailVerificationCode EmailKind = "email_verification"
	// EmailPasswordResetCode is the password-reset code mail.
	EmailPasswordResetCode EmailKind = "password_reset"
)

// EmailSender is the outbound-mail collaborator. The engine only ever hands
// it an address, a template kind, and a code; rendering and transport are
// the sender's concern.
type EmailSender interface {
	Send(ctx context.Context, to string, kind EmailKind, code string) error
}

// SignUpResult is returned by [Engine.SignUp].
type SignUpResult struct {
	User         User
	Token        string
	Session      session.Session
	Verification EmailVerificationRequest
}

// SignInResult is returned by sign-in and by the operations that rotate the
// caller's session (password change, password reset). When
// SecondFactorRequired is set the session is not yet two-factor verified
// and must not reach 2FA-gated resources.
type SignInResult struct {
	User                 User
	Token                string
	Session              session.Session
	SecondFactorRequired bool
}

// TOTPSetup is returned by [Engine.SetupTOTP]. The raw secret is not yet
// persisted; it is confirmed (and only then stored, encrypted) by
// [Engine.ConfirmTOTPSetup].
type TOTPSetup struct {
	SecretBase32 string
	URI          string
}

// ResetTicket is returned by [Engine.ForgotPassword] for known accounts.
// Token is the password_reset_session cookie value.
type ResetTicket struct {
	Token     string
	ExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] writing JSON lines to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
