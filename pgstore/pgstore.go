// Package pgstore implements authcore.Store on PostgreSQL through lib/pq.
// Apply [Schema] before first use.
package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/session"
)

// Schema creates the tables pgstore relies on.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
        id             SERIAL PRIMARY KEY,
        email          TEXT NOT NULL UNIQUE,
        username       TEXT NOT NULL,
        password_hash  TEXT NOT NULL DEFAULT '',
        email_verified BOOLEAN NOT NULL DEFAULT FALSE,
        totp_key       TEXT NOT NULL DEFAULT '',
        recovery_code  TEXT NOT NULL,
        github_id      TEXT NOT NULL DEFAULT '',
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS users_github_id_idx ON users (github_id) WHERE github_id <> '';

CREATE TABLE IF NOT EXISTS sessions (
        id                  TEXT PRIMARY KEY,
        user_id             INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        expires_at          TIMESTAMPTZ NOT NULL,
        two_factor_verified BOOLEAN NOT NULL DEFAULT FALSE,
        oauth2_verified     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);

CREATE TABLE IF NOT EXISTS password_reset_sessions (
        id                  TEXT PRIMARY KEY,
        user_id             INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        email               TEXT NOT NULL,
        code                TEXT NOT NULL,
        expires_at          TIMESTAMPTZ NOT NULL,
        email_verified      BOOLEAN NOT NULL DEFAULT FALSE,
        two_factor_verified BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS password_reset_sessions_user_id_idx ON password_reset_sessions (user_id);

CREATE TABLE IF NOT EXISTS email_verification_requests (
        id         TEXT PRIMARY KEY,
        user_id    INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
        email      TEXT NOT NULL,
        code       TEXT NOT NULL,
        expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS email_verification_requests_user_id_idx ON email_verification_requests (user_id);
`

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed authcore.Store.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle. The caller owns the handle's
// lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ authcore.Store = (*Store)(nil)

// Migrate applies [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && string(pqErr.Code) == uniqueViolation
}

func (s *Store) CreateUser(ctx context.Context, input authcore.NewUser) (authcore.User, error) {
	const q = `
                INSERT INTO users (email, username, password_hash, email_verified, recovery_code, github_id)
                VALUES ($1, $2, $3, $4, $5, $6)
                RETURNING id
        `
	u := authcore.User{
		Email:         input.Email,
		Username:      input.Username,
		EmailVerified: input.EmailVerified,
		GitHubID:      input.GitHubID,
	}
	err := s.db.QueryRowContext(ctx, q,
		input.Email, input.Username, input.PasswordHash, input.EmailVerified, input.RecoveryCode, input.GitHubID,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.User{}, authcore.ErrEmailInUse
		}
		return authcore.User{}, err
	}
	return u, nil
}

const userColumns = `id, email, username, email_verified, totp_key <> '', github_id`

func scanUser(row *sql.Row) (authcore.User, error) {
	var u authcore.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.EmailVerified, &u.Registered2FA, &u.GitHubID)
	if err == sql.ErrNoRows {
		return authcore.User{}, authcore.ErrNotFound
	}
	if err != nil {
		return authcore.User{}, err
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, userID string) (authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *Store) UserByGitHubID(ctx context.Context, githubID string) (authcore.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE github_id = $1 AND github_id <> ''`, githubID))
}

func (s *Store) PasswordHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", authcore.ErrNotFound
	}
	return hash, err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.execOne(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

func (s *Store) SetEmailVerified(ctx context.Context, userID, email string) error {
	return s.execOne(ctx, `UPDATE users SET email_verified = TRUE, email = $2 WHERE id = $1`, userID, email)
}

func (s *Store) TOTPKey(ctx context.Context, userID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `SELECT totp_key FROM users WHERE id = $1`, userID).Scan(&key)
	if err == sql.ErrNoRows {
		return "", authcore.ErrNotFound
	}
	return key, err
}

func (s *Store) UpdateTOTPKey(ctx context.Context, userID, encryptedKey string) error {
	return s.execOne(ctx, `UPDATE users SET totp_key = $2 WHERE id = $1`, userID, encryptedKey)
}

func (s *Store) RecoveryCode(ctx context.Context, userID string, forUpdate bool) (string, error) {
	q := `SELECT recovery_code FROM users WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var code string
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&code)
	if err == sql.ErrNoRows {
		return "", authcore.ErrNotFound
	}
	return code, err
}

// ResetTwoFactor rotates the recovery code inside one transaction. The
// UPDATE is conditional on the old ciphertext still being stored, so of two
// racing spends only the first matches a row; the second reports ok=false.
func (s *Store) ResetTwoFactor(ctx context.Context, userID, oldEncrypted, newEncrypted string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
                UPDATE users SET recovery_code = $3, totp_key = ''
                WHERE id = $1 AND recovery_code = $2
        `, userID, oldEncrypted, newEncrypted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET two_factor_verified = FALSE WHERE user_id = $1`, userID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	const q = `
                INSERT INTO sessions (id, user_id, expires_at, two_factor_verified, oauth2_verified)
                VALUES ($1, $2, $3, $4, $5)
        `
	_, err := s.db.ExecContext(ctx, q, sess.ID, sess.UserID, sess.ExpiresAt, sess.TwoFactorVerified, sess.OAuth2Verified)
	return err
}

func (s *Store) SessionWithUser(ctx context.Context, sessionID string) (session.Session, authcore.User, error) {
	const q = `
                SELECT s.id, s.user_id, s.expires_at, s.two_factor_verified, s.oauth2_verified,
                       u.id, u.email, u.username, u.email_verified, u.totp_key <> '', u.github_id
                FROM sessions s
                JOIN users u ON u.id = s.user_id
                WHERE s.id = $1
        `
	var (
		sess session.Session
		u    authcore.User
	)
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(
		&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.TwoFactorVerified, &sess.OAuth2Verified,
		&u.ID, &u.Email, &u.Username, &u.EmailVerified, &u.Registered2FA, &u.GitHubID,
	)
	if err == sql.ErrNoRows {
		return session.Session{}, authcore.User{}, authcore.ErrNotFound
	}
	if err != nil {
		return session.Session{}, authcore.User{}, err
	}
	return sess, u, nil
}

func (s *Store) UpdateSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	return s.execOne(ctx, `UPDATE sessions SET expires_at = $2 WHERE id = $1`, sessionID, expiresAt)
}

func (s *Store) SetSessionTwoFactorVerified(ctx context.Context, sessionID string) error {
	return s.execOne(ctx, `UPDATE sessions SET two_factor_verified = TRUE WHERE id = $1`, sessionID)
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (s *Store) CreateResetSession(ctx context.Context, rs session.ResetSession) error {
	const q = `
                INSERT INTO password_reset_sessions (id, user_id, email, code, expires_at, email_verified, two_factor_verified)
                VALUES ($1, $2, $3, $4, $5, $6, $7)
        `
	_, err := s.db.ExecContext(ctx, q, rs.ID, rs.UserID, rs.Email, rs.Code, rs.ExpiresAt, rs.EmailVerified, rs.TwoFactorVerified)
	return err
}

func (s *Store) ResetSessionWithUser(ctx context.Context, sessionID string) (session.ResetSession, authcore.User, error) {
	const q = `
                SELECT rs.id, rs.user_id, rs.email, rs.code, rs.expires_at, rs.email_verified, rs.two_factor_verified,
                       u.id, u.email, u.username, u.email_verified, u.totp_key <> '', u.github_id
                FROM password_reset_sessions rs
                JOIN users u ON u.id = rs.user_id
                WHERE rs.id = $1
        `
	var (
		rs session.ResetSession
		u  authcore.User
	)
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(
		&rs.ID, &rs.UserID, &rs.Email, &rs.Code, &rs.ExpiresAt, &rs.EmailVerified, &rs.TwoFactorVerified,
		&u.ID, &u.Email, &u.Username, &u.EmailVerified, &u.Registered2FA, &u.GitHubID,
	)
	if err == sql.ErrNoRows {
		return session.ResetSession{}, authcore.User{}, authcore.ErrNotFound
	}
	if err != nil {
		return session.ResetSession{}, authcore.User{}, err
	}
	return rs, u, nil
}

func (s *Store) SetResetSessionEmailVerified(ctx context.Context, sessionID string) error {
	return s.execOne(ctx, `UPDATE password_reset_sessions SET email_verified = TRUE WHERE id = $1`, sessionID)
}

func (s *Store) SetResetSessionTwoFactorVerified(ctx context.Context, sessionID string) error {
	return s.execOne(ctx, `UPDATE password_reset_sessions SET two_factor_verified = TRUE WHERE id = $1`, sessionID)
}

func (s *Store) DeleteUserResetSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM password_reset_sessions WHERE user_id = $1`, userID)
	return err
}

func (s *Store) CreateVerificationRequest(ctx context.Context, r authcore.EmailVerificationRequest) error {
	const q = `
                INSERT INTO email_verification_requests (id, user_id, email, code, expires_at)
                VALUES ($1, $2, $3, $4, $5)
        `
	_, err := s.db.ExecContext(ctx, q, r.ID, r.UserID, r.Email, r.Code, r.ExpiresAt)
	return err
}

func (s *Store) VerificationRequest(ctx context.Context, userID, requestID string) (authcore.EmailVerificationRequest, error) {
	const q = `
                SELECT id, user_id, email, code, expires_at
                FROM email_verification_requests
                WHERE id = $1 AND user_id = $2
        `
	var r authcore.EmailVerificationRequest
	err := s.db.QueryRowContext(ctx, q, requestID, userID).Scan(&r.ID, &r.UserID, &r.Email, &r.Code, &r.ExpiresAt)
	if err == sql.ErrNoRows {
		return authcore.EmailVerificationRequest{}, authcore.ErrNotFound
	}
	if err != nil {
		return authcore.EmailVerificationRequest{}, err
	}
	return r, nil
}

func (s *Store) DeleteUserVerificationRequests(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM email_verification_requests WHERE user_id = $1`, userID)
	return err
}

func (s *Store) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrNotFound
	}
	return nil
}
