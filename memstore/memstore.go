// Package memstore implements authcore.Store in process memory. It exists
// for tests and single-process development setups; nothing survives a
// restart.
package memstore

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/session"
)

type userRecord struct {
	user         authcore.User
	passwordHash string
	totpKey      string
	recoveryCode string
}

// Store is a mutex-guarded in-memory authcore.Store.
type Store struct {
	mu sync.Mutex

	nextID        int
	users         map[string]*userRecord
	sessions      map[string]session.Session
	resetSessions map[string]session.ResetSession
	verifications map[string]authcore.EmailVerificationRequest
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:         make(map[string]*userRecord),
		sessions:      make(map[string]session.Session),
		resetSessions: make(map[string]session.ResetSession),
		verifications: make(map[string]authcore.EmailVerificationRequest),
	}
}

var _ authcore.Store = (*Store)(nil)

func (s *Store) CreateUser(_ context.Context, input authcore.NewUser) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(input.Email)
	for _, rec := range s.users {
		if rec.user.Email == email {
			return authcore.User{}, authcore.ErrEmailInUse
		}
	}

	s.nextID++
	u := authcore.User{
		ID:            strconv.Itoa(s.nextID),
		Email:         email,
		Username:      input.Username,
		EmailVerified: input.EmailVerified,
		GitHubID:      input.GitHubID,
	}
	s.users[u.ID] = &userRecord{
		user:         u,
		passwordHash: input.PasswordHash,
		recoveryCode: input.RecoveryCode,
	}
	return u, nil
}

func (s *Store) UserByID(_ context.Context, userID string) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return authcore.User{}, authcore.ErrNotFound
	}
	return rec.user, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, rec := range s.users {
		if rec.user.Email == email {
			return rec.user, nil
		}
	}
	return authcore.User{}, authcore.ErrNotFound
}

func (s *Store) UserByGitHubID(_ context.Context, githubID string) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		if rec.user.GitHubID != "" && rec.user.GitHubID == githubID {
			return rec.user, nil
		}
	}
	return authcore.User{}, authcore.ErrNotFound
}

func (s *Store) PasswordHash(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return "", authcore.ErrNotFound
	}
	return rec.passwordHash, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return authcore.ErrNotFound
	}
	rec.passwordHash = hash
	return nil
}

func (s *Store) SetEmailVerified(_ context.Context, userID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return authcore.ErrNotFound
	}
	rec.user.EmailVerified = true
	rec.user.Email = strings.ToLower(email)
	return nil
}

func (s *Store) TOTPKey(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return "", authcore.ErrNotFound
	}
	return rec.totpKey, nil
}

func (s *Store) UpdateTOTPKey(_ context.Context, userID, encryptedKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return authcore.ErrNotFound
	}
	rec.totpKey = encryptedKey
	rec.user.Registered2FA = encryptedKey != ""
	return nil
}

func (s *Store) RecoveryCode(_ context.Context, userID string, _ bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return "", authcore.ErrNotFound
	}
	return rec.recoveryCode, nil
}

// ResetTwoFactor performs the whole rotation under the store mutex, which
// gives the same winner-takes-all outcome as a row lock plus conditional
// update in SQL.
func (s *Store) ResetTwoFactor(_ context.Context, userID, oldEncrypted, newEncrypted string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return false, authcore.ErrNotFound
	}
	if rec.recoveryCode != oldEncrypted {
		return false, nil
	}
	rec.recoveryCode = newEncrypted
	rec.totpKey = ""
	rec.user.Registered2FA = false
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			sess.TwoFactorVerified = false
			s.sessions[id] = sess
		}
	}
	return true, nil
}

func (s *Store) CreateSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) SessionWithUser(_ context.Context, sessionID string) (session.Session, authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.Session{}, authcore.User{}, authcore.ErrNotFound
	}
	rec, ok := s.users[sess.UserID]
	if !ok {
		return session.Session{}, authcore.User{}, authcore.ErrNotFound
	}
	return sess, rec.user, nil
}

func (s *Store) UpdateSessionExpiry(_ context.Context, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return authcore.ErrNotFound
	}
	sess.ExpiresAt = expiresAt
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) SetSessionTwoFactorVerified(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return authcore.ErrNotFound
	}
	sess.TwoFactorVerified = true
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) CreateResetSession(_ context.Context, rs session.ResetSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetSessions[rs.ID] = rs
	return nil
}

func (s *Store) ResetSessionWithUser(_ context.Context, sessionID string) (session.ResetSession, authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.resetSessions[sessionID]
	if !ok {
		return session.ResetSession{}, authcore.User{}, authcore.ErrNotFound
	}
	rec, ok := s.users[rs.UserID]
	if !ok {
		return session.ResetSession{}, authcore.User{}, authcore.ErrNotFound
	}
	return rs, rec.user, nil
}

func (s *Store) SetResetSessionEmailVerified(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.resetSessions[sessionID]
	if !ok {
		return authcore.ErrNotFound
	}
	rs.EmailVerified = true
	s.resetSessions[sessionID] = rs
	return nil
}

func (s *Store) SetResetSessionTwoFactorVerified(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.resetSessions[sessionID]
	if !ok {
		return authcore.ErrNotFound
	}
	rs.TwoFactorVerified = true
	s.resetSessions[sessionID] = rs
	return nil
}

func (s *Store) DeleteUserResetSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rs := range s.resetSessions {
		if rs.UserID == userID {
			delete(s.resetSessions, id)
		}
	}
	return nil
}

func (s *Store) CreateVerificationRequest(_ context.Context, r authcore.EmailVerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications[r.ID] = r
	return nil
}

func (s *Store) VerificationRequest(_ context.Context, userID, requestID string) (authcore.EmailVerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.verifications[requestID]
	if !ok || r.UserID != userID {
		return authcore.EmailVerificationRequest{}, authcore.ErrNotFound
	}
	return r, nil
}

func (s *Store) DeleteUserVerificationRequests(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.verifications {
		if r.UserID == userID {
			delete(s.verifications, id)
		}
	}
	return nil
}
