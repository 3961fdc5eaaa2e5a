package session

import "time"

// Flags carries the verification state a session is created with.
type Flags struct {
	TwoFactorVerified bool
	OAuth2Verified    bool
}

// Session is an authenticated session. ID is the one-way hash of the bearer
// token, never the token itself.
type Session struct {
	ID                string
	UserID            string
	ExpiresAt         time.Time
	TwoFactorVerified bool
	OAuth2Verified    bool
}

// ExpiredAt reports whether the session is expired at the given instant.
func (s Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ResetSession is a password-reset session. It is deliberately a separate
// type from [Session]: a reset-in-progress must never grant general account
// access, so the two never share a store row or a cookie name.
type ResetSession struct {
	ID                string
	UserID            string
	Email             string
	Code              string
	ExpiresAt         time.Time
	EmailVerified     bool
	TwoFactorVerified bool
}

// ExpiredAt reports whether the reset session is expired at the given instant.
func (s ResetSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
