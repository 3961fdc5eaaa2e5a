package middleware

import (
	"net/http"
	"time"
)

// Cookie names used by the flows. The reset and verification cookies are
// deliberately separate from the session cookie so a reset-in-progress
// never rides on (or grants) general account access.
const (
	SessionCookie      = "session"
	ResetSessionCookie = "password_reset_session"
	VerificationCookie = "email_verification"
)

// Cookies writes the flow cookies with a shared security baseline: HttpOnly
// always, SameSite=Lax, Secure when the deployment is not plain-HTTP dev.
type Cookies struct {
	Secure bool
	Path   string
}

func (c Cookies) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

func (c Cookies) set(w http.ResponseWriter, name, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.path(),
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.path(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetSession writes the session token cookie, expiring with the session.
func (c Cookies) SetSession(w http.ResponseWriter, token string, expiresAt time.Time) {
	c.set(w, SessionCookie, token, expiresAt)
}

// DeleteSession expires the session cookie immediately.
func (c Cookies) DeleteSession(w http.ResponseWriter) {
	c.delete(w, SessionCookie)
}

// SetResetSession writes the password-reset token cookie.
func (c Cookies) SetResetSession(w http.ResponseWriter, token string, expiresAt time.Time) {
	c.set(w, ResetSessionCookie, token, expiresAt)
}

// DeleteResetSession expires the password-reset cookie immediately.
func (c Cookies) DeleteResetSession(w http.ResponseWriter) {
	c.delete(w, ResetSessionCookie)
}

// SetVerification writes the email-verification request id cookie. The id
// alone grants nothing; the code still has to match server-side.
func (c Cookies) SetVerification(w http.ResponseWriter, requestID string, expiresAt time.Time) {
	c.set(w, VerificationCookie, requestID, expiresAt)
}

// DeleteVerification expires the email-verification cookie immediately.
func (c Cookies) DeleteVerification(w http.ResponseWriter) {
	c.delete(w, VerificationCookie)
}
