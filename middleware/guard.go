package middleware

import (
	"context"
	"net/http"

	authcore "github.com/nexusscholar/authcore"
	"github.com/nexusscholar/authcore/session"
)

// Level is the enforcement level a guard applies after session validation.
type Level int

const (
	// LevelSession accepts any valid session.
	LevelSession Level = iota
	// LevelEmailVerified additionally requires a verified account email.
	LevelEmailVerified
	// LevelTwoFactor additionally requires the session to have completed
	// 2FA when the account has TOTP enrolled. Accounts without 2FA pass.
	LevelTwoFactor
)

type authContextKey struct{}

type authResult struct {
	Session session.Session
	User    authcore.User
}

// SessionFromContext returns the validated session injected by a guard.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	res, ok := ctx.Value(authContextKey{}).(*authResult)
	if !ok {
		return session.Session{}, false
	}
	return res.Session, true
}

// UserFromContext returns the validated user injected by a guard.
func UserFromContext(ctx context.Context) (authcore.User, bool) {
	res, ok := ctx.Value(authContextKey{}).(*authResult)
	if !ok {
		return authcore.User{}, false
	}
	return res.User, true
}

// Guard validates the session cookie at the given level. The session cookie
// is rewritten on every pass so sliding-expiration renewals reach the
// client; a failed validation deletes it.
func Guard(engine *authcore.Engine, cookies Cookies, level Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			s, u, err := engine.ValidateSessionToken(r.Context(), cookie.Value)
			if err != nil {
				cookies.DeleteSession(w)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			switch level {
			case LevelEmailVerified:
				if !u.EmailVerified {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			case LevelTwoFactor:
				if !u.EmailVerified || (u.Registered2FA && !s.TwoFactorVerified) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			cookies.SetSession(w, cookie.Value, s.ExpiresAt)

			ctx := context.WithValue(r.Context(), authContextKey{}, &authResult{Session: s, User: u})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
