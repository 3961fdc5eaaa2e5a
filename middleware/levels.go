package middleware

import (
	"net/http"

	authcore "github.com/nexusscholar/authcore"
)

// RequireSession accepts any valid session.
func RequireSession(engine *authcore.Engine, cookies Cookies) func(http.Handler) http.Handler {
	return Guard(engine, cookies, LevelSession)
}

// RequireVerifiedEmail accepts valid sessions on verified accounts.
func RequireVerifiedEmail(engine *authcore.Engine, cookies Cookies) func(http.Handler) http.Handler {
	return Guard(engine, cookies, LevelEmailVerified)
}

// RequireTwoFactor accepts valid sessions that have completed 2FA where the
// account has it enrolled.
func RequireTwoFactor(engine *authcore.Engine, cookies Cookies) func(http.Handler) http.Handler {
	return Guard(engine, cookies, LevelTwoFactor)
}
