// Package middleware exposes HTTP middleware adapters for cookie-based
// session enforcement built on top of authcore.Engine validation.
//
// # Guards
//
//   - [Guard] validates the session cookie at a chosen enforcement level.
//   - [RequireSession] admits any valid session.
//   - [RequireVerifiedEmail] admits a valid session on a verified account.
//   - [RequireTwoFactor] admits a valid session that has completed 2FA
//     where the account has it enrolled.
//
// Each guard reads the session cookie, calls Engine.ValidateSessionToken,
// refreshes the cookie when the session was renewed, and injects the
// session and user into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics (cookies, status codes) into
// Engine calls. It does NOT implement authentication logic itself; all
// decisions are delegated to the Engine.
//
// # What this package must NOT do
//
//   - Read or write the store directly (the Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from the Engine and
//     the declared enforcement level.
//   - Log token values.
package middleware
