// Package authcore is the session and credential lifecycle engine behind
// the application's sign-in surface: opaque cookie sessions with sliding
// expiration, email/password and GitHub OAuth sign-in, email verification
// challenges, TOTP second factors with recovery codes, multi-step password
// reset, and per-identity rate limiting.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the store interfaces, and value types. Durable state lives behind the
// [Store] interface implemented by the caller (memstore and pgstore ship
// ready-made implementations); secrets at rest are sealed by the secrets
// package; rate budgets live in the ratelimit package.
//
// # What this package must NOT do
//
//   - Store a bearer token: only its one-way hash is ever persisted.
//   - Render UI or email bodies. The [EmailSender] collaborator receives
//     (address, kind, code) and nothing else.
//   - Distinguish "wrong code" from "unknown account" on credential
//     failures where enumeration matters; callers get [ErrInvalidCredential]
//     either way, and rate-limit budget is consumed before any lookup.
package authcore
