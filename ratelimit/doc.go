// Package ratelimit provides the request-budget primitives used by the
// engine: a refilling token bucket, an expiring (fixed-window) token bucket,
// an escalating throttler, and a Redis-backed fixed-window counter for
// multi-process deployments.
//
// The in-memory variants are mutex-guarded maps keyed by a comparable
// identifier (user ID or client IP). They are process-local: a restart
// resets all budgets, and two processes do not share state. That is an
// accepted tradeoff for abuse mitigation; it is not a hard security limit.
// Deployments that need a shared budget use [FixedWindowLimiter].
//
// All in-memory operations are O(1), never block, and never return errors.
// A denied Check or Consume returns false; the caller maps that to a
// generic too-many-requests outcome.
package ratelimit
