package authcore

import "errors"

var (
	// ErrRateLimited is returned when any request budget is exhausted.
	// Callers surface a generic too-many-requests message.
	ErrRateLimited = errors.New("too many requests")
	// ErrNotAuthenticated is returned for missing, unknown, or expired
	// sessions and challenges.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned for operations attempted in the wrong flow
	// state, such as verifying a second factor twice.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput is returned for missing or malformed fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredential is returned for wrong passwords, codes, and
	// recovery codes. The message is deliberately generic: callers must not
	// learn whether the target account exists.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpired is returned when a challenge code has expired. The engine
	// issues a replacement before returning it, so callers inform the user
	// rather than dead-ending them.
	ErrExpired = errors.New("code expired, a new one was issued")
	// ErrConflict is returned when a conditional write affected zero rows,
	// such as a recovery code spent concurrently by another request.
	ErrConflict = errors.New("conflict")
	// ErrEmailInUse is returned when an account already exists for the
	// given email address.
	ErrEmailInUse = errors.New("email already in use")
	// ErrPasswordPolicy is returned when a new password fails the minimum
	// length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrNotFound is the store-level sentinel for absent rows. Engine
	// methods translate it into the taxonomy above; it reaches callers only
	// through direct store use.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps infrastructure failures from the persistent
	// store. Fatal for the request; never shown verbatim to end users.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned by methods on an engine that was not
	// built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
