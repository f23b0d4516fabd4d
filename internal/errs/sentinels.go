// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDecryption indicates a malformed envelope, failed authentication tag,
	// or wrong key material. The three causes are never distinguished.
	ErrDecryption = errors.New("decryption failed")

	// ErrValidation indicates input that violates a business rule
	// (e.g., duplicate identity fingerprint, duplicate email).
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a concurrent transaction invalidated this one;
	// the caller should retry the higher-level operation.
	ErrConflict = errors.New("conflict")

	// ErrPrecondition indicates the caller invoked an operation in an
	// impossible state (programmer error, not user error).
	ErrPrecondition = errors.New("precondition failed")

	// ErrLockedOut indicates second-factor attempts are exhausted;
	// the current session must be terminated.
	ErrLockedOut = errors.New("second factor locked out")

	// ErrUnauthorized indicates a failed credential or one-time-code check.
	ErrUnauthorized = errors.New("unauthorized")
)
