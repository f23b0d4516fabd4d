// Package lockout models second-factor lockout as a pure value type.
// Expiry is lazy: a function of (now, locked_at, window) evaluated on each
// access, never a background timer.
package lockout

import "time"

// Status is the per-user lockout state read from and written to storage.
// The zero value is Unlocked(0).
type Status struct {
	Attempts int
	LockedAt *time.Time
}

// Locked reports whether the user is currently blocked from submitting a
// one-time code.
func (s Status) Locked(now time.Time, window time.Duration) bool {
	return s.LockedAt != nil && now.Sub(*s.LockedAt) < window
}

// Expired reports whether a past lockout has aged out of the window; the
// state is then treated as unlocked and the counter may be reset on the
// next attempt.
func (s Status) Expired(now time.Time, window time.Duration) bool {
	return s.LockedAt != nil && now.Sub(*s.LockedAt) >= window
}
