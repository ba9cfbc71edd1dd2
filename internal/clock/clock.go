// Package clock abstracts wall time so timers and expiry logic can be
// driven deterministically in tests.
package clock

import "time"

// Clock supplies the current time and one-shot timers.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// System is the wall clock. Times are truncated to milliseconds, which is
// the resolution the store persists.
type System struct{}

// Now returns the current UTC time at millisecond resolution.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// AfterFunc wraps time.AfterFunc.
func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
