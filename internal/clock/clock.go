// Package clock centralizes "current time" reads and timer creation so that
// time-dependent components can be driven by a fake clock in tests.
package clock

import "time"

// Clock is the single source of time for the scheduler and countdown timers.
type Clock interface {
	Now() time.Time
	// AfterFunc waits for d to elapse and then calls f.
	// A non-positive d fires as soon as possible.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call stopped
	// the timer (false if it already fired or was stopped).
	Stop() bool
}

// Real is the wall clock backed by package time.
type Real struct{}

// New returns the wall clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}

// OrReal returns c, or the wall clock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
