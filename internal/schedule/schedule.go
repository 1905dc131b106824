// Package schedule abstracts deferred callbacks so timer-driven components
// can be exercised deterministically in tests.
package schedule

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or is running.
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

// Real returns a Scheduler backed by time.AfterFunc.
func Real() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
