// Package wstime contains time-related utilities.
package wstime

import "time"

// Timer is a scheduled function that can be cancelled.
type Timer interface {
	// Stop prevents the function from running.  stopped is false if the
	// function has already run or has already been stopped.
	Stop() (stopped bool)
}

// Scheduler runs functions after a delay.
type Scheduler interface {
	// AfterFunc runs f in its own goroutine after d has passed.
	AfterFunc(d time.Duration, f func()) (t Timer)
}

// SystemScheduler is a [Scheduler] that uses the timers from package time.
type SystemScheduler struct{}

// type check
var _ Scheduler = SystemScheduler{}

// AfterFunc implements the [Scheduler] interface for SystemScheduler.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) (t Timer) {
	return time.AfterFunc(d, f)
}
