package executor

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Executor runs submitted work serially.
type Executor interface {
	// Execute enqueues fn to run after all previously enqueued work.
	Execute(fn func())
	// Schedule enqueues fn once d has elapsed. The returned Timer can cancel it.
	Schedule(d time.Duration, fn func()) Timer
	// Clock returns the time source used for scheduling.
	Clock() clock.Clock
}

// Timer is a handle to scheduled work.
type Timer interface {
	// Stop prevents the work from being enqueued. It reports whether the
	// timer was still pending.
	Stop() bool
}
