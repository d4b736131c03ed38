package progress

import (
	"context"
	"time"

	"github.com/joseph-ayodele/packing-tracker/internal/async"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports false if the
	// callback already ran or was stopped.
	Stop() bool
}

// Scheduler is the clock and timer source of a view. Tests substitute a
// manual implementation to drive debounce and grace windows.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler uses the wall clock.
type SystemScheduler struct{}

func (SystemScheduler) Now() time.Time { return time.Now() }

func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Runner executes flush tasks outside the caller's goroutine. Tasks with
// the same key must run in submission order.
type Runner interface {
	Submit(ctx context.Context, task async.Task) error
}
