// Package poll provides a reusable wait loop for asynchronous remote jobs
// whose only observable interface is "refresh the status and look at it".
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout indicates the job did not reach a terminal state within the
// configured overall timeout.
var ErrTimeout = errors.New("timed out waiting for remote job")

// Waiter polls a remote job until it reports completion. The zero value is
// not usable; Interval must be set. With Timeout zero the waiter polls
// indefinitely, matching the remote job semantics of GitLab export/import
// (no server-side deadline is exposed). Backoff > 1 grows the interval
// multiplicatively up to MaxInterval.
type Waiter struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Backoff     float64
	Timeout     time.Duration
}

// Await fetches the job status via fetch until it returns done=true. The
// first fetch happens immediately; subsequent fetches are spaced by the
// (possibly backed-off) interval. A fetch error aborts the wait and is
// returned as-is so callers keep their own error granularity.
func (w Waiter) Await(ctx context.Context, fetch func(ctx context.Context) (done bool, err error)) error {
	if w.Interval <= 0 {
		return errors.New("poll: interval must be positive")
	}

	var deadline time.Time
	if w.Timeout > 0 {
		deadline = time.Now().Add(w.Timeout)
	}

	interval := w.Interval
	for {
		done, err := fetch(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if !deadline.IsZero() && time.Now().Add(interval).After(deadline) {
			return fmt.Errorf("%w (after %s)", ErrTimeout, w.Timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		if w.Backoff > 1 {
			interval = time.Duration(float64(interval) * w.Backoff)
			if w.MaxInterval > 0 && interval > w.MaxInterval {
				interval = w.MaxInterval
			}
		}
	}
}
