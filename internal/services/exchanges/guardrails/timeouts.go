// Package guardrails holds the fetch lease and the per cycle budgets
package guardrails

import (
	"context"
	"time"
)

// Timeouts is the budget bundle for one fetch cycle.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Cycle bounds fetching for one exchange; the cycle stops after the batch in flight
	Cycle time.Duration

	// DB caps each apply and checkpoint transaction
	DB time.Duration
}

// WithCycle returns a context limited by the cycle budget without extending any parent deadline
func WithCycle(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Cycle)
}

// ForDB returns a context for bookkeeping writes. It survives the cycle budget so a
// batch that was fetched in time is still applied and checkpointed, but it stops on
// parent cancellation
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// When d is zero it returns a simple cancelable child inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
