package testkit

import (
	"sync"
	"testing"
	"time"
)

// guards package-level seams such as pg.newPool and the lease clock
var seamMu sync.Mutex

// Swap replaces *target for the rest of t and puts the original back on cleanup
func Swap[T any](t *testing.T, target *T, replacement T) {
	t.Helper()
	orig := *target
	*target = replacement
	t.Cleanup(func() { *target = orig })
}

// Serial holds the seam lock until t finishes. Parallel tests that swap the
// same seam call it first
func Serial(t *testing.T) {
	t.Helper()
	seamMu.Lock()
	t.Cleanup(seamMu.Unlock)
}

// Freeze pins a package clock seam to at for the rest of t
func Freeze(t *testing.T, clock *func() time.Time, at time.Time) {
	t.Helper()
	Swap(t, clock, func() time.Time { return at })
}
