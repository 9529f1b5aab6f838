package domain

import (
	"time"

	banksdom "hma/internal/services/banks/domain"
)

// Dirty reports whether target has moved far enough past the last build to rebuild.
// A missing build is always dirty. Any change of the newest id or timestamp counts
// as at least one signal, so removals that keep the count steady still register.
// maxAge <= 0 turns the time rule off
func Dirty(last *banksdom.Checkpoint, target banksdom.Checkpoint, minCount int64, maxAge time.Duration) (bool, string) {
	if last == nil {
		return true, "never built"
	}
	if *last == target {
		return false, "up to date"
	}
	delta := target.Count - last.Count
	if delta < 0 {
		delta = -delta
	}
	if delta == 0 {
		delta = 1
	}
	if minCount <= 1 || delta >= minCount {
		return true, "signals changed"
	}
	if maxAge > 0 && target.Time().Sub(last.Time()) >= maxAge {
		return true, "newest signal aged past threshold"
	}
	return false, "below dirty threshold"
}
