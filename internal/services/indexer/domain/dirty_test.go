package domain

import (
	"testing"
	"time"

	banksdom "hma/internal/services/banks/domain"
)

func TestDirty(t *testing.T) {
	t.Parallel()
	sec := int64(time.Second / time.Microsecond)
	base := banksdom.Checkpoint{LastID: 10, LastTS: 100 * sec, Count: 50}

	cases := []struct {
		name     string
		last     *banksdom.Checkpoint
		target   banksdom.Checkpoint
		minCount int64
		maxAge   time.Duration
		want     bool
	}{
		{"never built", nil, base, 1, 0, true},
		{"unchanged", &base, base, 1, 0, false},
		{"one new signal", &base, banksdom.Checkpoint{LastID: 11, LastTS: 101 * sec, Count: 51}, 1, 0, true},
		{"removal keeps newest", &base, banksdom.Checkpoint{LastID: 10, LastTS: 100 * sec, Count: 49}, 1, 0, true},
		{"swap keeps count", &base, banksdom.Checkpoint{LastID: 12, LastTS: 102 * sec, Count: 50}, 1, 0, true},
		{"below count", &base, banksdom.Checkpoint{LastID: 12, LastTS: 102 * sec, Count: 52}, 10, 0, false},
		{"count reached", &base, banksdom.Checkpoint{LastID: 20, LastTS: 102 * sec, Count: 60}, 10, 0, true},
		{"aged", &base, banksdom.Checkpoint{LastID: 12, LastTS: 200 * sec, Count: 52}, 10, time.Minute, true},
		{"not aged", &base, banksdom.Checkpoint{LastID: 12, LastTS: 130 * sec, Count: 52}, 10, time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := Dirty(tc.last, tc.target, tc.minCount, tc.maxAge)
			if got != tc.want {
				t.Fatalf("Dirty = %v (%s), want %v", got, reason, tc.want)
			}
		})
	}
}
