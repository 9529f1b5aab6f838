package testkit

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var clock = func() time.Time { return time.Unix(0, 0) }

func TestSwap_RestoresAfterSubtest(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	t.Run("swapped", func(t *testing.T) {
		Swap(t, &clock, func() time.Time { return at })
		if !clock().Equal(at) {
			t.Fatalf("clock = %v", clock())
		}
	})
	if clock().Unix() != 0 {
		t.Fatalf("clock not restored: %v", clock())
	}
}

func TestFreeze(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	t.Run("frozen", func(t *testing.T) {
		Freeze(t, &clock, at)
		if !clock().Equal(at) || !clock().Equal(clock()) {
			t.Fatalf("clock = %v", clock())
		}
	})
	if clock().Unix() != 0 {
		t.Fatalf("clock not restored: %v", clock())
	}
}

func TestSerial_NoOverlap(t *testing.T) {
	var inside, overlaps atomic.Int32
	t.Run("group", func(t *testing.T) {
		for _, name := range []string{"a", "b", "c"} {
			t.Run(name, func(t *testing.T) {
				t.Parallel()
				Serial(t)
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(10 * time.Millisecond)
				inside.Add(-1)
			})
		}
	})
	if overlaps.Load() != 0 {
		t.Fatalf("%d serial tests overlapped", overlaps.Load())
	}
}

func TestMustContain(t *testing.T) {
	MustContain(t, "collab=SAMPLE msg=fetched", "collab=SAMPLE")
	MustPanic(t, func() { panic(strings.Repeat("x", 3)) })
}
