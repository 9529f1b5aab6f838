package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hma/internal/platform/store"
	xdom "hma/internal/services/exchanges/domain"
	idom "hma/internal/services/indexer/domain"
)

type counter struct {
	fetches atomic.Int32
	builds  atomic.Int32
}

func (c *counter) FetchAll(context.Context) ([]xdom.CycleResult, error) {
	c.fetches.Add(1)
	return []xdom.CycleResult{{Collab: "A", Outcome: xdom.OutcomeOK}}, nil
}

func (c *counter) BuildAll(context.Context) ([]idom.BuildResult, error) {
	c.builds.Add(1)
	return nil, nil
}

type fakeLock struct {
	alive    atomic.Value // error
	released atomic.Bool
}

func (l *fakeLock) Alive(context.Context) error {
	if err, _ := l.alive.Load().(error); err != nil {
		return err
	}
	return nil
}

func (l *fakeLock) Release(context.Context) error { l.released.Store(true); return nil }

type fakeLocker struct {
	mu    sync.Mutex
	grant bool
	tries int
	lock  *fakeLock
}

func (f *fakeLocker) TryLock(_ context.Context, key int64) (store.Lock, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tries++
	if key != LockKey {
		return nil, false, errors.New("wrong key")
	}
	if !f.grant {
		return nil, false, nil
	}
	return f.lock, true, nil
}

func (f *fakeLocker) triesSoFar() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tries
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func run(w *Worker) (cancel func(), done chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return cancel, done
}

func TestRun_LeaderRunsBothLoops(t *testing.T) {
	c := &counter{}
	lk := &fakeLocker{grant: true, lock: &fakeLock{}}
	w := New(lk, c, c, Config{FetchEvery: 5 * time.Millisecond, BuildEvery: 5 * time.Millisecond, AliveEvery: time.Hour})

	cancel, done := run(w)
	waitFor(t, "ticks", func() bool { return c.fetches.Load() >= 2 && c.builds.Load() >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !lk.lock.released.Load() {
		t.Fatalf("lock not released on shutdown")
	}
}

func TestRun_StandbyDoesNoWork(t *testing.T) {
	c := &counter{}
	lk := &fakeLocker{}
	w := New(lk, c, c, Config{FetchEvery: time.Millisecond, StandbyEvery: time.Millisecond})

	cancel, done := run(w)
	waitFor(t, "retries", func() bool { return lk.triesSoFar() >= 3 })
	cancel()
	<-done
	if c.fetches.Load() != 0 || c.builds.Load() != 0 {
		t.Fatalf("standby worked: fetches=%d builds=%d", c.fetches.Load(), c.builds.Load())
	}
}

func TestRun_LostLockStepsDown(t *testing.T) {
	c := &counter{}
	lock := &fakeLock{}
	lk := &fakeLocker{grant: true, lock: lock}
	w := New(lk, c, c, Config{FetchEvery: time.Hour, BuildEvery: time.Hour, StandbyEvery: time.Millisecond, AliveEvery: time.Millisecond})

	cancel, done := run(w)
	defer func() { cancel(); <-done }()
	waitFor(t, "first term", func() bool { return c.fetches.Load() == 1 })

	lock.alive.Store(errors.New("conn closed"))
	waitFor(t, "release", func() bool { return lock.released.Load() })
	waitFor(t, "re-election", func() bool { return lk.triesSoFar() >= 2 })
}

func TestRun_NoLocker(t *testing.T) {
	c := &counter{}
	w := New(nil, c, c, Config{FetchEvery: time.Hour, BuildEvery: time.Hour})

	cancel, done := run(w)
	waitFor(t, "first ticks", func() bool { return c.fetches.Load() == 1 && c.builds.Load() == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
