package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hma/internal/core/signal/builtin"
	"hma/internal/core/signal/pdq"
	"hma/internal/platform/blob"
	perr "hma/internal/platform/errors"
	banksdom "hma/internal/services/banks/domain"
	indexdom "hma/internal/services/indexer/domain"
)

const pdqA = "f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22"

type stored struct {
	info    indexdom.Info
	payload []byte
}

type fakeLoader struct {
	mu    sync.Mutex
	rows  map[string]stored
	fail  error
	gate  chan struct{}
	loads atomic.Int32
}

func newLoader() *fakeLoader { return &fakeLoader{rows: map[string]stored{}} }

func (l *fakeLoader) Info(_ context.Context, st string) (indexdom.Info, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return indexdom.Info{}, false, l.fail
	}
	r, ok := l.rows[st]
	return r.info, ok, nil
}

func (l *fakeLoader) Load(_ context.Context, st string) (indexdom.Info, []byte, error) {
	if l.gate != nil {
		<-l.gate
	}
	l.loads.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rows[st]
	if !ok {
		return indexdom.Info{}, nil, perr.NotFoundf("no index built for %s", st)
	}
	return r.info, r.payload, nil
}

func (l *fakeLoader) put(t *testing.T, count int64, at time.Time, ids ...int64) {
	t.Helper()
	idx := pdq.NewIndex(pdq.Threshold)
	for _, id := range ids {
		require.NoError(t, idx.Add(pdqA, id))
	}
	b, err := idx.MarshalBinary()
	require.NoError(t, err)
	l.mu.Lock()
	l.rows[pdq.Name] = stored{
		info:    indexdom.Info{SignalType: pdq.Name, Checkpoint: banksdom.Checkpoint{LastID: count, LastTS: count, Count: count}, UpdatedAt: at},
		payload: b,
	}
	l.mu.Unlock()
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newCache(t *testing.T, l Loader, cfg Config) (*Cache, *clock) {
	t.Helper()
	reg, err := builtin.Registry(builtin.Options{})
	require.NoError(t, err)
	c := New(l, reg, cfg)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c.now = clk.now
	return c, clk
}

func TestGet_BeforeAnyBuild(t *testing.T) {
	t.Parallel()
	c, _ := newCache(t, newLoader(), Config{})
	snap, err := c.Get(context.Background(), pdq.Name)
	require.NoError(t, err)
	require.False(t, snap.Built())
}

func TestGet_UnknownType(t *testing.T) {
	t.Parallel()
	c, _ := newCache(t, newLoader(), Config{})
	_, err := c.Get(context.Background(), "nope")
	require.True(t, perr.IsCode(err, perr.ErrorCodeNotFound), "got %v", err)
}

func TestGet_ReloadsAfterGrace(t *testing.T) {
	t.Parallel()
	l := newLoader()
	c, clk := newCache(t, l, Config{Grace: time.Minute})
	ctx := context.Background()

	snap, err := c.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.False(t, snap.Built())

	l.put(t, 1, clk.now(), 7)
	snap, _ = c.Get(ctx, pdq.Name)
	require.False(t, snap.Built(), "served within grace")

	clk.add(61 * time.Second)
	snap, err = c.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.True(t, snap.Built())
	ms, err := snap.Index.Query(pdqA)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	require.Equal(t, int64(7), ms[0].ID)
	require.EqualValues(t, 1, l.loads.Load())

	clk.add(2 * time.Minute)
	again, err := c.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.Same(t, snap, again, "unchanged build is not reloaded")
	require.EqualValues(t, 1, l.loads.Load())

	l.put(t, 2, clk.now(), 7, 8)
	clk.add(2 * time.Minute)
	next, err := c.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.Greater(t, next.Version, snap.Version)
	require.Equal(t, 2, next.Index.Len())
}

func TestGet_ConcurrentReloadsCollapse(t *testing.T) {
	t.Parallel()
	l := newLoader()
	l.put(t, 1, time.Unix(1, 0), 1)
	l.gate = make(chan struct{})
	c, _ := newCache(t, l, Config{})

	var wg sync.WaitGroup
	snaps := make([]*Snapshot, 16)
	for i := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Get(context.Background(), pdq.Name)
			if err == nil {
				snaps[i] = s
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(l.gate)
	wg.Wait()

	require.EqualValues(t, 1, l.loads.Load())
	for _, s := range snaps {
		require.True(t, s.Built())
	}
}

func TestGet_FailedReloadServesPrevious(t *testing.T) {
	t.Parallel()
	l := newLoader()
	l.put(t, 1, time.Unix(1, 0), 1)
	c, clk := newCache(t, l, Config{Grace: time.Second})
	ctx := context.Background()

	first, err := c.Get(ctx, pdq.Name)
	require.NoError(t, err)

	l.mu.Lock()
	l.fail = errors.New("db down")
	l.mu.Unlock()
	clk.add(time.Minute)
	snap, err := c.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.Same(t, first, snap)
	require.Contains(t, c.Stale(30*time.Second), pdq.Name)

	cold, _ := newCache(t, l, Config{})
	_, err = cold.Get(ctx, pdq.Name)
	require.Error(t, err)
}

func TestRefresh_ClearsStale(t *testing.T) {
	t.Parallel()
	l := newLoader()
	l.put(t, 1, time.Unix(1, 0), 1)
	c, _ := newCache(t, l, Config{})
	require.NotEmpty(t, c.Stale(time.Minute))

	require.NoError(t, c.Refresh(context.Background()))
	require.Empty(t, c.Stale(time.Minute))
	snap, _, ok := c.Peek(pdq.Name)
	require.True(t, ok)
	require.True(t, snap.Built())
}

func TestLocalCache_SkipsDownload(t *testing.T) {
	t.Parallel()
	local, err := blob.OpenCache(blob.CacheConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	l := newLoader()
	l.put(t, 1, time.Unix(1, 0), 1)
	ctx := context.Background()

	first, _ := newCache(t, l, Config{Local: local})
	_, err = first.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.EqualValues(t, 1, l.loads.Load())

	restarted, _ := newCache(t, l, Config{Local: local})
	snap, err := restarted.Get(ctx, pdq.Name)
	require.NoError(t, err)
	require.True(t, snap.Built())
	require.EqualValues(t, 1, l.loads.Load(), "payload came from the local cache")
}
