// Package cache holds the deserialized index of every signal type served by this process
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"hma/internal/core/signal"
	"hma/internal/platform/blob"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
	indexdom "hma/internal/services/indexer/domain"
)

// Loader reads stored indices; the indexer store port satisfies it
type Loader interface {
	Info(ctx context.Context, signalType string) (indexdom.Info, bool, error)
	Load(ctx context.Context, signalType string) (indexdom.Info, []byte, error)
}

// Snapshot is one loaded index. A nil Index means nothing was built yet
type Snapshot struct {
	Index    signal.Index
	Info     indexdom.Info
	LoadedAt time.Time
	Version  uint64
}

// Built reports whether the snapshot holds an index
func (s *Snapshot) Built() bool { return s != nil && s.Index != nil }

// Config holds cache tunables
type Config struct {
	// Grace is how long a snapshot is served before a query checks the store; <=0 -> 60s
	Grace time.Duration
	// Local keeps downloaded payloads on disk across restarts, optional
	Local *blob.Cache
}

type entry struct {
	st   signal.SignalType
	snap atomic.Pointer[Snapshot]
	// checked is the unix nano time the store last confirmed snap
	checked atomic.Int64
}

// Cache serves at most one index per signal type. Reads are lock free;
// reloads of one type are collapsed into a single load
type Cache struct {
	loader  Loader
	entries map[string]*entry
	cfg     Config
	sf      singleflight.Group
	version atomic.Uint64

	now func() time.Time
}

// New builds an empty cache over every installed signal type
func New(loader Loader, reg *signal.Registry, cfg Config) *Cache {
	if loader == nil || reg == nil {
		panic("cache requires a loader and a signal registry")
	}
	if cfg.Grace <= 0 {
		cfg.Grace = 60 * time.Second
	}
	c := &Cache{loader: loader, entries: map[string]*entry{}, cfg: cfg, now: time.Now}
	for _, st := range reg.SignalTypes() {
		c.entries[st.Name()] = &entry{st: st}
	}
	return c
}

// Get returns the snapshot of signalType, checking the store first when the
// last confirmation is older than the grace period. A store failure keeps
// serving the previous snapshot when there is one
func (c *Cache) Get(ctx context.Context, signalType string) (*Snapshot, error) {
	e, ok := c.entries[signalType]
	if !ok {
		return nil, perr.WithField(perr.NotFoundf("signal type %q is not installed", signalType), "signal_type")
	}
	snap := e.snap.Load()
	if snap != nil && c.now().Sub(time.Unix(0, e.checked.Load())) < c.cfg.Grace {
		return snap, nil
	}
	fresh, err := c.reload(ctx, e)
	if err != nil {
		if snap != nil {
			logger.C(ctx).Warn().Err(err).Str("signal_type", signalType).Msg("index reload failed, serving previous")
			return snap, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Peek returns the current snapshot without touching the store
func (c *Cache) Peek(signalType string) (*Snapshot, time.Time, bool) {
	e, ok := c.entries[signalType]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.snap.Load(), time.Unix(0, e.checked.Load()), true
}

// Refresh checks every signal type against the store and reloads the changed ones
func (c *Cache) Refresh(ctx context.Context) error {
	var errs []error
	for name, e := range c.entries {
		if _, err := c.reload(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Run refreshes every interval until ctx ends
func (c *Cache) Run(ctx context.Context, every time.Duration) {
	log := logger.Named("matcher")
	if err := c.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial index load")
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("index refresh")
			}
		}
	}
}

// Stale lists signal types whose last confirmation is older than maxAge
func (c *Cache) Stale(maxAge time.Duration) []string {
	var out []string
	now := c.now()
	for name, e := range c.entries {
		if now.Sub(time.Unix(0, e.checked.Load())) > maxAge {
			out = append(out, name)
		}
	}
	return out
}

func (c *Cache) reload(ctx context.Context, e *entry) (*Snapshot, error) {
	name := e.st.Name()
	v, err, _ := c.sf.Do(name, func() (any, error) {
		// the flight outlives a cancelled caller that shares it
		ctx := context.WithoutCancel(ctx)
		info, ok, err := c.loader.Info(ctx, name)
		if err != nil {
			return nil, err
		}
		cur := e.snap.Load()
		if !ok {
			cur = &Snapshot{LoadedAt: c.now(), Version: c.version.Add(1)}
			e.snap.Store(cur)
			e.checked.Store(c.now().UnixNano())
			return cur, nil
		}
		if cur.Built() && same(cur.Info, info) {
			e.checked.Store(c.now().UnixNano())
			return cur, nil
		}
		next, err := c.load(ctx, e.st, info)
		if err != nil {
			return nil, err
		}
		e.snap.Store(next)
		e.checked.Store(c.now().UnixNano())
		logger.Named("matcher").Info().
			Str("signal_type", name).
			Int64("count", next.Info.Checkpoint.Count).
			Int("entries", next.Index.Len()).
			Uint64("version", next.Version).
			Msg("index loaded")
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) load(ctx context.Context, st signal.SignalType, want indexdom.Info) (*Snapshot, error) {
	key := localKey(want)
	var payload []byte
	if c.cfg.Local != nil {
		if b, err := c.cfg.Local.Get(key); err == nil {
			payload = b
		}
	}
	info := want
	if payload == nil {
		var err error
		if info, payload, err = c.loader.Load(ctx, st.Name()); err != nil {
			return nil, err
		}
		if c.cfg.Local != nil && same(info, want) {
			if err := c.cfg.Local.Put(localKey(info), payload); err != nil {
				logger.C(ctx).Warn().Err(err).Msg("local index cache write")
			}
		}
	}
	idx, err := st.LoadIndex(payload)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "decode %s index", st.Name())
	}
	return &Snapshot{Index: idx, Info: info, LoadedAt: c.now(), Version: c.version.Add(1)}, nil
}

func same(a, b indexdom.Info) bool {
	return a.Checkpoint == b.Checkpoint && a.UpdatedAt.Equal(b.UpdatedAt)
}

func localKey(i indexdom.Info) string {
	return fmt.Sprintf("index/%s/%d/%d/%d/%d",
		i.SignalType, i.Checkpoint.LastID, i.Checkpoint.LastTS, i.Checkpoint.Count, i.UpdatedAt.UnixNano())
}
