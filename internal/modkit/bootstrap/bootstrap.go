// Package bootstrap opens the shared process wiring every hma binary starts from
package bootstrap

import (
	"context"
	"fmt"

	"hma/internal/core/signal/builtin"
	"hma/internal/modkit"
	"hma/internal/platform/config"
	"hma/internal/platform/logger"
	"hma/internal/platform/store"

	xmod "hma/internal/services/exchanges/module"
	hashermod "hma/internal/services/hasher/module"
	indexmod "hma/internal/services/indexer/module"
)

// Runtime is an opened process: config, store, registries and the deps bundle
type Runtime struct {
	Config config.Conf
	Store  *store.Store
	Deps   modkit.Deps

	closers []func() error
}

// SignalOptions reads CORE_SIGNAL_DISABLED_CONTENT and CORE_SIGNAL_EXTENSIONS
func SignalOptions(cfg config.Conf) builtin.Options {
	c := cfg.Prefix("CORE_SIGNAL_")
	return builtin.Options{
		DisabledContent: c.MayCSV("DISABLED_CONTENT", nil),
		Extensions:      c.MayCSV("EXTENSIONS", nil),
	}
}

// Open loads .env, initialises logging for role and opens everything the
// modules need. Close must run on every exit path
func Open(ctx context.Context, role string) (*Runtime, error) {
	config.LoadDotEnv()

	lo := logger.FromEnv()
	if lo.Service == "" {
		lo.Service = "hma-" + role
	}
	logger.Init(lo)
	l := logger.Get()

	root := config.New()
	st, err := store.Open(ctx, store.ConfigFromEnv(root, role), store.WithLogger(*l))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	rt := &Runtime{Config: root, Store: st}
	rt.closers = append(rt.closers, func() error { return st.Close(context.Background()) })
	if err := st.Guard(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("store guard: %w", err)
	}

	signals, err := builtin.Registry(SignalOptions(root))
	if err != nil {
		rt.Close()
		return nil, err
	}
	exchanges, err := xmod.FromConfig(root).Registry()
	if err != nil {
		rt.Close()
		return nil, err
	}
	blobs, closeBlobs, err := indexmod.FromConfig(root).OpenBlobs(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open index blobs: %w", err)
	}
	rt.closers = append(rt.closers, closeBlobs)

	rt.Deps = modkit.Deps{
		Log:       *l,
		Cfg:       root,
		PG:        st.PG,
		CH:        st.CH,
		Signals:   signals,
		Exchanges: exchanges,
		Blobs:     blobs,
		Hasher:    hashermod.FromConfig(root).Hasher(signals),
	}
	l.Info().
		Str("role", role).
		Strs("signal_types", signals.Names()).
		Bool("clickhouse", st.CH != nil).
		Msg("runtime opened")
	return rt, nil
}

// Close releases everything Open acquired, newest first
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.Get().Error().Err(err).Msg("runtime close")
		}
	}
	rt.closers = nil
}
