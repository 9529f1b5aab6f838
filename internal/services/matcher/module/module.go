// Package module wires the match service into the API using modkit
package module

import (
	"context"
	"net/http"

	modkit "hma/internal/modkit"
	"hma/internal/modkit/httpkit"
	"hma/internal/platform/blob"
	"hma/internal/platform/logger"
	str "hma/internal/platform/strings"
	banksrepo "hma/internal/services/banks/repo"
	bsvc "hma/internal/services/banks/service"
	irepo "hma/internal/services/indexer/repo"
	isvc "hma/internal/services/indexer/service"
	"hma/internal/services/matcher/audit"
	"hma/internal/services/matcher/cache"
	matchhttp "hma/internal/services/matcher/http"
	msvc "hma/internal/services/matcher/service"
)

// Module implements the modkit.Module interface
type Module struct {
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     Ports
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	opts  Options
	svc   *msvc.Svc
	cache *cache.Cache
	sink  *audit.Sink
	local *blob.Cache
}

// New constructs the matcher module. Routes live under /m; /status is
// mounted separately through MountStatus
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("matcher"), modkit.WithPrefix("/m")}, opts...)...)
	o := FromConfig(deps.Cfg)
	log := logger.Named("matcher")

	needs, _ := b.Ports.(Needs)
	banks := bsvc.New(deps.PG, banksrepo.NewPG(), deps.Signals, bsvc.Config{})
	if needs.Store == nil {
		needs.Store = isvc.New(deps.PG, irepo.NewPG(), banks, deps.Signals, deps.Blobs, isvc.Config{})
	}

	m := &Module{
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		opts:      o,
	}

	if o.LocalCacheDir != "" {
		local, err := blob.OpenCache(blob.CacheConfig{Dir: o.LocalCacheDir})
		if err != nil {
			log.Warn().Err(err).Str("dir", o.LocalCacheDir).Msg("local index cache disabled")
		} else {
			m.local = local
		}
	}
	m.cache = cache.New(needs.Store, deps.Signals, cache.Config{Grace: o.CacheGrace, Local: m.local})

	d := msvc.Deps{
		Cache:   m.cache,
		Store:   needs.Store,
		Banks:   banks,
		Signals: deps.Signals,
		Hasher:  deps.Hasher,
		Matched: needs.Matched,
	}
	if deps.CH != nil {
		m.sink = audit.New(deps.CH, audit.Config{})
		d.Audit = m.sink
	}
	m.svc = msvc.New(d, msvc.Config{Strict: o.Strict, StaleAfter: o.StaleAfter()})
	m.ports = Ports{Service: m.svc}

	var maxUpload int64
	if deps.Hasher != nil {
		maxUpload = deps.Hasher.MaxBytes()
	}
	external := b.Register
	m.register = func(r httpkit.Router) {
		matchhttp.Register(r, m.svc, maxUpload)
		if external != nil {
			external(r)
		}
	}
	return m
}

// Start runs the index refresh loop and the audit sink until ctx ends
func (m *Module) Start(ctx context.Context) {
	go m.cache.Run(ctx, m.opts.CacheRefresh)
	if m.sink == nil {
		return
	}
	if err := m.sink.EnsureTable(ctx); err != nil {
		logger.Named("matcher").Warn().Err(err).Msg("lookup audit table")
	}
	go m.sink.Run(ctx)
}

// Close releases the local index cache
func (m *Module) Close() error {
	if m.local == nil {
		return nil
	}
	return m.local.Close()
}

// MountStatus mounts /status on the root router
func (m *Module) MountStatus(r httpkit.Router) { matchhttp.RegisterStatus(r, m.svc) }

// MountRoutes implements the modkit.Module interface. r is already scoped to Prefix
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Group(func(rr httpkit.Router) {
		if len(m.mws) > 0 {
			rr.Use(m.mws...)
		}
		if m.subrouter != nil {
			rr = m.subrouter(rr)
		}
		if m.register != nil {
			m.register(rr)
		}
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
