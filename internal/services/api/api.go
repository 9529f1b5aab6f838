// Package api provides the HTTP API for the application
package api

import (
	"context"
	"net/http"

	"hma/internal/core/exchange"
	"hma/internal/core/hashing"
	"hma/internal/core/signal"
	"hma/internal/platform/blob"
	"hma/internal/platform/config"
	"hma/internal/platform/logger"
	"hma/internal/platform/metrics"
	phttp "hma/internal/platform/net/http"
	"hma/internal/platform/store"

	"hma/internal/modkit"
	"hma/internal/modkit/httpkit"
	"hma/internal/modkit/module"
	"hma/internal/modkit/swaggerkit"

	metamod "hma/internal/services/api/meta/module"
	banksmod "hma/internal/services/banks/module"
	xmod "hma/internal/services/exchanges/module"
	hashermod "hma/internal/services/hasher/module"
	indexmod "hma/internal/services/indexer/module"
	matchmod "hma/internal/services/matcher/module"
)

// Roles switches the API surfaces on and off
type Roles struct {
	Matcher bool
	Curator bool
	Hasher  bool
}

// RolesFromConfig reads CORE_API_ROLE_*; every role is on by default
func RolesFromConfig(cfg config.Conf) Roles {
	c := cfg.Prefix("CORE_API_")
	return Roles{
		Matcher: c.MayBool("ROLE_MATCHER", true),
		Curator: c.MayBool("ROLE_CURATOR", true),
		Hasher:  c.MayBool("ROLE_HASHER", true),
	}
}

// Options are the API options
type Options struct {
	Config    config.Conf
	Store     *store.Store
	Signals   *signal.Registry
	Exchanges *exchange.Registry
	Blobs     blob.Store
	// Hasher is required by the hasher role and by content lookups
	Hasher *hashing.Hasher

	Roles          Roles
	CORSOrigins    []string
	EnableSwagger  bool
	EnableProfiler bool
}

// Mounted holds the background work of the mounted modules
type Mounted struct {
	matcher *matchmod.Module
}

// Start runs background loops until ctx ends
func (m *Mounted) Start(ctx context.Context) {
	if m.matcher != nil {
		m.matcher.Start(ctx)
	}
}

// Close releases module resources
func (m *Mounted) Close() error {
	if m.matcher != nil {
		return m.matcher.Close()
	}
	return nil
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) *Mounted {
	log := logger.Named("api")

	// shared deps for modules
	deps := modkit.Deps{
		Cfg:       opt.Config,
		PG:        opt.Store.PG,
		CH:        opt.Store.CH,
		Signals:   opt.Signals,
		Exchanges: opt.Exchanges,
		Blobs:     opt.Blobs,
		Hasher:    opt.Hasher,
	}

	out := &Mounted{}
	mods := []httpkit.Prefixed{}
	add := func(m modkit.Module) { mods = append(mods, m.(httpkit.Prefixed)) }

	add(metamod.New(deps))

	var exchanges modkit.Module
	if opt.Roles.Curator || opt.Roles.Matcher {
		exchanges = xmod.New(deps)
	}
	if opt.Roles.Curator {
		add(banksmod.New(deps))
		add(exchanges)
	}
	if opt.Roles.Hasher {
		if opt.Hasher == nil {
			log.Warn().Msg("hasher role needs a hasher, skipping /h")
		} else {
			add(hashermod.New(deps))
		}
	}
	if opt.Roles.Matcher {
		// the matcher reads indices through the indexer store and flags
		// exchange records through the exchanges match port
		indexer := indexmod.New(deps)
		mm := matchmod.New(deps, modkit.WithPorts(matchmod.Needs{
			Store:   module.MustPortsOf[indexmod.Ports](indexer).Store,
			Matched: module.MustPortsOf[xmod.Ports](exchanges).Match,
		})).(*matchmod.Module)
		add(mm)
		mm.MountStatus(r)
		out.matcher = mm
	} else {
		alive := httpkit.Handle(func(*http.Request) httpkit.Response {
			return httpkit.PlainText(http.StatusOK, "I-AM-ALIVE")
		})
		r.Get("/status", alive)
		r.Method(http.MethodHead, "/status", alive)
	}

	swaggerkit.Mount(r, opt.EnableSwagger)
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)
	r.Handle("/metrics", metrics.Handler())

	stack := append([]func(http.Handler) http.Handler{metrics.HTTP}, httpkit.CommonStack(opt.CORSOrigins...)...)
	httpkit.MountPrefixed(r, stack, mods...)

	names := make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, m.Prefix())
	}
	log.Info().Strs("prefixes", names).
		Bool("matcher", opt.Roles.Matcher).
		Bool("curator", opt.Roles.Curator).
		Bool("hasher", opt.Roles.Hasher).
		Msg("api mounted")
	return out
}
