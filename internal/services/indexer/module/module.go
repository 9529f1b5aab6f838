// Package module wires the index builder using modkit. It mounts no routes;
// index status is served by the matcher
package module

import (
	"net/http"

	modkit "hma/internal/modkit"
	"hma/internal/modkit/httpkit"
	str "hma/internal/platform/strings"
	banksrepo "hma/internal/services/banks/repo"
	bsvc "hma/internal/services/banks/service"
	irepo "hma/internal/services/indexer/repo"
	isvc "hma/internal/services/indexer/service"
)

// Module implements the modkit.Module interface
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler
	ports  Ports
	opts   Options
}

// New constructs the indexer module over deps.Blobs
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("indexer"), modkit.WithPrefix("/m")}, opts...)...)
	o := FromConfig(deps.Cfg)

	reader := bsvc.New(deps.PG, banksrepo.NewPG(), deps.Signals, bsvc.Config{})
	svc := isvc.New(deps.PG, irepo.NewPG(), reader, deps.Signals, deps.Blobs, isvc.Config{
		Budget:     o.BuildBudget,
		DirtyCount: o.DirtyCount,
		DirtyAge:   o.DirtyAge,
		Batch:      o.Batch,
	})
	return &Module{
		name:   b.Name,
		prefix: b.Prefix,
		mws:    b.Mw,
		ports:  Ports{Builder: svc, Store: svc},
		opts:   o,
	}
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(httpkit.Router) {}

// Options returns the resolved CORE_INDEX_ options
func (m *Module) Options() Options { return m.opts }

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
