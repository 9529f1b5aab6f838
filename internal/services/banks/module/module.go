// Package module wires the bank store into the API using modkit
package module

import (
	"net/http"

	modkit "hma/internal/modkit"
	"hma/internal/modkit/httpkit"
	str "hma/internal/platform/strings"
	bankshttp "hma/internal/services/banks/http"
	banksrepo "hma/internal/services/banks/repo"
	bankssvc "hma/internal/services/banks/service"
)

// Module implements the modkit.Module interface
type Module struct {
	deps   modkit.Deps
	name   string
	prefix string

	mws       []func(http.Handler) http.Handler
	ports     Ports
	swaggerOn bool

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)

	svc bankssvc.Service
}

// New constructs the banks module. Routes live under /c
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("banks"), modkit.WithPrefix("/c")}, opts...)...)
	o := FromConfig(deps.Cfg)

	svc := bankssvc.New(deps.PG, banksrepo.NewPG(), deps.Signals, bankssvc.Config{
		HorizonYear: o.DisableHorizonYear,
		MaxPageSize: o.MaxPageSize,
	})

	m := &Module{
		deps:      deps,
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		swaggerOn: b.SwaggerOn,
		subrouter: b.Subrouter,
		svc:       svc,
	}
	m.ports = Ports{Service: svc, Reader: svc}

	var hasher bankshttp.ContentHasher
	if deps.Hasher != nil {
		hasher = deps.Hasher
	}
	external := b.Register
	m.register = func(r httpkit.Router) {
		bankshttp.Register(r, m.svc, hasher)
		if external != nil {
			external(r)
		}
	}
	return m
}

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
