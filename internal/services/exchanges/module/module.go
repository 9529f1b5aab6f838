// Package module wires the exchange fetch engine into the API using modkit
package module

import (
	"net/http"

	modkit "hma/internal/modkit"
	"hma/internal/modkit/httpkit"
	str "hma/internal/platform/strings"
	banksrepo "hma/internal/services/banks/repo"
	xhttp "hma/internal/services/exchanges/http"
	xrepo "hma/internal/services/exchanges/repo"
	xsvc "hma/internal/services/exchanges/service"
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

	svc *xsvc.Svc
}

// New constructs the exchanges module. Routes live under /c next to the bank store
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("exchanges"), modkit.WithPrefix("/c")}, opts...)...)
	o := FromConfig(deps.Cfg)

	svc := xsvc.New(deps.PG, xrepo.NewPG(), banksrepo.NewPG(), deps.Signals, deps.Exchanges, xsvc.Config{
		CycleBudget: o.CycleBudget,
		StaleLease:  o.StaleLease,
		Retention:   o.Retention,
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
	m.ports = Ports{Service: svc, Runner: svc, Match: svc}

	external := b.Register
	m.register = func(r httpkit.Router) {
		xhttp.Register(r, m.svc)
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
