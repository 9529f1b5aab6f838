// Package module mounts content hashing under /h using modkit
package module

import (
	"net/http"

	modkit "hma/internal/modkit"
	"hma/internal/modkit/httpkit"
	str "hma/internal/platform/strings"
	hasherhttp "hma/internal/services/hasher/http"
)

// Module implements the modkit.Module interface
type Module struct {
	name   string
	prefix string
	mws    []func(http.Handler) http.Handler

	subrouter func(httpkit.Router) httpkit.Router
	register  func(httpkit.Router)
}

// New constructs the hasher module over deps.Hasher, which must be set
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	if deps.Hasher == nil {
		panic("hasher module requires deps.Hasher")
	}
	b := modkit.Build(append([]modkit.Option{modkit.WithName("hasher"), modkit.WithPrefix("/h")}, opts...)...)
	m := &Module{
		name:      b.Name,
		prefix:    b.Prefix,
		mws:       b.Mw,
		subrouter: b.Subrouter,
	}
	external := b.Register
	m.register = func(r httpkit.Router) {
		hasherhttp.Register(r, deps.Hasher)
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
		m.register(rr)
	})
}

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.prefix) }

// Middlewares returns the module middlewares
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
