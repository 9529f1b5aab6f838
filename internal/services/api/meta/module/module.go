// Package module mounts the meta endpoints
package module

import (
	"net/http"
	"time"

	modkit "hma/internal/modkit"
	"hma/internal/modkit/httpkit"

	metahttp "hma/internal/services/api/meta/http"
)

// Module serves /meta. It is always mounted, whatever roles are on
type Module struct {
	prefix string
	mws    []func(http.Handler) http.Handler
	deps   metahttp.Deps
	extra  func(httpkit.Router)
}

// New builds the meta module. Probes cover every store present in deps
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	d := metahttp.Deps{ServiceName: "hma-api", StartedAt: time.Now()}
	if deps.PG != nil {
		d.Probes = append(d.Probes, metahttp.Probe{Name: "pg", Target: deps.PG})
	}
	if deps.CH != nil {
		d.Probes = append(d.Probes, metahttp.Probe{Name: "ch", Target: deps.CH})
	}
	if deps.Blobs != nil {
		d.Probes = append(d.Probes, metahttp.Probe{Name: "blobs", Target: deps.Blobs})
	}
	if deps.Signals != nil {
		d.SignalTypes = deps.Signals.Names()
	}
	if deps.Exchanges != nil {
		d.ExchangeAPIs = deps.Exchanges.Names()
	}
	return &Module{prefix: b.Prefix, mws: b.Mw, deps: d, extra: b.Register}
}

func (m *Module) MountRoutes(r httpkit.Router) {
	r.Group(func(rr httpkit.Router) {
		for _, mw := range m.mws {
			rr.Use(mw)
		}
		metahttp.Register(rr, m.deps)
		if m.extra != nil {
			m.extra(rr)
		}
	})
}

func (m *Module) Name() string                                   { return "meta" }
func (m *Module) Prefix() string                                 { return m.prefix }
func (m *Module) Middlewares() []func(http.Handler) http.Handler { return m.mws }
func (m *Module) Ports() any                                     { return nil }
