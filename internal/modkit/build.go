package modkit

import (
	"net/http"

	"hma/internal/modkit/httpkit"
)

// Option configures a module at construction
type Option func(*Built)

// Built is the resolved option set a module constructor reads
type Built struct {
	Name      string
	Prefix    string
	Mw        []func(http.Handler) http.Handler
	Ports     any
	SwaggerOn bool

	// Subrouter wraps the module router before routes are added. Identity by default
	Subrouter func(httpkit.Router) httpkit.Router
	// Register adds routes after the module's own. No-op by default
	Register func(httpkit.Router)
}

func WithName(name string) Option     { return func(b *Built) { b.Name = name } }
func WithPrefix(prefix string) Option { return func(b *Built) { b.Prefix = prefix } }
func WithSwagger(on bool) Option      { return func(b *Built) { b.SwaggerOn = on } }

// WithMiddlewares appends per-module middleware; earlier ones run first
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(b *Built) { b.Mw = append(b.Mw, mw...) }
}

// WithPorts hands a module the ports it needs from its peers. The concrete
// type belongs to the receiving module
func WithPorts[T any](p T) Option { return func(b *Built) { b.Ports = p } }

func WithSubrouter(fn func(httpkit.Router) httpkit.Router) Option {
	return func(b *Built) { b.Subrouter = fn }
}

func WithRegister(fn func(httpkit.Router)) Option { return func(b *Built) { b.Register = fn } }

// Build applies opts in order. Later options win
func Build(opts ...Option) Built {
	var b Built
	for _, o := range opts {
		o(&b)
	}
	b.Mw = append([]func(http.Handler) http.Handler(nil), b.Mw...)
	if b.Subrouter == nil {
		b.Subrouter = func(r httpkit.Router) httpkit.Router { return r }
	}
	if b.Register == nil {
		b.Register = func(httpkit.Router) {}
	}
	return b
}
