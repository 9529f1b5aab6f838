package http

import "net/http"

// Handler is the plain handler shape module routes are written against
type Handler = func(http.ResponseWriter, *http.Request)

// Router is what /c, /m, /h and /meta modules mount on. It is scoped to the
// module prefix by the time a module sees it
type Router interface {
	Get(path string, h Handler)
	Post(path string, h Handler)
	Put(path string, h Handler)
	Patch(path string, h Handler)
	Delete(path string, h Handler)
	// Method covers the rest, HEAD /status for load balancer checks mostly
	Method(method, path string, h Handler)

	Handle(path string, h http.Handler)
	Use(mw ...func(http.Handler) http.Handler)
	Group(fn func(Router))
	Route(pattern string, fn func(Router))

	Mux() http.Handler
}
