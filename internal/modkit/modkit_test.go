package modkit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"hma/internal/modkit/httpkit"
	phttp "hma/internal/platform/net/http"
)

type lookupPorts struct{ Banks []string }

func TestBuild_Defaults(t *testing.T) {
	t.Parallel()
	b := Build()
	if b.Name != "" || b.Prefix != "" || b.Ports != nil || b.SwaggerOn || len(b.Mw) != 0 {
		t.Fatalf("built = %+v", b)
	}
	r := phttp.AdaptChi(chi.NewRouter())
	if b.Subrouter(r) != r {
		t.Fatal("default subrouter should be identity")
	}
	b.Register(r)
}

func TestBuild_Options(t *testing.T) {
	t.Parallel()

	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	shared := []func(http.Handler) http.Handler{tag("a")}
	b := Build(
		WithName("matcher"),
		WithPrefix("/c"),
		WithPrefix("/m"),
		WithMiddlewares(shared...),
		WithMiddlewares(tag("b")),
		WithSwagger(true),
		WithPorts(lookupPorts{Banks: []string{"SAMPLE"}}),
		WithRegister(func(r httpkit.Router) {
			httpkit.Get(r, "/lookup", func(*http.Request) (any, error) { return "ok", nil })
		}),
	)
	if b.Name != "matcher" || b.Prefix != "/m" || !b.SwaggerOn {
		t.Fatalf("built = %+v", b)
	}
	if p, ok := b.Ports.(lookupPorts); !ok || p.Banks[0] != "SAMPLE" {
		t.Fatalf("ports = %#v", b.Ports)
	}

	// Build copies the middleware slice
	shared[0] = tag("x")

	r := phttp.AdaptChi(chi.NewRouter())
	r.Route(b.Prefix, func(rr phttp.Router) {
		for _, mw := range b.Mw {
			rr.Use(mw)
		}
		b.Register(b.Subrouter(rr))
	})
	rec := httptest.NewRecorder()
	r.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/m/lookup", nil))
	if rec.Code != http.StatusOK || len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("code %d order %v", rec.Code, order)
	}
}
