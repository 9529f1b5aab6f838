package httpkit

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	phttp "hma/internal/platform/net/http"
)

// routeMod mounts GET <prefix><path> answering with its path
type routeMod struct{ prefix, path string }

func (m routeMod) Prefix() string { return m.prefix }
func (m routeMod) MountRoutes(r Router) {
	r.Get(m.path, Handle(func(*http.Request) Response { return PlainText(http.StatusOK, m.path) }))
}

func TestMountPrefixed_SharedPrefix(t *testing.T) {
	r := phttp.AdaptChi(chi.NewRouter())
	var seen int
	count := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			seen++
			next.ServeHTTP(w, req)
		})
	}

	// banks and exchanges share /c; chi panics if /c is mounted twice
	MountPrefixed(r, []func(http.Handler) http.Handler{count},
		routeMod{"/c", "/banks"},
		routeMod{"/c", "/exchanges"},
		routeMod{"/m", "/lookup"},
	)

	for _, path := range []string{"/c/banks", "/c/exchanges", "/m/lookup"} {
		rec := send(r.Mux(), http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}
	if seen != 3 {
		t.Fatalf("middleware ran %d times, want 3", seen)
	}
	if rec := send(r.Mux(), http.MethodGet, "/h/hash", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unmounted prefix = %d", rec.Code)
	}
}

func TestMountPrefixed_NoMiddleware(t *testing.T) {
	r := phttp.AdaptChi(chi.NewRouter())
	MountPrefixed(r, nil, routeMod{"/h", "/hash"})
	if rec := send(r.Mux(), http.MethodGet, "/h/hash", ""); rec.Code != http.StatusOK || rec.Body.String() != "/hash" {
		t.Fatalf("GET /h/hash = %d %q", rec.Code, rec.Body)
	}
}
