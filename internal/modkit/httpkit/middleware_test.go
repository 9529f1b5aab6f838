package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func stacked(h http.Handler, origins ...string) http.Handler {
	mws := CommonStack(origins...)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestCommonStack(t *testing.T) {
	calls := 0
	h := stacked(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}), "https://ops.example")

	cases := []struct {
		name   string
		path   string
		origin string
		code   int
		calls  int
	}{
		{name: "handler", path: "/m/lookup", code: http.StatusNoContent, calls: 1},
		{name: "heartbeat short circuits", path: "/health", code: http.StatusOK, calls: 1},
		{name: "trailing slash redirects", path: "/c/banks/", code: http.StatusMovedPermanently, calls: 1},
		{name: "allowed origin", path: "/c/banks", origin: "https://ops.example", code: http.StatusNoContent, calls: 2},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		h.ServeHTTP(rec, req)
		if rec.Code != tc.code || calls != tc.calls {
			t.Fatalf("%s: code %d calls %d", tc.name, rec.Code, calls)
		}
		if rec.Header().Get("X-Request-ID") == "" && tc.path != "/health" {
			t.Fatalf("%s: no request id", tc.name)
		}
		if tc.origin != "" && rec.Header().Get("Access-Control-Allow-Origin") != tc.origin {
			t.Fatalf("%s: allow origin %q", tc.name, rec.Header().Get("Access-Control-Allow-Origin"))
		}
	}
}
