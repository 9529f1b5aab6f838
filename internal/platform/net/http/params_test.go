package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	perr "hma/internal/platform/errors"
)

func withParam(r *http.Request, k, v string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(k, v)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func TestParamInt64(t *testing.T) {
	t.Parallel()
	r := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "42")
	v, err := ParamInt64(r, "id")
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
	for _, bad := range []string{"", "0", "-3", "x"} {
		r := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", bad)
		if _, err := ParamInt64(r, "id"); !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("%q: want validation error, got %v", bad, err)
		}
	}
}

func TestQueryHelpers(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/?k=5&t=0.25&b=true&bad=zz", nil)
	if v, err := QueryInt(r, "k", 1); err != nil || v != 5 {
		t.Fatalf("QueryInt = %d, %v", v, err)
	}
	if v, err := QueryInt(r, "missing", 7); err != nil || v != 7 {
		t.Fatalf("QueryInt default = %d, %v", v, err)
	}
	if v, err := QueryFloat(r, "t", 0); err != nil || v != 0.25 {
		t.Fatalf("QueryFloat = %v, %v", v, err)
	}
	if v, err := QueryBool(r, "b", false); err != nil || !v {
		t.Fatalf("QueryBool = %v, %v", v, err)
	}
	if _, err := QueryInt(r, "bad", 0); err == nil {
		t.Fatalf("expected error for bad int")
	}
	if _, err := QueryBool(r, "bad", false); err == nil {
		t.Fatalf("expected error for bad bool")
	}
}
