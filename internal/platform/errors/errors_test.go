package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFoundf("bank %q", "SAMPLE"), http.StatusNotFound},
		{InvalidArgf("bad"), http.StatusUnprocessableEntity},
		{DuplicateKeyf("bank exists"), http.StatusConflict},
		{InUsef("bank imported"), http.StatusConflict},
		{Validationf("bad hash"), http.StatusBadRequest},
		{JSONErrf("empty body"), http.StatusBadRequest},
		{OutOfRangef("threshold"), http.StatusBadRequest},
		{NotSupportedf("no signal"), http.StatusNotImplemented},
		{Unauthorizedf("token"), http.StatusUnauthorized},
		{Forbiddenf("role"), http.StatusForbidden},
		{Unavailablef("index loading"), http.StatusServiceUnavailable},
		{PanicErrf("boom"), http.StatusInternalServerError},
		{stderrs.New("foreign"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
	if HTTPStatusCode(ErrorCode(999)) != http.StatusInternalServerError {
		t.Fatal("unmapped code should be 500")
	}
}

func TestError_WrapAndUnwrap(t *testing.T) {
	var nilErr *Error
	if nilErr.Error() != "<nil>" {
		t.Fatalf("nil render %q", nilErr.Error())
	}

	cause := stderrs.New("dial tcp: refused")
	err := Wrapf(cause, ErrorCodeUnavailable, "fetch %s", "SAMPLE")
	if err.Error() != "fetch SAMPLE: dial tcp: refused" {
		t.Fatalf("render %q", err.Error())
	}
	if !stderrs.Is(err, cause) || Root(fmt.Errorf("cycle: %w", err)) != cause {
		t.Fatal("cause lost")
	}
	if !IsCode(fmt.Errorf("outer: %w", err), ErrorCodeUnavailable) {
		t.Fatal("code lost through fmt wrap")
	}
	if _, ok := As(cause); ok || CodeOf(cause) != ErrorCodeUnknown {
		t.Fatal("foreign error classified")
	}
}

func TestWithField_CopiesOnWrite(t *testing.T) {
	base := Validationf("bad hash")
	named := WithField(base, "signal_value")

	if e, _ := As(base); e.Field() != "" {
		t.Fatalf("base mutated: %q", e.Field())
	}
	if e, _ := As(named); e.Field() != "signal_value" || e.Code() != ErrorCodeValidation {
		t.Fatalf("named = %#v", e)
	}
	foreign := stderrs.New("x")
	if WithField(foreign, "f") != foreign {
		t.Fatal("foreign error should pass through")
	}
}

func TestWireFrom(t *testing.T) {
	if WireFrom(nil) != (Wire{}) {
		t.Fatal("nil should be zero wire")
	}
	w := WireFrom(WithField(Wrap(stderrs.New("sql: 23505"), ErrorCodeDuplicateKey, "bank exists"), "name"))
	if w != (Wire{Code: ErrorCodeDuplicateKey, Message: "bank exists", Field: "name"}) {
		t.Fatalf("wire = %+v", w)
	}
	if w := WireFrom(stderrs.New("plain")); w.Code != ErrorCodeUnknown || w.Message != "plain" {
		t.Fatalf("foreign wire = %+v", w)
	}
}
