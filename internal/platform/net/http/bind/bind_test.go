package bind

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perr "hma/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

type addContent struct {
	Signals  map[string]string `json:"signal_type_to_signal_str" validate:"required,min=1"`
	Note     string            `json:"note" validate:"omitempty,max=8"`
	Distance int               `json:"distance" validate:"min=0,max=31"`
}

func post(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/c/bank/SAMPLE/content", strings.NewReader(body))
}

func TestParseJSON_OK(t *testing.T) {
	got, err := ParseJSON[addContent](post(`{"signal_type_to_signal_str":{"pdq":"abc"},"distance":31}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Signals["pdq"] != "abc" || got.Distance != 31 {
		t.Fatalf("got %+v", got)
	}
}

func TestParseJSON_Errors(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		opt   JSONOptions
		code  perr.ErrorCode
		field string
		msg   string
	}{
		{name: "empty", body: "", code: perr.ErrorCodeJSON, msg: "empty body"},
		{name: "malformed", body: `{"note":`, code: perr.ErrorCodeJSON, msg: "invalid JSON"},
		{name: "unknown field", body: `{"signal_type_to_signal_str":{"pdq":"a"},"bank":"X"}`, code: perr.ErrorCodeJSON, msg: "unknown field"},
		{name: "trailing", body: `{"signal_type_to_signal_str":{"pdq":"a"}} {}`, code: perr.ErrorCodeJSON, msg: "trailing"},
		{name: "too large", body: `{"note":"` + strings.Repeat("x", 100) + `"}`, opt: JSONOptions{MaxBytes: 32}, code: perr.ErrorCodeJSON, msg: "exceeds 32 bytes"},
		{name: "required", body: `{"distance":1}`, code: perr.ErrorCodeValidation, field: "signal_type_to_signal_str", msg: "required"},
		{name: "max", body: `{"signal_type_to_signal_str":{"pdq":"a"},"distance":40}`, code: perr.ErrorCodeValidation, field: "distance", msg: "distance must be at most 31"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseJSON[addContent](post(c.body), c.opt)
			e, ok := perr.As(err)
			if !ok || e.Code() != c.code {
				t.Fatalf("err = %v", err)
			}
			if e.Field() != c.field || !strings.Contains(err.Error(), c.msg) {
				t.Fatalf("field %q msg %q", e.Field(), err.Error())
			}
		})
	}
}

func TestParseJSON_EmptyAllowed(t *testing.T) {
	// bodyless DELETE and explicit opt-in both decode to the zero value
	del := httptest.NewRequest(http.MethodDelete, "/c/bank/SAMPLE", http.NoBody)
	if _, err := ParseJSON[addContent](del); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ParseJSON[addContent](post(""), JSONOptions{AllowEmptyBody: true}); err != nil {
		t.Fatalf("allow empty: %v", err)
	}
}

func TestParseJSON_AllowUnknown(t *testing.T) {
	in, err := ParseJSON[addContent](post(`{"signal_type_to_signal_str":{"pdq":"a"},"extra":1}`), JSONOptions{AllowUnknown: true})
	if err != nil || in.Signals["pdq"] != "a" {
		t.Fatalf("got %+v %v", in, err)
	}
}

func TestRegisterValidation_Message(t *testing.T) {
	err := RegisterValidation("collab_name", func(fl validator.FieldLevel) bool {
		return strings.ToUpper(fl.Field().String()) == fl.Field().String()
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	type in struct {
		Name string `json:"name" validate:"collab_name"`
	}
	_, err = ParseJSON[in](post(`{"name":"lower"}`))
	if perr.CodeOf(err) != perr.ErrorCodeValidation || !strings.Contains(err.Error(), "name is not a valid collab_name") {
		t.Fatalf("err = %v", err)
	}
	if _, err := ParseJSON[in](post(`{"name":"UPPER"}`)); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
}
