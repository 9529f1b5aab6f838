package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	perr "hma/internal/platform/errors"
)

// Param returns a path parameter
func Param(r *http.Request, name string) string { return chi.URLParam(r, name) }

// ParamInt64 parses a path parameter as an id
func ParamInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, perr.WithField(perr.Validationf("%s must be a positive integer", name), name)
	}
	return v, nil
}

// QueryString returns a trimmed query parameter
func QueryString(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// QueryInt parses an optional integer query parameter, def when absent
func QueryInt(r *http.Request, name string, def int) (int, error) {
	s := QueryString(r, name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, perr.WithField(perr.Validationf("%s must be an integer", name), name)
	}
	return v, nil
}

// QueryFloat parses an optional float query parameter, def when absent
func QueryFloat(r *http.Request, name string, def float64) (float64, error) {
	s := QueryString(r, name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, perr.WithField(perr.Validationf("%s must be a number", name), name)
	}
	return v, nil
}

// QueryBool parses an optional boolean query parameter, def when absent
func QueryBool(r *http.Request, name string, def bool) (bool, error) {
	s := QueryString(r, name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, perr.WithField(perr.Validationf("%s must be true or false", name), name)
	}
	return v, nil
}
