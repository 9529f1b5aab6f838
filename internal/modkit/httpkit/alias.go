// Package httpkit provides handler and routing helpers that alias the platform http package
// use these from modules so they do not import internal/platform/net/http directly
package httpkit

import (
	"net/http"

	phttp "hma/internal/platform/net/http"
	"hma/internal/platform/net/http/bind"

	"github.com/go-playground/validator/v10"
)

type (
	// Response is the HTTP response type
	Response = phttp.Response

	// Handler is the platform handler type
	Handler = phttp.Handler

	// Router is a re-export of the platform router seam
	Router = phttp.Router
)

// Created returns a 201 response
func Created(data any) Response { return phttp.Created(data) }

// List returns a 200 response with items and pagination
func List(items any, total, page, size int) Response {
	return phttp.List(items, total, page, size)
}

// Handle adapts a Response-returning function
func Handle(fn func(*http.Request) Response) Handler {
	return phttp.Handle(fn)
}

// reply turns a handler result into a Response. A returned Response passes through
func reply(out any, err error) Response {
	if err != nil {
		return phttp.Error(err)
	}
	if resp, ok := out.(phttp.Response); ok {
		return resp
	}
	return phttp.OK(out)
}

// JSON decodes and validates the body into T before calling fn
func JSON[T any](fn func(*http.Request, T) (any, error)) Handler {
	return Handle(func(r *http.Request) Response {
		in, err := bind.ParseJSON[T](r)
		if err != nil {
			return phttp.Error(err)
		}
		return reply(fn(r, in))
	})
}

// Call adapts a handler that takes no JSON body
func Call(fn func(*http.Request) (any, error)) Handler {
	return Handle(func(r *http.Request) Response { return reply(fn(r)) })
}

// Param returns a path parameter
func Param(r *http.Request, name string) string { return phttp.Param(r, name) }

// ParamInt64 parses a positive integer path parameter
func ParamInt64(r *http.Request, name string) (int64, error) { return phttp.ParamInt64(r, name) }

// Query returns a trimmed query parameter
func Query(r *http.Request, name string) string { return phttp.QueryString(r, name) }

// QueryInt parses an optional integer query parameter
func QueryInt(r *http.Request, name string, def int) (int, error) {
	return phttp.QueryInt(r, name, def)
}

// QueryFloat parses an optional float query parameter
func QueryFloat(r *http.Request, name string, def float64) (float64, error) {
	return phttp.QueryFloat(r, name, def)
}

// QueryBool parses an optional boolean query parameter
func QueryBool(r *http.Request, name string, def bool) (bool, error) {
	return phttp.QueryBool(r, name, def)
}

// PlainText returns a text/plain response
func PlainText(status int, body string) Response { return phttp.PlainText(status, body) }

// Decode parses and validates a JSON body into T
func Decode[T any](r *http.Request) (T, error) { return bind.ParseJSON[T](r) }

// RegisterStringRule registers a validate tag that checks a string field with ok
func RegisterStringRule(tag string, ok func(string) bool) error {
	return bind.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return ok(fl.Field().String())
	})
}
