// Package errors is the error taxonomy shared by every layer. Import it as perr.
//
// An *Error carries a machine code, a message safe to show API clients, an
// optional offending field and the wrapped cause. Handlers map the code to an
// HTTP status with HTTPStatus; the cause is logged, never returned.
package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an error. Codes go out on the wire; append only
type ErrorCode uint16

const (
	ErrorCodeUnknown ErrorCode = iota
	// ErrorCodePanic marks a recovered handler panic
	ErrorCodePanic
	// ErrorCodeUnavailable is a dependency that is down or not ready yet (an index
	// before its first load, an exchange API timing out); retrying may work
	ErrorCodeUnavailable
	ErrorCodeConflict
	ErrorCodeUnauthorized
	ErrorCodeForbidden
	// ErrorCodeInvalidArgument is well-formed input the operation cannot accept
	ErrorCodeInvalidArgument
	// ErrorCodeValidation is malformed input: bad hashes, missing fields, bad names
	ErrorCodeValidation
	ErrorCodeJSON
	ErrorCodeNotFound
	ErrorCodeDuplicateKey
	ErrorCodeDB
	// ErrorCodeOutOfRange is a value outside its documented bounds (thresholds, ratios)
	ErrorCodeOutOfRange
	// ErrorCodeNotImplemented is an optional capability a type does not provide
	ErrorCodeNotImplemented
)

var statusByCode = map[ErrorCode]int{
	ErrorCodeNotFound:        http.StatusNotFound,
	ErrorCodeInvalidArgument: http.StatusUnprocessableEntity,
	ErrorCodeDuplicateKey:    http.StatusConflict,
	ErrorCodeConflict:        http.StatusConflict,
	ErrorCodeValidation:      http.StatusBadRequest,
	ErrorCodeJSON:            http.StatusBadRequest,
	ErrorCodeOutOfRange:      http.StatusBadRequest,
	ErrorCodeNotImplemented:  http.StatusNotImplemented,
	ErrorCodeUnauthorized:    http.StatusUnauthorized,
	ErrorCodeForbidden:       http.StatusForbidden,
	ErrorCodeUnavailable:     http.StatusServiceUnavailable,
}

// HTTPStatusCode maps a code to its response status, 500 when unmapped
func HTTPStatusCode(c ErrorCode) int {
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is the structured error
type Error struct {
	code  ErrorCode
	msg   string
	field string
	orig  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig == nil {
		return e.msg
	}
	return e.msg + ": " + e.orig.Error()
}

func (e *Error) Unwrap() error   { return e.orig }
func (e *Error) Code() ErrorCode { return e.code }
func (e *Error) Field() string   { return e.field }

// Wire is the client-visible part of an error
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// WireFrom projects err onto its client-visible part. Foreign errors keep
// their text under ErrorCodeUnknown
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return Wire{Code: e.code, Message: e.msg, Field: e.field}
	}
	return Wire{Code: ErrorCodeUnknown, Message: err.Error()}
}

// Root unwraps err down to its innermost cause
func Root(err error) error {
	for {
		next := stderrs.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// As returns the outermost *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrs.As(err, &e)
	return e, ok
}

// CodeOf returns err's code, ErrorCodeUnknown for foreign errors
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus is HTTPStatusCode(CodeOf(err))
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// WithField returns a copy of err naming the offending input field.
// Foreign errors pass through unchanged
func WithField(err error, field string) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	c.field = field
	return &c
}

func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap keeps orig as the cause; msg is what clients see
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return Wrap(orig, code, fmt.Sprintf(format, a...))
}

func NotFoundf(format string, a ...any) error     { return Newf(ErrorCodeNotFound, format, a...) }
func InvalidArgf(format string, a ...any) error   { return Newf(ErrorCodeInvalidArgument, format, a...) }
func DuplicateKeyf(format string, a ...any) error { return Newf(ErrorCodeDuplicateKey, format, a...) }
func JSONErrf(format string, a ...any) error      { return Newf(ErrorCodeJSON, format, a...) }
func PanicErrf(format string, a ...any) error     { return Newf(ErrorCodePanic, format, a...) }
func Unauthorizedf(format string, a ...any) error { return Newf(ErrorCodeUnauthorized, format, a...) }
func Forbiddenf(format string, a ...any) error    { return Newf(ErrorCodeForbidden, format, a...) }
func Conflictf(format string, a ...any) error     { return Newf(ErrorCodeConflict, format, a...) }
func Unavailablef(format string, a ...any) error  { return Newf(ErrorCodeUnavailable, format, a...) }
func Validationf(format string, a ...any) error   { return Newf(ErrorCodeValidation, format, a...) }
func OutOfRangef(format string, a ...any) error   { return Newf(ErrorCodeOutOfRange, format, a...) }

// NotSupportedf reports an optional capability the callee lacks
func NotSupportedf(format string, a ...any) error { return Newf(ErrorCodeNotImplemented, format, a...) }

// InUsef is a conflict for something still referenced, like a bank an exchange imports into
func InUsef(format string, a ...any) error { return Newf(ErrorCodeConflict, format, a...) }
