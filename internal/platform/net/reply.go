package net

import (
	"net/http"

	perr "hma/internal/platform/errors"
)

// ErrorBody is the JSON shape of every error response
// message is always present so plain clients can read {"message": "..."}
type ErrorBody struct {
	Message   string         `json:"message"`
	Code      perr.ErrorCode `json:"code,omitempty"`
	Field     string         `json:"field,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Error builds the status and error body for err
func Error(err error, reqID string) (int, ErrorBody) {
	if err == nil {
		return http.StatusOK, ErrorBody{}
	}
	status := perr.HTTPStatus(err)
	w := perr.WireFrom(err)
	msg := w.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return status, ErrorBody{
		Message:   msg,
		Code:      w.Code,
		Field:     w.Field,
		RequestID: reqID,
	}
}
