package http

import (
	"encoding/json"
	stdhttp "net/http"

	hmanet "hma/internal/platform/net"
)

// Page is the paging block of a list response
type Page struct {
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// JSON writes v as application/json with the given status
func JSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Text writes a plain text body
func Text(w stdhttp.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Response is what a return-style handler produces. A Body holding an error
// is rendered through the error envelope and its status comes from the code
type Response struct {
	Status int
	Body   any
	Header stdhttp.Header
	Text   bool
}

// Handle adapts a Response-returning handler to net/http
func Handle(h func(r *stdhttp.Request) Response) stdhttp.HandlerFunc {
	return func(w stdhttp.ResponseWriter, r *stdhttp.Request) { h(r).write(w, r) }
}

func (resp Response) write(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if err, ok := resp.Body.(error); ok {
		code, body := hmanet.Error(err, hmanet.RequestID(r.Context()))
		JSON(w, code, body)
		return
	}

	status := resp.Status
	if status == 0 {
		status = stdhttp.StatusOK
	}
	if resp.Text {
		s, _ := resp.Body.(string)
		Text(w, status, s)
		return
	}
	JSON(w, status, resp.Body)
}

func OK(data any) Response      { return Response{Status: stdhttp.StatusOK, Body: data} }
func Created(data any) Response { return Response{Status: stdhttp.StatusCreated, Body: data} }
func Error(err error) Response  { return Response{Body: err} }

func PlainText(status int, body string) Response {
	return Response{Status: status, Body: body, Text: true}
}

// List wraps one page of items with its paging block
func List(items any, total, page, size int) Response {
	return OK(struct {
		Items any  `json:"items"`
		Page  Page `json:"page"`
	}{items, Page{Total: total, Page: page, PageSize: size}})
}
