package hashing

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "hma/internal/platform/errors"
)

func multipartRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/", &body)
	r.Header.Set("Content-Type", w.FormDataContentType())
	return r
}

func TestReadUpload(t *testing.T) {
	t.Parallel()
	r := multipartRequest(t, "file", "a.png", []byte("hello"))
	if !IsMultipart(r) {
		t.Fatalf("expected multipart")
	}
	data, name, err := ReadUpload(r, "file", 100)
	if err != nil {
		t.Fatalf("ReadUpload: %v", err)
	}
	if string(data) != "hello" || name != "a.png" {
		t.Fatalf("got %q %q", data, name)
	}
}

func TestReadUpload_TooLarge(t *testing.T) {
	t.Parallel()
	r := multipartRequest(t, "file", "a.png", bytes.Repeat([]byte("x"), 64))
	if _, _, err := ReadUpload(r, "file", 10); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestReadUpload_MissingField(t *testing.T) {
	t.Parallel()
	r := multipartRequest(t, "other", "a.png", []byte("x"))
	if _, _, err := ReadUpload(r, "file", 10); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	plain := httptest.NewRequest(http.MethodPost, "/", nil)
	if IsMultipart(plain) {
		t.Fatalf("plain request reported multipart")
	}
}
