package hashing

import (
	"io"
	"net/http"
	"strings"

	perr "hma/internal/platform/errors"
)

// MaxBytes returns the content size cap shared by url fetches and uploads
func (h *Hasher) MaxBytes() int64 {
	if h.fetch == nil {
		return defaultMaxBytes
	}
	return h.fetch.opts.MaxBytes
}

// ReadUpload reads the multipart file in field, capped at maxBytes
func ReadUpload(r *http.Request, field string, maxBytes int64) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, "", perr.WithField(perr.Validationf("expected a multipart upload: %v", err), field)
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", perr.WithField(perr.Validationf("missing multipart file %q", field), field)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, "", perr.Wrapf(err, perr.ErrorCodeValidation, "read upload")
	}
	if int64(len(data)) > maxBytes {
		return nil, "", perr.WithField(perr.Validationf("upload exceeds %d bytes", maxBytes), field)
	}
	return data, hdr.Filename, nil
}

// IsMultipart reports whether r carries a multipart body
func IsMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}
