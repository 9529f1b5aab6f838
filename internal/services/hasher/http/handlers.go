// Package http exposes content hashing under /h
package http

import (
	"context"
	stdhttp "net/http"
	"strings"

	"hma/internal/core/hashing"
	"hma/internal/modkit/httpkit"
	perr "hma/internal/platform/errors"
)

// Hasher is the content hashing surface the handlers need
type Hasher interface {
	HashURL(ctx context.Context, contentType, rawURL string, only ...string) (map[string]string, error)
	HashBytes(ctx context.Context, contentType string, data []byte, only ...string) (map[string]string, error)
	MaxBytes() int64
}

// Register mounts the hash endpoints
func Register(r httpkit.Router, h Hasher) {
	hs := &handlers{h: h}
	httpkit.Get(r, "/hash", hs.hashURL)
	httpkit.Post(r, "/hash", hs.hashUpload)
}

type handlers struct{ h Hasher }

// types reads ?types=pdq,md5 into a hasher filter
func types(r *stdhttp.Request) []string {
	var out []string
	for _, t := range strings.Split(httpkit.Query(r, "types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// @Summary Hash media by url
// @Tags Hash
// @Produce json
// @Param url query string true "Media url"
// @Param content_type query string false "Content type, guessed from the url when omitted"
// @Param types query string false "Comma separated signal types to compute"
// @Success 200 {object} object "signal type to signal"
// @Failure 400 {object} net.ErrorBody "missing url or unknown content type"
// @Router /h/hash [get]
func (hs *handlers) hashURL(r *stdhttp.Request) (any, error) {
	url := httpkit.Query(r, "url")
	if url == "" {
		return nil, perr.WithField(perr.Validationf("url is required"), "url")
	}
	ct := httpkit.Query(r, "content_type")
	if ct == "" {
		ct = hashing.GuessContentType(url)
	}
	return hs.h.HashURL(r.Context(), ct, url, types(r)...)
}

// @Summary Hash an uploaded file
// @Tags Hash
// @Accept mpfd
// @Produce json
// @Param file formData file true "Media"
// @Param content_type formData string false "Content type, guessed from the file name when omitted"
// @Success 200 {object} object "signal type to signal"
// @Router /h/hash [post]
func (hs *handlers) hashUpload(r *stdhttp.Request) (any, error) {
	data, name, err := hashing.ReadUpload(r, "file", hs.h.MaxBytes())
	if err != nil {
		return nil, err
	}
	ct := r.FormValue("content_type")
	if ct == "" {
		ct = hashing.GuessContentType(name)
	}
	return hs.h.HashBytes(r.Context(), ct, data, types(r)...)
}
