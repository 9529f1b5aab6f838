// Package hashing turns raw media into signals using every enabled hasher for its content type
package hashing

import (
	"context"
	"path"
	"strings"

	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
)

// Hasher runs signal type hashers over content bytes
type Hasher struct {
	reg   *signal.Registry
	fetch *Fetcher
}

// New builds a Hasher. fetch may be nil when only bytes are hashed
func New(reg *signal.Registry, fetch *Fetcher) *Hasher {
	return &Hasher{reg: reg, fetch: fetch}
}

// HashBytes returns signal type name to signal for every hasher that produced one
// only restricts the run to the named signal types when non-empty
func (h *Hasher) HashBytes(ctx context.Context, contentType string, data []byte, only ...string) (map[string]string, error) {
	types, err := h.hashers(contentType, only)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(types))
	for _, st := range types {
		sig, err := st.(signal.BytesHasher).HashBytes(ctx, data)
		if err != nil {
			return nil, err
		}
		if sig == "" {
			continue
		}
		out[st.Name()] = sig
	}
	return out, nil
}

// HashURL downloads rawURL and hashes it. An empty contentType is guessed from the url path
func (h *Hasher) HashURL(ctx context.Context, contentType, rawURL string, only ...string) (map[string]string, error) {
	if h.fetch == nil {
		return nil, perr.NotSupportedf("hashing by url is not configured")
	}
	if contentType == "" {
		contentType = GuessContentType(rawURL)
	}
	if _, err := h.hashers(contentType, only); err != nil {
		return nil, err
	}
	data, err := h.fetch.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return h.HashBytes(ctx, contentType, data, only...)
}

func (h *Hasher) hashers(contentType string, only []string) ([]signal.SignalType, error) {
	if contentType == "" {
		return nil, perr.WithField(perr.Validationf("content_type is required"), "content_type")
	}
	ct, ok := h.reg.Content(contentType)
	if !ok {
		return nil, perr.WithField(perr.Validationf("unknown content type %q", contentType), "content_type")
	}
	if !ct.Enabled {
		return nil, perr.WithField(perr.Validationf("content type %q is not enabled", contentType), "content_type")
	}
	var out []signal.SignalType
	for _, st := range h.reg.EnabledFor(contentType) {
		if _, ok := st.(signal.BytesHasher); !ok {
			continue
		}
		if len(only) > 0 && !contains(only, st.Name()) {
			continue
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		return nil, perr.NotSupportedf("no hashers for content type %q", contentType)
	}
	return out, nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

var extContent = map[string]string{
	".jpg": signal.ContentPhoto, ".jpeg": signal.ContentPhoto, ".png": signal.ContentPhoto,
	".gif": signal.ContentPhoto, ".webp": signal.ContentPhoto, ".bmp": signal.ContentPhoto,
	".mp4": signal.ContentVideo, ".mov": signal.ContentVideo, ".webm": signal.ContentVideo,
	".avi": signal.ContentVideo, ".mkv": signal.ContentVideo, ".m4v": signal.ContentVideo,
}

// GuessContentType maps a file name or url extension to a content type, or ""
func GuessContentType(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return extContent[strings.ToLower(path.Ext(name))]
}
