package hashing

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"hma/internal/core/signal"
	"hma/internal/core/signal/builtin"
	perr "hma/internal/platform/errors"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 128, 128))
	for y := 0; y < 128; y++ {
		for x := 0; x < 128; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*x/3 + y*17 + x*y) % 256)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newHasher(t *testing.T, max int64) *Hasher {
	t.Helper()
	reg, err := builtin.Registry(builtin.Options{Extensions: []string{"md5"}})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return New(reg, NewFetcher(FetchOptions{MaxBytes: max}, nil))
}

func TestHashBytes_Photo(t *testing.T) {
	h := newHasher(t, 0)
	got, err := h.HashBytes(context.Background(), signal.ContentPhoto, pngBytes(t))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(got["md5"]) != 32 {
		t.Fatalf("md5 missing: %v", got)
	}
	if p, ok := got["pdq"]; ok && len(p) != 64 {
		t.Fatalf("bad pdq %q", p)
	}

	only, err := h.HashBytes(context.Background(), signal.ContentPhoto, pngBytes(t), "md5")
	if err != nil {
		t.Fatalf("hash only: %v", err)
	}
	if len(only) != 1 {
		t.Fatalf("expected only md5, got %v", only)
	}
}

func TestHashBytes_Errors(t *testing.T) {
	h := newHasher(t, 0)
	if _, err := h.HashBytes(context.Background(), "", nil); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
	if _, err := h.HashBytes(context.Background(), "hologram", nil); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation, got %v", err)
	}
	if _, err := h.HashBytes(context.Background(), signal.ContentText, nil); !perr.IsCode(err, perr.ErrorCodeNotImplemented) {
		t.Fatalf("want not implemented, got %v", err)
	}
}

func TestHashURL(t *testing.T) {
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			_, _ = w.Write(body)
		case "/boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := newHasher(t, 0)
	got, err := h.HashURL(context.Background(), "", srv.URL+"/img.png")
	if err != nil {
		t.Fatalf("hash url: %v", err)
	}
	if got["md5"] == "" {
		t.Fatalf("md5 missing: %v", got)
	}

	if _, err := h.HashURL(context.Background(), signal.ContentPhoto, srv.URL+"/missing"); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation for 404, got %v", err)
	}
	if _, err := h.HashURL(context.Background(), signal.ContentPhoto, srv.URL+"/boom"); !perr.IsCode(err, perr.ErrorCodeUnavailable) {
		t.Fatalf("want unavailable for 502, got %v", err)
	}
	if _, err := h.HashURL(context.Background(), signal.ContentPhoto, "ftp://x/y.png"); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation for scheme, got %v", err)
	}

	small := newHasher(t, 10)
	if _, err := small.HashURL(context.Background(), signal.ContentPhoto, srv.URL+"/img.png"); !perr.IsCode(err, perr.ErrorCodeOutOfRange) {
		t.Fatalf("want out of range, got %v", err)
	}
}

func TestGuessContentType(t *testing.T) {
	cases := map[string]string{
		"http://x/a.JPG":       signal.ContentPhoto,
		"http://x/a.mp4?sig=1": signal.ContentVideo,
		"notes.txt":            "",
	}
	for in, want := range cases {
		if got := GuessContentType(in); got != want {
			t.Fatalf("GuessContentType(%q) = %q, want %q", in, got, want)
		}
	}
}
