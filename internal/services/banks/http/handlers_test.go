package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"hma/internal/core/signal/builtin"
	"hma/internal/modkit/repokit/repotest"
	phttp "hma/internal/platform/net/http"
	"hma/internal/services/banks/banktest"
	svc "hma/internal/services/banks/service"
)

const pdqA = "f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22"

type stubHasher struct{ gotURL, gotType string }

func (s *stubHasher) HashURL(_ context.Context, ct, url string, _ ...string) (map[string]string, error) {
	s.gotURL, s.gotType = url, ct
	return map[string]string{"pdq": pdqA}, nil
}

func (s *stubHasher) HashBytes(_ context.Context, ct string, _ []byte, _ ...string) (map[string]string, error) {
	s.gotType = ct
	return map[string]string{"pdq": pdqA}, nil
}

func (s *stubHasher) MaxBytes() int64 { return 1 << 20 }

func newServer(t *testing.T, h ContentHasher) stdhttp.Handler {
	t.Helper()
	reg, err := builtin.Registry(builtin.Options{})
	if err != nil {
		t.Fatal(err)
	}
	mem := banktest.NewMemory()
	s := svc.New(&repotest.Tx{}, mem.Binder(), reg, svc.Config{})
	r := phttp.AdaptChi(chi.NewRouter())
	r.Route("/c", func(rr phttp.Router) { Register(rr, s, h) })
	return r.Mux()
}

func do(t *testing.T, h stdhttp.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *stdhttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, out
}

func TestCreateAndAddByURL(t *testing.T) {
	hs := &stubHasher{}
	srv := newServer(t, hs)

	code, body := do(t, srv, stdhttp.MethodPost, "/c/banks", `{"name":"MY_TEST_BANK_01"}`)
	if code != stdhttp.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}

	code, body = do(t, srv, stdhttp.MethodPost, "/c/bank/MY_TEST_BANK_01/content?url=https://x.test/a.jpg&content_type=photo", "")
	if code != stdhttp.StatusOK {
		t.Fatalf("add = %d %v", code, body)
	}
	if body["id"].(float64) != 1 {
		t.Fatalf("id = %v", body["id"])
	}
	if sigs := body["signals"].(map[string]any); sigs["pdq"] != pdqA {
		t.Fatalf("signals = %v", sigs)
	}
	if hs.gotURL != "https://x.test/a.jpg" || hs.gotType != "photo" {
		t.Fatalf("hasher got %q %q", hs.gotURL, hs.gotType)
	}

	code, body = do(t, srv, stdhttp.MethodGet, "/c/bank/MY_TEST_BANK_01/content/1", "")
	if code != stdhttp.StatusOK || body["original_content_uri"] != "https://x.test/a.jpg" {
		t.Fatalf("get = %d %v", code, body)
	}
}

func TestBadNameIs400WithMessage(t *testing.T) {
	srv := newServer(t, nil)
	code, body := do(t, srv, stdhttp.MethodPost, "/c/banks", `{"name":"01_BAD"}`)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("code = %d %v", code, body)
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Fatalf("missing message: %v", body)
	}
}

func TestDeleteMissingBankIs200(t *testing.T) {
	srv := newServer(t, nil)
	code, body := do(t, srv, stdhttp.MethodDelete, "/c/bank/NOPE", "")
	if code != stdhttp.StatusOK || body["deleted"] != false {
		t.Fatalf("delete = %d %v", code, body)
	}
}

func TestAddJSONAndHorizon(t *testing.T) {
	srv := newServer(t, nil)
	if code, _ := do(t, srv, stdhttp.MethodPost, "/c/banks", `{"name":"B"}`); code != stdhttp.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	code, body := do(t, srv, stdhttp.MethodPost, "/c/bank/B/content", `{"content_type":"photo","signals":{"pdq":"`+pdqA+`"}}`)
	if code != stdhttp.StatusOK {
		t.Fatalf("add = %d %v", code, body)
	}
	code, body = do(t, srv, stdhttp.MethodPut, "/c/bank/B/content/1", `{"disable_until_ts":9999999999999}`)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("horizon = %d %v", code, body)
	}
	code, body = do(t, srv, stdhttp.MethodPut, "/c/bank/B/content/1/opinion", `{"false_positive":true}`)
	if code != stdhttp.StatusOK {
		t.Fatalf("opinion = %d %v", code, body)
	}
	if tags := body["tags"].([]any); len(tags) != 1 || tags[0] != "opinion:false_positive" {
		t.Fatalf("tags = %v", tags)
	}
	code, _ = do(t, srv, stdhttp.MethodPost, "/c/bank/B/content?url=https://x.test/a.jpg", "")
	if code != stdhttp.StatusNotImplemented {
		t.Fatalf("url add without hasher = %d", code)
	}
	code, body = do(t, srv, stdhttp.MethodGet, "/c/bank/B/content?page=1&page_size=10", "")
	if code != stdhttp.StatusOK || len(body["items"].([]any)) != 1 {
		t.Fatalf("list = %d %v", code, body)
	}
	code, _ = do(t, srv, stdhttp.MethodDelete, "/c/bank/B/content/1", "")
	if code != stdhttp.StatusOK {
		t.Fatalf("remove = %d", code)
	}
	code, _ = do(t, srv, stdhttp.MethodGet, "/c/bank/B/content/1", "")
	if code != stdhttp.StatusNotFound {
		t.Fatalf("get removed = %d", code)
	}
	code, _ = do(t, srv, stdhttp.MethodGet, "/c/bank/B/content/abc", "")
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("bad id = %d", code)
	}
}

func TestSignalTypeRoutes(t *testing.T) {
	srv := newServer(t, nil)
	code, body := do(t, srv, stdhttp.MethodPut, "/c/signal_type/pdq", `{"enabled_ratio":0}`)
	if code != stdhttp.StatusOK || body["enabled_ratio"].(float64) != 0 {
		t.Fatalf("set = %d %v", code, body)
	}
	code, _ = do(t, srv, stdhttp.MethodPut, "/c/signal_type/pdq", `{"enabled_ratio":2}`)
	if code != stdhttp.StatusBadRequest {
		t.Fatalf("out of range ratio = %d", code)
	}
	req := httptest.NewRequest(stdhttp.MethodGet, "/c/content_types", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), `"photo"`) {
		t.Fatalf("content types = %d %s", rec.Code, rec.Body.String())
	}
}
