package http

import (
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"hma/internal/core/exchange"
	"hma/internal/core/exchange/jsonfeed"
	"hma/internal/core/exchange/sample"
	"hma/internal/core/signal/builtin"
	"hma/internal/modkit/repokit/repotest"
	phttp "hma/internal/platform/net/http"
	"hma/internal/services/banks/banktest"
	"hma/internal/services/exchanges/exchangetest"
	svc "hma/internal/services/exchanges/service"
)

func newServer(t *testing.T) (stdhttp.Handler, *svc.Svc) {
	t.Helper()
	sigs, err := builtin.Registry(builtin.Options{})
	if err != nil {
		t.Fatal(err)
	}
	apis, err := exchange.NewRegistry(sample.New(), jsonfeed.New(nil))
	if err != nil {
		t.Fatal(err)
	}
	mem, banks := exchangetest.NewMemory(), banktest.NewMemory()
	mem.OnDelete = banks.DeleteExchangeBank
	s := svc.New(&repotest.Tx{}, mem.Binder(), banks.Binder(), sigs, apis, svc.Config{})
	r := phttp.AdaptChi(chi.NewRouter())
	r.Route("/c", func(rr phttp.Router) { Register(rr, s) })
	return r.Mux(), s
}

func do(t *testing.T, h stdhttp.Handler, method, path, body string) (int, string) {
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
	return rec.Code, rec.Body.String()
}

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var out T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return out
}

func TestExchangeLifecycle(t *testing.T) {
	srv, s := newServer(t)

	code, body := do(t, srv, stdhttp.MethodPost, "/c/exchanges", `{"name":"SAMPLE_FEED","api":"sample"}`)
	if code != stdhttp.StatusCreated {
		t.Fatalf("create = %d %s", code, body)
	}
	if code, body = do(t, srv, stdhttp.MethodPost, "/c/exchanges", `{"name":"SAMPLE_FEED","api":"sample"}`); code != stdhttp.StatusConflict {
		t.Fatalf("duplicate = %d %s", code, body)
	}
	if code, body = do(t, srv, stdhttp.MethodPost, "/c/exchanges", `{"name":"bad name","api":"sample"}`); code != stdhttp.StatusBadRequest {
		t.Fatalf("bad name = %d %s", code, body)
	}

	code, body = do(t, srv, stdhttp.MethodGet, "/c/exchanges", "")
	if code != stdhttp.StatusOK || !strings.Contains(body, "SAMPLE_FEED") {
		t.Fatalf("list = %d %s", code, body)
	}

	if _, err := s.FetchOne(t.Context(), "SAMPLE_FEED"); err != nil {
		t.Fatal(err)
	}
	code, body = do(t, srv, stdhttp.MethodGet, "/c/exchange/SAMPLE_FEED/status", "")
	if code != stdhttp.StatusOK {
		t.Fatalf("status = %d %s", code, body)
	}
	st := decode[map[string]any](t, body)
	if st["last_fetch_succeeded"] != true || st["fetched_items"].(float64) == 0 {
		t.Fatalf("status body = %s", body)
	}

	code, body = do(t, srv, stdhttp.MethodGet, "/c/exchange/SAMPLE_FEED/data/"+sample.Key("pdq", 0), "")
	if code != stdhttp.StatusOK {
		t.Fatalf("data = %d %s", code, body)
	}
	if code, _ = do(t, srv, stdhttp.MethodGet, "/c/exchange/SAMPLE_FEED/data/nope", ""); code != stdhttp.StatusNotFound {
		t.Fatalf("missing data = %d", code)
	}

	code, body = do(t, srv, stdhttp.MethodPut, "/c/exchange/SAMPLE_FEED", `{"enabled":false}`)
	if code != stdhttp.StatusOK || decode[map[string]any](t, body)["enabled"] != false {
		t.Fatalf("update = %d %s", code, body)
	}

	code, body = do(t, srv, stdhttp.MethodDelete, "/c/exchange/SAMPLE_FEED", "")
	if code != stdhttp.StatusOK || decode[map[string]any](t, body)["deleted"] != true {
		t.Fatalf("delete = %d %s", code, body)
	}
	if code, _ = do(t, srv, stdhttp.MethodGet, "/c/exchange/SAMPLE_FEED", ""); code != stdhttp.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
}

func TestExchangeAPIs(t *testing.T) {
	srv, _ := newServer(t)

	code, body := do(t, srv, stdhttp.MethodGet, "/c/exchanges/apis", "")
	if code != stdhttp.StatusOK {
		t.Fatalf("apis = %d %s", code, body)
	}
	if got := decode[[]map[string]any](t, body); len(got) != 2 {
		t.Fatalf("apis body = %s", body)
	}

	if code, _ = do(t, srv, stdhttp.MethodGet, "/c/exchanges/api/missing", ""); code != stdhttp.StatusNotFound {
		t.Fatalf("missing api = %d", code)
	}
	if code, body = do(t, srv, stdhttp.MethodPost, "/c/exchanges/api/sample", `{"credential_json":{"token":"x"}}`); code != stdhttp.StatusBadRequest {
		t.Fatalf("sample credentials = %d %s", code, body)
	}

	code, body = do(t, srv, stdhttp.MethodPost, "/c/exchanges/api/json_feed", `{"credential_json":{"token":"x"}}`)
	if code != stdhttp.StatusOK || decode[map[string]any](t, body)["has_set_auth"] != true {
		t.Fatalf("set credentials = %d %s", code, body)
	}
	code, body = do(t, srv, stdhttp.MethodDelete, "/c/exchanges/api/json_feed", "")
	if code != stdhttp.StatusOK || decode[map[string]any](t, body)["has_set_auth"] != false {
		t.Fatalf("unset credentials = %d %s", code, body)
	}
}
