package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	perr "hma/internal/platform/errors"
	phttp "hma/internal/platform/net/http"
	"hma/internal/services/matcher/domain"
)

const pdqA = "f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22"

type fakeSvc struct {
	ready    error
	lastQ    domain.Query
	lastCQ   domain.ContentQuery
	lastK    int
	lastT    float64
	compared map[string][]string
}

func (f *fakeSvc) RawLookup(_ context.Context, st, sig string, withDistance bool) ([]domain.RawMatch, error) {
	if sig != pdqA {
		return []domain.RawMatch{}, nil
	}
	d := 0.0
	m := domain.RawMatch{MemberID: 1}
	if withDistance {
		m.Distance = &d
	}
	return []domain.RawMatch{m}, nil
}

func (f *fakeSvc) Lookup(_ context.Context, q domain.Query) (domain.Lookup, error) {
	f.lastQ = q
	return domain.Lookup{"BANK_A": {{MemberID: 1}}}, nil
}

func (f *fakeSvc) LookupTopK(_ context.Context, q domain.Query, k int) (domain.Lookup, error) {
	f.lastQ, f.lastK = q, k
	if q.SignalType == "video_md5" {
		return nil, perr.NotSupportedf("video_md5 does not support top_k")
	}
	return domain.Lookup{}, nil
}

func (f *fakeSvc) LookupThreshold(_ context.Context, q domain.Query, t float64) (domain.Lookup, error) {
	f.lastQ, f.lastT = q, t
	return domain.Lookup{}, nil
}

func (f *fakeSvc) LookupContent(_ context.Context, q domain.ContentQuery) (domain.ContentLookup, error) {
	f.lastCQ = q
	return domain.ContentLookup{"pdq": {"BANK_A": {{MemberID: 1}}}}, nil
}

func (f *fakeSvc) Compare(_ context.Context, pairs map[string][]string) (map[string]domain.Comparison, error) {
	f.compared = pairs
	if len(pairs) == 0 {
		return nil, perr.Validationf("at least one signal type is required")
	}
	return map[string]domain.Comparison{"pdq": {Match: true}}, nil
}

func (f *fakeSvc) IndexStatus(context.Context, string) (map[string]domain.IndexStatus, error) {
	return map[string]domain.IndexStatus{"pdq": {Present: true}}, nil
}

func (f *fakeSvc) Ready(context.Context) error { return f.ready }

func newServer(f *fakeSvc) stdhttp.Handler {
	r := phttp.AdaptChi(chi.NewRouter())
	r.Route("/m", func(rr phttp.Router) { Register(rr, f, 1<<20) })
	RegisterStatus(r, f)
	return r.Mux()
}

func get(t *testing.T, h stdhttp.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, path, nil))
	return rec
}

func TestRawLookup(t *testing.T) {
	f := &fakeSvc{}
	srv := newServer(f)

	rec := get(t, srv, "/m/raw_lookup?signal_type=pdq&signal="+pdqA)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	var ids struct{ Matches []int64 }
	if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil || len(ids.Matches) != 1 || ids.Matches[0] != 1 {
		t.Fatalf("body = %s (%v)", rec.Body, err)
	}

	rec = get(t, srv, "/m/raw_lookup?signal_type=pdq&include_distance=true&signal="+pdqA)
	if !strings.Contains(rec.Body.String(), `"distance":0`) {
		t.Fatalf("want distances, got %s", rec.Body)
	}

	rec = get(t, srv, "/m/raw_lookup?signal_type=pdq&signal=0000")
	if rec.Body.String() != "{\"matches\":[]}\n" {
		t.Fatalf("empty matches = %q", rec.Body)
	}

	if rec = get(t, srv, "/m/raw_lookup?signal_type=pdq"); rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("missing signal = %d", rec.Code)
	}
}

func TestLookupFlags(t *testing.T) {
	f := &fakeSvc{}
	srv := newServer(f)

	rec := get(t, srv, "/m/lookup?signal_type=pdq&include_disputed=true&bypass_enabled_ratio=1&signal="+pdqA)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), "BANK_A") {
		t.Fatalf("lookup = %d %s", rec.Code, rec.Body)
	}
	if !f.lastQ.IncludeDisputed || !f.lastQ.BypassRatio || f.lastQ.SignalType != "pdq" {
		t.Fatalf("query = %+v", f.lastQ)
	}

	rec = get(t, srv, "/m/lookup?url=https://x.test/a.jpg")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("url lookup = %d %s", rec.Code, rec.Body)
	}
	if f.lastCQ.URL != "https://x.test/a.jpg" || f.lastCQ.ContentType != "photo" {
		t.Fatalf("content query = %+v", f.lastCQ)
	}
}

func TestLookupUpload(t *testing.T) {
	f := &fakeSvc{}
	srv := newServer(f)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("abc"))
	_ = mw.Close()

	req := httptest.NewRequest(stdhttp.MethodPost, "/m/lookup", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body)
	}
	if string(f.lastCQ.Data) != "abc" || f.lastCQ.ContentType != "video" {
		t.Fatalf("content query = %+v", f.lastCQ)
	}
}

func TestOptionalLookups(t *testing.T) {
	f := &fakeSvc{}
	srv := newServer(f)

	if rec := get(t, srv, "/m/lookup_top_k?signal_type=pdq&k=3&signal="+pdqA); rec.Code != stdhttp.StatusOK || f.lastK != 3 {
		t.Fatalf("top k = %d k=%d", rec.Code, f.lastK)
	}
	if rec := get(t, srv, "/m/lookup_top_k?signal_type=video_md5&k=3&signal=x"); rec.Code != stdhttp.StatusNotImplemented {
		t.Fatalf("unsupported top k = %d", rec.Code)
	}
	if rec := get(t, srv, "/m/lookup_threshold?signal_type=pdq&threshold=40.5&signal="+pdqA); rec.Code != stdhttp.StatusOK || f.lastT != 40.5 {
		t.Fatalf("threshold = %d t=%v", rec.Code, f.lastT)
	}
	if rec := get(t, srv, "/m/lookup_threshold?signal_type=pdq&signal="+pdqA); rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("missing threshold = %d", rec.Code)
	}
}

func TestCompare(t *testing.T) {
	f := &fakeSvc{}
	srv := newServer(f)

	req := httptest.NewRequest(stdhttp.MethodPost, "/m/compare", strings.NewReader(`{"pdq":["`+pdqA+`","`+pdqA+`"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), `"match":true`) {
		t.Fatalf("compare = %d %s", rec.Code, rec.Body)
	}
	if len(f.compared["pdq"]) != 2 {
		t.Fatalf("pairs = %v", f.compared)
	}

	req = httptest.NewRequest(stdhttp.MethodPost, "/m/compare", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != stdhttp.StatusBadRequest || !strings.Contains(rec.Body.String(), "message") {
		t.Fatalf("empty compare = %d %s", rec.Code, rec.Body)
	}
}

func TestStatus(t *testing.T) {
	f := &fakeSvc{}
	srv := newServer(f)

	rec := get(t, srv, "/status")
	if rec.Code != stdhttp.StatusOK || rec.Body.String() != "I-AM-ALIVE" {
		t.Fatalf("status = %d %q", rec.Code, rec.Body)
	}

	f.ready = perr.Unavailablef("INDEX-STALE: pdq")
	rec = get(t, srv, "/status")
	if rec.Code != stdhttp.StatusServiceUnavailable || rec.Body.String() != "INDEX-STALE" {
		t.Fatalf("stale status = %d %q", rec.Code, rec.Body)
	}

	if rec = get(t, srv, "/m/index/status"); rec.Code != stdhttp.StatusOK || !strings.Contains(rec.Body.String(), `"present":true`) {
		t.Fatalf("index status = %d %s", rec.Code, rec.Body)
	}
}
