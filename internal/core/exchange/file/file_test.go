package file

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hma/internal/core/exchange"
	"hma/internal/core/signal/builtin"
)

const pdqA = "acecf3355e3125c8e24e2f30e0d4ec4f8482b878b3c34cdbdf063278db275992"

func TestParse(t *testing.T) {
	recs := Parse([]byte("# comment\n\npdq " + pdqA + "\nraw_text hello there world\nbroken\n"))
	if len(recs) != 2 {
		t.Fatalf("want 2 records, got %v", recs)
	}
	if r := recs[Key("raw_text", "hello there world")]; r.Signal != "hello there world" {
		t.Fatalf("raw_text record = %+v", r)
	}
}

func fetchAll(t *testing.T, api *API, cfg json.RawMessage, cp exchange.Checkpoint) (map[string]json.RawMessage, exchange.Checkpoint) {
	t.Helper()
	it, err := api.Fetch(context.Background(), exchange.FetchRequest{
		Collab:      exchange.Collab{Name: "F", Config: cfg},
		SignalTypes: builtin.SignalTypes(),
		Checkpoint:  cp,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	out := map[string]json.RawMessage{}
	for {
		b, err := it.Next(context.Background())
		if err == io.EOF {
			return out, cp
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		for k, v := range b.Updates {
			out[k] = v
		}
		cp = b.Checkpoint
	}
}

func TestFetch_DeletesRemovedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.txt")
	if err := os.WriteFile(path, []byte("pdq "+pdqA+"\nurl example.com/x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	api := New()
	cfg, err := api.ValidateConfig(json.RawMessage(`{"path":"` + path + `"}`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	first, cp := fetchAll(t, api, cfg, nil)
	if len(first) != 2 || cp == nil {
		t.Fatalf("first fetch = %v", first)
	}

	again, cp2 := fetchAll(t, api, cfg, cp)
	if len(again) != 0 || !cp2.ProgressTime().Equal(cp.ProgressTime()) {
		t.Fatalf("unchanged file should yield nothing, got %v", again)
	}

	if err := os.WriteFile(path, []byte("pdq "+pdqA+"\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	later := time.Unix(cp.ProgressTime().Unix()+5, 0)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	third, cp3 := fetchAll(t, api, cfg, cp)
	if v, ok := third[Key("url", "example.com/x")]; !ok || v != nil {
		t.Fatalf("removed line should be a delete, got %v", third)
	}
	if !cp3.ProgressTime().After(cp.ProgressTime()) {
		t.Fatalf("checkpoint did not advance")
	}
}

func TestValidateConfig(t *testing.T) {
	if _, err := New().ValidateConfig(json.RawMessage(`{"path":"  "}`)); err == nil {
		t.Fatalf("expected error for blank path")
	}
}
