package sample

import (
	"context"
	"io"
	"testing"

	"hma/internal/core/exchange"
	"hma/internal/core/signal/builtin"
)

func TestFetch_OnceThenUpToDate(t *testing.T) {
	api := New()
	types := builtin.SignalTypes()
	it, err := api.Fetch(context.Background(), exchange.FetchRequest{SignalTypes: types})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := 0
	for _, st := range types {
		want += len(st.Examples())
	}
	if len(b.Updates) != want {
		t.Fatalf("want %d updates, got %d", want, len(b.Updates))
	}
	sigs, err := api.Convert(types, exchange.Collab{}, Key("pdq", 0), b.Updates[Key("pdq", 0)])
	if err != nil || len(sigs["pdq"]) != 1 {
		t.Fatalf("convert: %v %v", sigs, err)
	}
	if _, err := it.Next(context.Background()); err != io.EOF {
		t.Fatalf("want EOF, got %v", err)
	}

	it, _ = api.Fetch(context.Background(), exchange.FetchRequest{SignalTypes: types, Checkpoint: b.Checkpoint})
	if _, err := it.Next(context.Background()); err != io.EOF {
		t.Fatalf("second fetch should be empty, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	api := New()
	if out, err := api.ValidateConfig(nil); err != nil || string(out) != "{}" {
		t.Fatalf("nil config: %s %v", out, err)
	}
	if _, err := api.ValidateConfig([]byte(`{"x":1}`)); err == nil {
		t.Fatalf("expected error for non-empty config")
	}
}
