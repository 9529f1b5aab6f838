package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"hma/internal/platform/store"
	"hma/internal/services/matcher/domain"
)

type fakeCH struct {
	mu      sync.Mutex
	inserts [][][]any
	tables  []string
	queries []string
}

func (f *fakeCH) Insert(_ context.Context, table string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, table)
	f.inserts = append(f.inserts, data.([][]any))
	return nil
}

func (f *fakeCH) Query(_ context.Context, sql string, _ ...any) (store.Rows, error) {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	f.mu.Unlock()
	return emptyRows{}, nil
}

func (f *fakeCH) Close() error { return nil }

func (f *fakeCH) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.inserts {
		n += len(b)
	}
	return n
}

type emptyRows struct{}

func (emptyRows) Next() bool        { return false }
func (emptyRows) Scan(...any) error { return nil }
func (emptyRows) Err() error        { return nil }
func (emptyRows) Close()            {}
func (emptyRows) Columns() []string { return nil }

func TestSink_FlushesOnBatchAndShutdown(t *testing.T) {
	t.Parallel()
	ch := &fakeCH{}
	s := New(ch, Config{Batch: 2, Every: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	at := time.Unix(1_700_000_000, 0)
	s.Record(domain.Event{At: at, SignalType: "pdq", Matches: 2, Banks: []string{"A"}})
	s.Record(domain.Event{At: at, SignalType: "pdq"})
	s.Record(domain.Event{At: at, SignalType: "md5", Matches: 1, Banks: []string{"B"}})

	deadline := time.Now().Add(2 * time.Second)
	for ch.rows() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := ch.rows(); got != 3 {
		t.Fatalf("rows = %d, want 3", got)
	}
	first := ch.inserts[0][0]
	if ch.tables[0] != Table || first[1] != "pdq" || first[2] != uint32(2) {
		t.Fatalf("first row = %v", first)
	}
	if banks := ch.inserts[0][1][3].([]string); banks == nil {
		t.Fatalf("nil banks must be sent as an empty array")
	}
}

func TestSink_DropsWhenFull(t *testing.T) {
	t.Parallel()
	s := New(&fakeCH{}, Config{Buffer: 1})
	s.Record(domain.Event{})
	s.Record(domain.Event{})
	if s.Dropped() != 1 {
		t.Fatalf("dropped = %d", s.Dropped())
	}
}

func TestEnsureTable(t *testing.T) {
	t.Parallel()
	ch := &fakeCH{}
	if err := New(ch, Config{}).EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(ch.queries) != 1 || ch.queries[0] != DDL {
		t.Fatalf("queries = %v", ch.queries)
	}
}
