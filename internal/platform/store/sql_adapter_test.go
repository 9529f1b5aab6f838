package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hma/internal/platform/store/pg"
)

// memRows is a pgx.Rows over fixed (id, name) rows
type memRows struct {
	data [][2]any
	i    int
	err  error
}

func (r *memRows) Close()                                       {}
func (r *memRows) Err() error                                   { return r.err }
func (r *memRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *memRows) FieldDescriptions() []pgconn.FieldDescription { return []pgconn.FieldDescription{{Name: "id"}, {Name: "name"}} }
func (r *memRows) Next() bool                                   { r.i++; return r.err == nil && r.i <= len(r.data) }
func (r *memRows) Values() ([]any, error)                       { return r.data[r.i-1][:], nil }
func (r *memRows) RawValues() [][]byte                          { return nil }
func (r *memRows) Conn() *pgx.Conn                              { return nil }
func (r *memRows) Scan(dst ...any) error {
	cur := r.data[r.i-1]
	*dst[0].(*int64) = cur[0].(int64)
	*dst[1].(*string) = cur[1].(string)
	return nil
}

type scanFunc func(dst ...any) error

func (f scanFunc) Scan(dst ...any) error { return f(dst...) }

// memDB answers every statement from its fields and records the SQL
type memDB struct {
	sql  []string
	rows *memRows
	err  error
}

func (m *memDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.sql = append(m.sql, sql)
	return pgconn.NewCommandTag("DELETE 2"), m.err
}

func (m *memDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	m.sql = append(m.sql, sql)
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func (m *memDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	m.sql = append(m.sql, sql)
	return scanFunc(func(dst ...any) error {
		if m.err != nil {
			return m.err
		}
		*dst[0].(*int64) = 7
		return nil
	})
}

type recTracer struct{ events []pg.QueryEvent }

func (r *recTracer) OnQuery(_ context.Context, ev pg.QueryEvent) { r.events = append(r.events, ev) }

func TestQuerier_TracesEveryStatement(t *testing.T) {
	tr := &recTracer{}
	db := &memDB{rows: &memRows{data: [][2]any{{int64(1), "A"}, {int64(2), "B"}}}}
	q := querier{db: db, tracer: tr, slowUS: 0}
	ctx := context.Background()

	ct, err := q.Exec(ctx, "delete from bank where id = $1", 1)
	if err != nil || ct.RowsAffected() != 2 || ct.String() != "DELETE 2" {
		t.Fatalf("exec = %v %v", ct, err)
	}
	n, err := Scalar[int64](ctx, q, "select count(*) from bank")
	if err != nil || n != 7 {
		t.Fatalf("scalar = %d %v", n, err)
	}
	type bank struct {
		ID   int64
		Name string
	}
	banks, err := Many(ctx, q, func(r Row) (bank, error) {
		var b bank
		return b, r.Scan(&b.ID, &b.Name)
	}, "select id, name from bank")
	if err != nil || len(banks) != 2 || banks[1].Name != "B" {
		t.Fatalf("many = %v %v", banks, err)
	}

	if len(tr.events) != 3 {
		t.Fatalf("traced %d statements, want 3", len(tr.events))
	}
	for _, ev := range tr.events {
		// slowUS 0 marks everything slow
		if !ev.Slow || ev.Err != nil {
			t.Fatalf("event = %+v", ev)
		}
	}
}

func TestQuerier_Errors(t *testing.T) {
	tr := &recTracer{}
	boom := errors.New("conn reset")
	q := querier{db: &memDB{err: boom}, tracer: tr, slowUS: -1}
	ctx := context.Background()

	if _, err := Scalar[int64](ctx, q, "select 1"); !errors.Is(err, boom) {
		t.Fatalf("scalar err = %v", err)
	}
	if _, err := Many(ctx, q, func(Row) (int, error) { return 0, nil }, "select 1"); !errors.Is(err, boom) {
		t.Fatalf("many err = %v", err)
	}
	if len(tr.events) != 2 || !errors.Is(tr.events[0].Err, boom) || tr.events[0].Slow {
		t.Fatalf("events = %+v", tr.events)
	}

	// iteration errors and scan errors both surface
	q = querier{db: &memDB{rows: &memRows{err: boom}}}
	if _, err := Many(ctx, q, func(Row) (int, error) { return 0, nil }, "select 1"); !errors.Is(err, boom) {
		t.Fatalf("rows err = %v", err)
	}
	q = querier{db: &memDB{rows: &memRows{data: [][2]any{{int64(1), "A"}}}}}
	_, err := Many(ctx, q, func(Row) (int, error) { return 0, fmt.Errorf("bad row") }, "select 1")
	if err == nil || err.Error() != "bad row" {
		t.Fatalf("scan err = %v", err)
	}
}

func TestMany_NoRows(t *testing.T) {
	q := querier{db: &memDB{rows: &memRows{}}}
	out, err := Many(context.Background(), q, func(Row) (int, error) { return 1, nil }, "select 1")
	if err != nil || len(out) != 0 {
		t.Fatalf("many = %v %v", out, err)
	}
}

func TestRows_Columns(t *testing.T) {
	cols := rows{r: &memRows{}}.Columns()
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "name" {
		t.Fatalf("columns = %v", cols)
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("bank: %w", ErrNoRows)) || IsNoRows(errors.New("other")) {
		t.Fatal("IsNoRows mismatch")
	}
}
