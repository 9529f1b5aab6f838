package store

import (
	"context"
	"errors"
	"time"

	"hma/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxDB is the statement surface shared by *pgxpool.Pool and pgx.Tx
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querier implements RowQuerier over a pool or a tx and reports every
// statement to the tracer. Query is timed to open, QueryRow to Scan
type querier struct {
	db     pgxDB
	tracer pg.QueryTracer
	slowUS int64
}

func (q querier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := q.db.Exec(ctx, sql, args...)
	q.emit(ctx, sql, args, start, err)
	return tag{ct}, err
}

func (q querier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := q.db.Query(ctx, sql, args...)
	q.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows{r: rs}, nil
}

func (q querier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := q.db.QueryRow(ctx, sql, args...)
	return row{r: r, after: func(err error) { q.emit(ctx, sql, args, start, err) }}
}

func (q querier) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if q.tracer == nil {
		return
	}
	elapsed := time.Since(start).Microseconds()
	q.tracer.OnQuery(ctx, pg.QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsed,
		Err:       err,
		Slow:      q.slowUS >= 0 && elapsed >= q.slowUS,
	})
}

// pgAdapter wraps pg.PG and implements RowQuerier, TxRunner and Locker
type pgAdapter struct {
	querier
	p *pg.PG
}

func newPGAdapter(p *pg.PG) *pgAdapter {
	return &pgAdapter{
		querier: querier{db: p.Pool, tracer: p.Tracer, slowUS: int64(p.SlowMs) * 1000},
		p:       p,
	}
}

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("pg: nil adapter")
	}
	var one int
	return a.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

// TryLock takes a session advisory lock on a dedicated connection
func (a *pgAdapter) TryLock(ctx context.Context, key int64) (Lock, bool, error) {
	l, ok, err := a.p.TryAdvisoryLock(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return l, true, nil
}

// Tx runs fn in a transaction, rolling back when fn fails
func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	q := a.querier
	q.db = tx
	if err := fn(q); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type row struct {
	r     pgx.Row
	after func(error)
}

func (x row) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type rows struct{ r pgx.Rows }

func (x rows) Next() bool            { return x.r.Next() }
func (x rows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x rows) Err() error            { return x.r.Err() }
func (x rows) Close()                { x.r.Close() }
func (x rows) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}

type tag struct{ t pgconn.CommandTag }

func (t tag) String() string      { return t.t.String() }
func (t tag) RowsAffected() int64 { return t.t.RowsAffected() }

// ErrNoRows is returned by Row.Scan when a query matched nothing
var ErrNoRows = pgx.ErrNoRows

// IsNoRows reports whether err is, or wraps, ErrNoRows
func IsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
