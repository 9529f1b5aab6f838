// Package repotest provides in-memory stand-ins for the repo seams so services
// and repos can be tested without a database
package repotest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"hma/internal/modkit/repokit"
	"hma/internal/platform/store"
)

// Tx is a TxRunner whose transactions call fn directly with a scripted Queryer.
// Services bound through a fake Binder never touch the Queryer
type Tx struct {
	Q

	mu    sync.Mutex
	calls int
	// Fail makes every Tx return this error before fn runs
	Fail error
}

// Tx implements repokit.TxRunner
func (t *Tx) Tx(_ context.Context, fn func(q repokit.Queryer) error) error {
	t.mu.Lock()
	t.calls++
	fail := t.Fail
	t.mu.Unlock()
	if fail != nil {
		return fail
	}
	return fn(&t.Q)
}

// Calls reports how many transactions ran
func (t *Tx) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Binder returns a Binder that ignores the Queryer and hands out r
func Binder[T any](r T) repokit.Binder[T] {
	return repokit.BindFunc[T](func(repokit.Queryer) T { return r })
}

// Call is one recorded statement
type Call struct {
	SQL  string
	Args []any
}

// Result is the scripted answer to one statement
type Result struct {
	Rows     [][]any
	Affected int64
	Err      error
}

// Q is a scripted Queryer. Each statement pops the next Result; an empty
// script answers with no rows and zero affected
type Q struct {
	mu     sync.Mutex
	script []Result
	calls  []Call
}

// Push queues results in order
func (q *Q) Push(rs ...Result) {
	q.mu.Lock()
	q.script = append(q.script, rs...)
	q.mu.Unlock()
}

// Calls returns the recorded statements
func (q *Q) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// Last returns the most recent statement
func (q *Q) Last() Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.calls) == 0 {
		return Call{}
	}
	return q.calls[len(q.calls)-1]
}

func (q *Q) next(sql string, args []any) Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, Call{SQL: strings.TrimSpace(sql), Args: args})
	if len(q.script) == 0 {
		return Result{}
	}
	r := q.script[0]
	q.script = q.script[1:]
	return r
}

// Exec implements repokit.Queryer
func (q *Q) Exec(_ context.Context, sql string, args ...any) (repokit.CommandTag, error) {
	r := q.next(sql, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return tag(r.Affected), nil
}

// Query implements repokit.Queryer
func (q *Q) Query(_ context.Context, sql string, args ...any) (repokit.Rows, error) {
	r := q.next(sql, args)
	if r.Err != nil {
		return nil, r.Err
	}
	return &rows{data: r.Rows, i: -1}, nil
}

// QueryRow implements repokit.Queryer. No scripted rows scans as store.ErrNoRows
func (q *Q) QueryRow(_ context.Context, sql string, args ...any) repokit.Row {
	r := q.next(sql, args)
	if r.Err != nil {
		return errRow{r.Err}
	}
	if len(r.Rows) == 0 {
		return errRow{store.ErrNoRows}
	}
	return valueRow(r.Rows[0])
}

type tag int64

func (t tag) String() string      { return fmt.Sprintf("OK %d", int64(t)) }
func (t tag) RowsAffected() int64 { return int64(t) }

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }

type valueRow []any

func (v valueRow) Scan(dest ...any) error { return scanInto([]any(v), dest) }

type rows struct {
	data [][]any
	i    int
}

func (r *rows) Next() bool {
	r.i++
	return r.i < len(r.data)
}

func (r *rows) Err() error          { return nil }
func (r *rows) Close()              {}
func (r *rows) Columns() []string   { return nil }
func (r *rows) Scan(d ...any) error { return scanInto(r.data[r.i], d) }

// scanInto assigns values to pointers the way pgx would for the simple types repos use.
// A nil value zeroes the destination, which also covers nullable pointer columns
func scanInto(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("repotest: scan %d values into %d targets", len(vals), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return errors.New("repotest: scan target must be a non nil pointer")
		}
		target := dv.Elem()
		if vals[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(vals[i])
		switch {
		case v.Type().AssignableTo(target.Type()):
			target.Set(v)
		case target.Kind() == reflect.Pointer && v.Type().AssignableTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(v)
			target.Set(p)
		case v.Type().ConvertibleTo(target.Type()):
			target.Set(v.Convert(target.Type()))
		default:
			return fmt.Errorf("repotest: column %d: cannot scan %T into %s", i, vals[i], target.Type())
		}
	}
	return nil
}

var (
	_ repokit.TxRunner = (*Tx)(nil)
	_ repokit.Queryer  = (*Q)(nil)
)
