package pg

import (
	"context"
	"errors"
	"strings"

	"hma/internal/platform/logger"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// QueryEvent describes one finished statement
type QueryEvent struct {
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives every statement run through the store adapters
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer logs statements on a "pg" child of root. The child is pinned to
// debug so LogSQL works whatever the process level is
func Tracer(root logger.Logger) QueryTracer {
	return &zlTracer{log: root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(_ context.Context, ev QueryEvent) {
	var evt *zerolog.Event
	switch {
	case ev.Err != nil && !errors.Is(ev.Err, pgx.ErrNoRows):
		evt = z.log.Error().Err(ev.Err)
	case ev.Slow:
		evt = z.log.Warn()
	default:
		evt = z.log.Info()
	}
	evt.Float64("elapsed_ms", float64(ev.ElapsedUS)/1000).
		Bool("slow", ev.Slow).
		Str("sql", compact(ev.SQL)).
		Interface("args", redact(ev.Args)).
		Msg("pg query")
}

// compact folds runs of whitespace so multi-line SQL logs on one line
func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// redact replaces byte slices (hash payloads, index blobs) with their length
func redact(args any) any {
	list, ok := args.([]any)
	if !ok {
		return args
	}
	out := make([]any, len(list))
	for i, a := range list {
		if b, ok := a.([]byte); ok {
			out[i] = map[string]int{"bytes": len(b)}
			continue
		}
		out[i] = a
	}
	return out
}
