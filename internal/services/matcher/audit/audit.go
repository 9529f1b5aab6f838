// Package audit records lookups to the optional clickhouse sink
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"hma/internal/platform/logger"
	"hma/internal/platform/store"
	"hma/internal/services/matcher/domain"
)

// Table receives one row per lookup
const Table = "hma_lookup_events"

// DDL creates Table
const DDL = `CREATE TABLE IF NOT EXISTS ` + Table + ` (
  ts          DateTime64(3),
  signal_type LowCardinality(String),
  match_count UInt32,
  banks       Array(String)
) ENGINE = MergeTree ORDER BY (signal_type, ts)`

// Nop drops every event
type Nop struct{}

// Record implements domain.AuditPort
func (Nop) Record(domain.Event) {}

// Config holds sink tunables
type Config struct {
	// Buffer bounds queued events; overflow is dropped; <=0 -> 4096
	Buffer int
	// Batch flushes once this many events are queued; <=0 -> 500
	Batch int
	// Every flushes whatever is queued; <=0 -> 5s
	Every time.Duration
}

// Sink batches events into clickhouse from one goroutine
type Sink struct {
	ch      store.Clickhouse
	in      chan domain.Event
	cfg     Config
	dropped atomic.Int64
}

// New creates a sink; Run must be started for events to land
func New(ch store.Clickhouse, cfg Config) *Sink {
	if ch == nil {
		panic("audit.Sink requires a clickhouse seam")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4096
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 500
	}
	if cfg.Every <= 0 {
		cfg.Every = 5 * time.Second
	}
	return &Sink{ch: ch, in: make(chan domain.Event, cfg.Buffer), cfg: cfg}
}

// EnsureTable creates the events table when missing
func (s *Sink) EnsureTable(ctx context.Context) error {
	rows, err := s.ch.Query(ctx, DDL)
	if err != nil {
		return err
	}
	rows.Close()
	return nil
}

// Record implements domain.AuditPort. It never blocks
func (s *Sink) Record(e domain.Event) {
	select {
	case s.in <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped counts events lost to a full buffer
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Run flushes batches until ctx ends, then flushes what is left
func (s *Sink) Run(ctx context.Context) {
	log := logger.Named("audit")
	t := time.NewTicker(s.cfg.Every)
	defer t.Stop()

	buf := make([]domain.Event, 0, s.cfg.Batch)
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if err := s.ch.Insert(ctx, Table, rows(buf)); err != nil {
			log.Warn().Err(err).Int("events", len(buf)).Msg("lookup audit insert")
		}
		buf = buf[:0]
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-s.in:
					buf = append(buf, e)
				default:
					flush(context.WithoutCancel(ctx))
					return
				}
			}
		case e := <-s.in:
			buf = append(buf, e)
			if len(buf) >= s.cfg.Batch {
				flush(ctx)
			}
		case <-t.C:
			flush(ctx)
		}
	}
}

func rows(es []domain.Event) [][]any {
	out := make([][]any, 0, len(es))
	for _, e := range es {
		banks := e.Banks
		if banks == nil {
			banks = []string{}
		}
		out = append(out, []any{e.At.UTC(), e.SignalType, uint32(e.Matches), banks})
	}
	return out
}
