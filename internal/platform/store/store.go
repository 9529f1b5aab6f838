// Package store opens the optional sql and columnar backends behind small
// interfaces that repos and tests can fake
package store

import (
	"context"
	"errors"
	"fmt"

	"hma/internal/platform/logger"
)

// Store holds whichever backends were enabled. The zero value has none
type Store struct {
	Log logger.Logger

	// PG is nil unless postgres is enabled
	PG TxRunner

	// CH is nil unless clickhouse is enabled
	CH Clickhouse
}

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
	Columns() []string
}

type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the statement surface repos are written against
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner is a RowQuerier that can also run fn inside one transaction
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Clickhouse receives batched rows and serves analytical reads
type Clickhouse interface {
	Insert(ctx context.Context, table string, data any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Close() error
}

type Pinger interface{ Ping(context.Context) error }

// Locker returns the advisory lock capability of the PG seam, or nil
func (s *Store) Locker() Locker {
	if s == nil || s.PG == nil {
		return nil
	}
	l, _ := s.PG.(Locker)
	return l
}

// Open connects the backends enabled in cfg
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	s.Log = s.Log.With().Logger()

	var err error
	if cfg.PG.Enabled {
		if s.PG, err = openPG(ctx, cfg, s); err != nil {
			return nil, err
		}
	}
	if cfg.CH.Enabled {
		if s.CH, err = openCH(ctx, cfg, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type seam struct {
	name string
	v    any
}

// seams lists the enabled backends, pg first
func (s *Store) seams() []seam {
	var out []seam
	if s.PG != nil {
		out = append(out, seam{"pg", s.PG})
	}
	if s.CH != nil {
		out = append(out, seam{"ch", s.CH})
	}
	return out
}

// Guard pings every enabled backend that can be pinged
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	var errs []error
	for _, b := range s.seams() {
		if p, ok := b.v.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every enabled backend, clickhouse first
func (s *Store) Close(context.Context) error {
	var errs []error
	b := s.seams()
	for i := len(b) - 1; i >= 0; i-- {
		if c, ok := b[i].v.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b[i].name, err))
			}
		}
	}
	return errors.Join(errs...)
}
