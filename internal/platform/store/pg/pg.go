// Package pg is the postgres pool behind the bank, exchange and index repos.
// Each process role opens its own pool tagged with application_name, and the
// worker role also takes its leadership advisory lock here
package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the pool for one process role
type Config struct {
	URL      string
	AppName  string // shows up in pg_stat_activity, e.g. hma-worker
	MaxConns int32
	SlowMs   int
}

// PG wraps the pool with the settings the sql adapter reads
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer
	SlowMs int
}

// Option adjusts Open
type Option func(*opener)

type opener struct {
	tracer QueryTracer
	tune   []func(*pgxpool.Config)
}

// WithTracer logs statements through t
func WithTracer(t QueryTracer) Option {
	return func(o *opener) { o.tracer = t }
}

// WithPoolConfig edits the parsed pool config before the pool is created
func WithPoolConfig(fn func(*pgxpool.Config)) Option {
	return func(o *opener) {
		if fn != nil {
			o.tune = append(o.tune, fn)
		}
	}
}

var newPool = pgxpool.NewWithConfig

// Open parses cfg.URL and creates the pool. It does not ping
func Open(ctx context.Context, cfg Config, opts ...Option) (*PG, error) {
	var o opener
	for _, opt := range opts {
		opt(&o)
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.AppName != "" {
		if pcfg.ConnConfig.RuntimeParams == nil {
			pcfg.ConnConfig.RuntimeParams = map[string]string{}
		}
		pcfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	for _, fn := range o.tune {
		fn(pcfg)
	}
	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &PG{Pool: pool, Tracer: o.tracer, SlowMs: cfg.SlowMs}, nil
}

// Close is safe on a nil client or one whose pool never opened
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}
