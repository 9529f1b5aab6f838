// Package ch provides a clickhouse client
package ch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Config configures clickhouse client
type Config struct {
	URL         string
	Role        string
	Tag         string
	DialTimeout time.Duration
}

// Rows is the driver result set
type Rows = driver.Rows

// conn is the subset of driver.Conn we call, swapped in tests
type conn interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// CH wraps a clickhouse-go native connection
type CH struct {
	conn conn
}

// seam for tests
var openConn = func(opts *clickhouse.Options) (conn, error) { return clickhouse.Open(opts) }

// Open parses the dsn and opens a native connection
func Open(ctx context.Context, cfg Config) (*CH, error) {
	if cfg.URL == "" {
		return nil, errors.New("ch: empty url")
	}
	opts, err := clickhouse.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ch: parse dsn: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	opts.ClientInfo = BuildClientInfo(cfg.Role, cfg.Tag)

	c, err := openConn(opts)
	if err != nil {
		return nil, fmt.Errorf("ch: open: %w", err)
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ch: ping: %w", err)
	}
	return &CH{conn: c}, nil
}

// Insert appends rows to table in a single batch
func (c *CH) Insert(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	b, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := b.Append(r...); err != nil {
			_ = b.Abort()
			return err
		}
	}
	return b.Send()
}

// Query runs a query and returns the driver rows
func (c *CH) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return c.conn.Query(ctx, q, args...)
}

// Ping checks connectivity
func (c *CH) Ping(ctx context.Context) error { return c.conn.Ping(ctx) }

// Close closes resources
func (c *CH) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
