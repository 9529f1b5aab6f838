package store

import (
	"context"
	"fmt"
	"time"

	chx "hma/internal/platform/store/ch"
	"hma/internal/platform/store/pg"
)

// openPG opens the pool and publishes the adapter once a ping succeeds
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var opts []pg.Option
	if cfg.PG.LogSQL {
		opts = append(opts, pg.WithTracer(pg.Tracer(s.Log)))
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		AppName:  cfg.AppName,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
	}, opts...)
	if err != nil {
		return nil, err
	}
	if err := waitReady(ctx, p.Pool.Ping, cfg.PG.ConnectRetries, cfg.PG.PingTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a := newPGAdapter(p)
	s.PG = a
	return a, nil
}

// waitReady pings up to attempts times (20 when unset), doubling the pause
// between tries from 150ms up to 2s
func waitReady(ctx context.Context, ping func(context.Context) error, attempts int, timeout time.Duration) error {
	if attempts <= 0 {
		attempts = 20
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pause := 150 * time.Millisecond
	var err error
	for i := range attempts {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err = ping(pctx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
		pause = min(2*pause, 2*time.Second)
	}
	return fmt.Errorf("ping failed after %d attempts: %w", attempts, err)
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{
		URL:  cfg.CH.URL,
		Role: cfg.CH.ClientRole,
		Tag:  cfg.CH.ClientTag,
	})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}
