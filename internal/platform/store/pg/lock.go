package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Lock is a session advisory lock pinned to one pooled connection
type Lock struct {
	key  int64
	conn *pgxpool.Conn
}

// TryAdvisoryLock takes pg_try_advisory_lock(key) on a dedicated connection
// ok is false when another session holds the key
func (p *PG) TryAdvisoryLock(ctx context.Context, key int64) (*Lock, bool, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return &Lock{key: key, conn: conn}, true, nil
}

// Alive pings the pinned connection; a dead session has lost the lock
func (l *Lock) Alive(ctx context.Context) error {
	return l.conn.Ping(ctx)
}

// Release unlocks and returns the connection to the pool
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()
	_, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	return err
}
