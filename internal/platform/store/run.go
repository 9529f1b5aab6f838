package store

import "context"

// Lock is a held advisory lock
type Lock interface {
	Alive(ctx context.Context) error
	Release(ctx context.Context) error
}

// Locker is implemented by backends that support session advisory locks
type Locker interface {
	TryLock(ctx context.Context, key int64) (Lock, bool, error)
}

// RunTx calls fn inside a transaction on tx, passing ctx through
func RunTx(ctx context.Context, tx TxRunner, fn func(ctx context.Context, q RowQuerier) error) error {
	return tx.Tx(ctx, func(q RowQuerier) error {
		return fn(ctx, q)
	})
}
