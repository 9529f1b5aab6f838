package guardrails

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"hma/internal/modkit/repokit"
	"hma/internal/platform/logger"
	"hma/internal/services/exchanges/repo"
)

// ErrLeaseHeld signals another worker is fetching the exchange already
var ErrLeaseHeld = errors.New("exchanges: fetch lease already held")

// now is swapped in tests
var now = time.Now

// LeaseFunc runs do while holding the fetch lease of one exchange
type LeaseFunc func(ctx context.Context, collabID int64, do func(context.Context) error) error

// MakeFetchLease returns a LeaseFunc backed by the exchange_fetch_status row.
// The claim is a conditional update on running_fetch_start_ts, so a lease whose
// holder started more than stale ago is taken over. The lease is released when
// do returns, even when ctx is already done
func MakeFetchLease(db repokit.TxRunner, binder repokit.Binder[repo.Repo], stale time.Duration) LeaseFunc {
	return func(ctx context.Context, collabID int64, do func(context.Context) error) error {
		owner := uuid.NewString()
		t := now()
		staleBefore := int64(0)
		if stale > 0 {
			staleBefore = t.Add(-stale).Unix()
		}

		var claimed bool
		err := db.Tx(ctx, func(q repokit.Queryer) error {
			var err error
			claimed, err = binder.Bind(q).ClaimLease(ctx, collabID, owner, t.Unix(), staleBefore)
			return err
		})
		if err != nil {
			return err
		}
		if !claimed {
			return ErrLeaseHeld
		}

		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := db.Tx(rctx, func(q repokit.Queryer) error {
				return binder.Bind(q).ReleaseLease(rctx, collabID, owner)
			}); err != nil {
				logger.C(ctx).Warn().Err(err).Int64("collab_id", collabID).Msg("fetch lease release failed")
			}
		}()
		return do(ctx)
	}
}
