// Package worker runs the background fetch and build loops behind a
// cluster wide advisory lock, so only one hma-worker does the work at a time
package worker

import (
	"context"
	"errors"
	"time"

	"hma/internal/platform/logger"
	"hma/internal/platform/store"
	xdom "hma/internal/services/exchanges/domain"
	idom "hma/internal/services/indexer/domain"
)

// LockKey is the pg advisory lock key of the worker election
const LockKey int64 = 0x686d615f776b72 // "hma_wkr"

// errLockLost ends a leadership term
var errLockLost = errors.New("worker: advisory lock lost")

// Fetcher runs fetch cycles
type Fetcher interface {
	FetchAll(ctx context.Context) ([]xdom.CycleResult, error)
}

// Builder runs index builds
type Builder interface {
	BuildAll(ctx context.Context) ([]idom.BuildResult, error)
}

// Config holds loop cadences
type Config struct {
	FetchEvery time.Duration
	BuildEvery time.Duration
	// StandbyEvery is how often a standby retries the lock
	StandbyEvery time.Duration
	// AliveEvery is how often the leader checks it still holds the lock
	AliveEvery time.Duration
}

// Worker elects itself and drives the loops
type Worker struct {
	locker store.Locker
	fetch  Fetcher
	build  Builder
	cfg    Config
}

// New constructs a worker. A nil locker means no election, the loops just run
func New(locker store.Locker, f Fetcher, b Builder, cfg Config) *Worker {
	if cfg.FetchEvery <= 0 {
		cfg.FetchEvery = time.Minute
	}
	if cfg.BuildEvery <= 0 {
		cfg.BuildEvery = 30 * time.Second
	}
	if cfg.StandbyEvery <= 0 {
		cfg.StandbyEvery = cfg.FetchEvery
	}
	if cfg.AliveEvery <= 0 {
		cfg.AliveEvery = 15 * time.Second
	}
	return &Worker{locker: locker, fetch: f, build: b, cfg: cfg}
}

// Run blocks until ctx ends. It returns nil on cancellation
func (w *Worker) Run(ctx context.Context) error {
	log := logger.Named("worker")
	if w.locker == nil {
		log.Warn().Msg("no advisory lock support, running without election")
		err := w.lead(ctx, nil)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		lock, ok, err := w.locker.TryLock(ctx, LockKey)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("advisory lock attempt failed")
		case !ok:
			log.Info().Dur("retry_in", w.cfg.StandbyEvery).Msg("standby")
		default:
			log.Info().Msg("elected, running loops")
			err := w.lead(ctx, lock)
			if rerr := lock.Release(context.Background()); rerr != nil {
				log.Warn().Err(rerr).Msg("advisory lock release")
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("leadership ended")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.StandbyEvery):
		}
	}
}

// lead runs both loops until ctx ends or the lock is lost
func (w *Worker) lead(ctx context.Context, lock store.Lock) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- loop(ctx, w.cfg.FetchEvery, w.FetchOnce) }()
	go func() { errCh <- loop(ctx, w.cfg.BuildEvery, w.BuildOnce) }()
	if lock != nil {
		go func() { errCh <- w.watch(ctx, lock) }()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (w *Worker) watch(ctx context.Context, lock store.Lock) error {
	t := time.NewTicker(w.cfg.AliveEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := lock.Alive(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Join(errLockLost, err)
			}
		}
	}
}

// loop runs fn now and then on every tick
func loop(ctx context.Context, every time.Duration, fn func(context.Context)) error {
	fn(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			fn(ctx)
		}
	}
}

// FetchOnce runs one fetch cycle per enabled exchange. Failures are recorded
// in fetch status by the engine, so they are only logged here
func (w *Worker) FetchOnce(ctx context.Context) {
	res, err := w.fetch.FetchAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Named("worker").Error().Err(err).Msg("fetch tick")
		}
		return
	}
	failed := 0
	for _, r := range res {
		if r.Outcome == xdom.OutcomeFailed {
			failed++
		}
	}
	logger.Named("worker").Debug().Int("collabs", len(res)).Int("failed", failed).Msg("fetch tick done")
}

// BuildOnce builds every dirty index
func (w *Worker) BuildOnce(ctx context.Context) {
	res, err := w.build.BuildAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Named("worker").Error().Err(err).Msg("build tick")
		}
		return
	}
	logger.Named("worker").Debug().Int("signal_types", len(res)).Msg("build tick done")
}
