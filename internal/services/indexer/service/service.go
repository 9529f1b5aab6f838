// Package service builds signal indices from the bank store and serves them to the matcher
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"hma/internal/core/signal"
	"hma/internal/modkit/repokit"
	"hma/internal/platform/blob"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
	"hma/internal/platform/metrics"
	banksdom "hma/internal/services/banks/domain"
	"hma/internal/services/indexer/domain"
	"hma/internal/services/indexer/repo"
)

// Service defines the service contract for the indexer
type Service interface {
	domain.BuilderPort
	domain.StorePort
}

// Config holds index build tunables
type Config struct {
	// Budget bounds one build; <=0 -> 30m
	Budget time.Duration
	// DirtyCount is how many changed signals make an index dirty; <=0 -> 1
	DirtyCount int64
	// DirtyAge rebuilds below DirtyCount once the newest signal is this far past the build; 0 disables
	DirtyAge time.Duration
	// Batch is the signal page size while streaming; <=0 -> 1000
	Batch int
	// Parallel caps concurrent builds in BuildAll; <=0 -> one per signal type
	Parallel int
}

// Svc implements the Service interface
type Svc struct {
	Repo    repo.Repo
	binder  repokit.Binder[repo.Repo]
	db      repokit.TxRunner
	reader  banksdom.ReaderPort
	signals *signal.Registry
	blobs   blob.Store
	cfg     Config
}

// New creates a new indexer service. A nil blobs keeps payloads in the signal_index row
func New(
	db repokit.TxRunner,
	binder repokit.Binder[repo.Repo],
	reader banksdom.ReaderPort,
	signals *signal.Registry,
	blobs blob.Store,
	cfg Config,
) *Svc {
	if db == nil {
		panic("indexer.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("indexer.Service requires a non nil Repo binder")
	}
	if reader == nil || signals == nil {
		panic("indexer.Service requires a bank reader and a signal registry")
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Minute
	}
	if cfg.DirtyCount <= 0 {
		cfg.DirtyCount = 1
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 1000
	}
	return &Svc{
		Repo:    binder.Bind(db),
		binder:  binder,
		db:      db,
		reader:  reader,
		signals: signals,
		blobs:   blobs,
		cfg:     cfg,
	}
}

// BuildAll builds every installed signal type whose index is dirty, then reaps
// removed members that every index has moved past
func (s *Svc) BuildAll(ctx context.Context) ([]domain.BuildResult, error) {
	ratios, err := s.reader.SignalTypeRatios(ctx)
	if err != nil {
		return nil, err
	}
	types := s.signals.SignalTypes()
	out := make([]domain.BuildResult, len(types))

	var g errgroup.Group
	if s.cfg.Parallel > 0 {
		g.SetLimit(s.cfg.Parallel)
	}
	for i, st := range types {
		g.Go(func() error {
			out[i] = s.build(ctx, st, false, ratios)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() == nil {
		if _, err := s.reader.Reap(ctx); err != nil {
			logger.Named("indexer").Warn().Err(err).Msg("reap removed members")
		}
	}
	return out, ctx.Err()
}

// Build builds one signal type. force skips the dirty check but not a disabled type
func (s *Svc) Build(ctx context.Context, signalType string, force bool) (domain.BuildResult, error) {
	st, ok := s.signals.Signal(signalType)
	if !ok {
		return domain.BuildResult{}, perr.WithField(perr.NotFoundf("signal type %q is not installed", signalType), "signal_type")
	}
	ratios, err := s.reader.SignalTypeRatios(ctx)
	if err != nil {
		return domain.BuildResult{}, err
	}
	res := s.build(ctx, st, force, ratios)
	return res, res.Err
}

func (s *Svc) build(ctx context.Context, st signal.SignalType, force bool, ratios map[string]float64) (res domain.BuildResult) {
	name := st.Name()
	ctx = logger.WithSignalType(ctx, name)
	started := time.Now()
	res = domain.BuildResult{SignalType: name}
	defer func() {
		res.Took = time.Since(started)
		metrics.IndexBuilds.WithLabelValues(name, string(res.Outcome)).Inc()
		if res.Outcome == domain.OutcomeBuilt {
			metrics.IndexSignals.WithLabelValues(name).Set(float64(res.Signals))
		}
		summarize(res)
	}()

	if r, ok := ratios[name]; ok && r <= 0 {
		res.Outcome, res.Reason = domain.OutcomeSkipped, "disabled"
		return res
	}

	target, err := s.reader.BuildTarget(ctx, name)
	if err != nil {
		return failed(res, err, "read build target")
	}
	res.Checkpoint = target

	if !force {
		var last *banksdom.Checkpoint
		prev, err := s.Repo.Info(ctx, name)
		switch {
		case err == nil:
			last = &prev.Checkpoint
		case !perr.IsCode(err, perr.ErrorCodeNotFound):
			return failed(res, err, "read stored index")
		}
		dirty, why := domain.Dirty(last, target, s.cfg.DirtyCount, s.cfg.DirtyAge)
		if !dirty {
			res.Outcome, res.Reason = domain.OutcomeSkipped, why
			return res
		}
		res.Reason = why
	} else {
		res.Reason = "forced"
	}

	bctx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	idx, n, err := s.stream(bctx, st, target)
	if err != nil {
		if bctx.Err() != nil && ctx.Err() == nil {
			return failed(res, perr.Unavailablef("build budget %s spent after %d signals", s.cfg.Budget, n), "budget")
		}
		return failed(res, err, "stream signals")
	}
	payload, err := idx.MarshalBinary()
	if err != nil {
		return failed(res, err, "serialize")
	}
	if bctx.Err() != nil && ctx.Err() == nil {
		return failed(res, perr.Unavailablef("build budget %s spent while serializing", s.cfg.Budget), "budget")
	}

	info := domain.Info{SignalType: name, Checkpoint: target, Size: int64(len(payload))}
	if _, err := s.save(ctx, info, payload); err != nil {
		return failed(res, err, "store")
	}
	res.Outcome, res.Signals, res.Bytes = domain.OutcomeBuilt, n, len(payload)
	return res
}

// stream adds every live signal up to target to a fresh index
func (s *Svc) stream(ctx context.Context, st signal.SignalType, target banksdom.Checkpoint) (signal.Index, int, error) {
	idx := st.NewIndex()
	if target.Count == 0 {
		return idx, 0, nil
	}
	upTo := target.Time()
	var cur banksdom.Cursor
	n := 0
	for {
		rows, err := s.reader.IterSignals(ctx, st.Name(), cur, upTo, s.cfg.Batch)
		if err != nil {
			return nil, n, err
		}
		for _, r := range rows {
			if err := idx.Add(r.Value, r.MemberID); err != nil {
				return nil, n, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "add signal of member %d", r.MemberID)
			}
			n++
		}
		if len(rows) < s.cfg.Batch {
			return idx, n, ctx.Err()
		}
		cur = banksdom.After(rows[len(rows)-1])
	}
}

// save replaces the stored index. With a blob store the payload is written first
// and the row swapped under a row lock; the superseded object is deleted afterwards
func (s *Svc) save(ctx context.Context, info domain.Info, payload []byte) (domain.Info, error) {
	if s.blobs == nil {
		return s.Repo.Save(ctx, repo.Row{Info: info, Blob: payload})
	}

	key, err := s.blobs.Put(ctx, "indexes/"+info.SignalType, payload)
	if err != nil {
		return domain.Info{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "upload %s index to %s", info.SignalType, s.blobs.Name())
	}

	var (
		old   string
		saved domain.Info
	)
	err = s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		var err error
		if old, err = r.LockKey(ctx, info.SignalType); err != nil {
			return err
		}
		saved, err = r.Save(ctx, repo.Row{Info: info, BlobKey: key})
		return err
	})
	log := logger.C(ctx)
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("orphaned index blob")
		}
		return domain.Info{}, err
	}
	if old != "" && old != key {
		if err := s.blobs.Delete(ctx, old); err != nil && !errors.Is(err, blob.ErrNotFound) {
			log.Warn().Err(err).Str("key", old).Msg("delete superseded index blob")
		}
	}
	return saved, nil
}

func failed(res domain.BuildResult, err error, reason string) domain.BuildResult {
	res.Outcome, res.Reason, res.Err = domain.OutcomeFailed, reason, err
	return res
}

func summarize(res domain.BuildResult) {
	log := logger.Named("indexer")
	ev := log.Info()
	switch res.Outcome {
	case domain.OutcomeFailed:
		ev = log.Error().Err(res.Err)
	case domain.OutcomeSkipped:
		ev = log.Debug()
	}
	ev.Str("signal_type", res.SignalType).
		Str("outcome", string(res.Outcome)).
		Str("reason", res.Reason).
		Int64("count", res.Checkpoint.Count).
		Int("signals", res.Signals).
		Int("bytes", res.Bytes).
		Dur("took", res.Took).
		Msg("index build")
}

// Infos implements domain.StorePort
func (s *Svc) Infos(ctx context.Context) ([]domain.Info, error) {
	out, err := s.Repo.Infos(ctx)
	if out == nil {
		out = []domain.Info{}
	}
	return out, err
}

// Info implements domain.StorePort
func (s *Svc) Info(ctx context.Context, signalType string) (domain.Info, bool, error) {
	i, err := s.Repo.Info(ctx, signalType)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.Info{}, false, nil
	}
	if err != nil {
		return domain.Info{}, false, err
	}
	return i, true, nil
}

// Load implements domain.StorePort
func (s *Svc) Load(ctx context.Context, signalType string) (domain.Info, []byte, error) {
	info, payload, err := s.Repo.Load(ctx, signalType)
	if err != nil || info.BlobKey == "" {
		return info, payload, err
	}
	if s.blobs == nil {
		return domain.Info{}, nil, perr.Unavailablef("%s index lives in a blob store that is not configured", signalType)
	}
	payload, err = s.blobs.Get(ctx, info.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		// replaced between the row read and the download; the next load sees the new key
		return domain.Info{}, nil, perr.Unavailablef("%s index was replaced while loading", signalType)
	}
	if err != nil {
		return domain.Info{}, nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "download %s index", signalType)
	}
	return info, payload, nil
}
