package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"

	"hma/internal/core/exchange"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
	"hma/internal/platform/metrics"
	banksdom "hma/internal/services/banks/domain"
	banksrepo "hma/internal/services/banks/repo"
	"hma/internal/services/exchanges/domain"
	"hma/internal/services/exchanges/guardrails"
	"hma/internal/services/exchanges/repo"
)

// FetchAll runs one cycle per enabled exchange, sequentially in name order.
// Cycle failures are recorded in the fetch status and reported in the results, not returned
func (s *Svc) FetchAll(ctx context.Context) ([]domain.CycleResult, error) {
	xs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CycleResult, 0, len(xs))
	for _, x := range xs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !x.FetchingEnabled {
			continue
		}
		out = append(out, s.cycle(ctx, x))
	}
	return out, nil
}

// FetchOne runs one cycle for the named exchange whether or not fetching is enabled
func (s *Svc) FetchOne(ctx context.Context, name string) (domain.CycleResult, error) {
	x, err := s.Repo.ByName(ctx, name)
	if err != nil {
		return domain.CycleResult{}, err
	}
	return s.cycle(ctx, x), nil
}

// Clear forgets everything fetched for the named exchange
func (s *Svc) Clear(ctx context.Context, name string) error {
	x, err := s.Repo.ByName(ctx, name)
	if err != nil {
		return err
	}
	return s.clear(ctx, x)
}

func (s *Svc) clear(ctx context.Context, x domain.Exchange) error {
	return s.tx(ctx, func(r repo.Repo, br banksrepo.Repo) error {
		var removed int64
		b, err := br.BankByExchange(ctx, x.ID)
		switch {
		case err == nil:
			if removed, err = br.RemoveBankMembers(ctx, b.ID); err != nil {
				return err
			}
		case !perr.IsCode(err, perr.ErrorCodeNotFound):
			return err
		}
		n, err := r.ClearData(ctx, x.ID)
		if err != nil {
			return err
		}
		logger.C(ctx).Info().Int64("members", removed).Int64("records", n).Msg("exchange cleared")
		return r.ResetProgress(ctx, x.ID)
	})
}

func (s *Svc) cycle(ctx context.Context, x domain.Exchange) (res domain.CycleResult) {
	ctx = logger.WithCollab(ctx, x.Name)
	started := s.now()
	res = domain.CycleResult{Collab: x.Name}
	defer func() {
		res.Took = s.now().Sub(started)
		metrics.FetchCycles.WithLabelValues(x.Name, string(res.Outcome)).Inc()
		if res.Stale {
			metrics.FetchCycles.WithLabelValues(x.Name, "stale").Inc()
		}
		summarize(res)
	}()

	api, ok := s.apis.Get(x.API)
	if !ok {
		s.fail(ctx, x, perr.InvalidArgf("exchange api %q is not installed", x.API), &res)
		return res
	}
	st, err := s.Repo.Status(ctx, x.ID)
	if err != nil {
		res.Outcome, res.Err = domain.OutcomeFailed, err
		return res
	}
	if st.PermanentFailure {
		res.Outcome, res.Reason = domain.OutcomeSkipped, "permanent failure: "+st.LastError
		return res
	}

	err = s.lease(ctx, x.ID, func(ctx context.Context) error {
		return s.fetch(ctx, x, api, st, &res)
	})
	switch {
	case errors.Is(err, guardrails.ErrLeaseHeld):
		res.Outcome, res.Reason = domain.OutcomeSkipped, "lease held"
	case err != nil:
		s.fail(ctx, x, err, &res)
	default:
		res.Outcome = domain.OutcomeOK
	}
	return res
}

func summarize(res domain.CycleResult) {
	ev := logger.Named("fetch").Info()
	if res.Outcome == domain.OutcomeFailed {
		ev = logger.Named("fetch").Warn().Err(res.Err)
	}
	ev.Str("collab", res.Collab).
		Str("outcome", string(res.Outcome)).
		Str("reason", res.Reason).
		Int("batches", res.Batches).
		Int("upserts", res.Upserts).
		Int("deletes", res.Deletes).
		Int("skipped", res.Skipped).
		Bool("up_to_date", res.UpToDate).
		Bool("stale_refetch", res.Stale).
		Dur("took", res.Took).
		Msg("fetch cycle")
}

// fail records a failed cycle. Permanent failures stop retries until an operator re-enables the exchange
func (s *Svc) fail(ctx context.Context, x domain.Exchange, err error, res *domain.CycleResult) {
	permanent := exchange.Classify(err) == exchange.Permanent
	res.Outcome, res.Err = domain.OutcomeFailed, err
	if permanent {
		res.Reason = "permanent"
	}
	dctx, cancel := guardrails.ForDB(context.WithoutCancel(ctx), s.timeouts())
	defer cancel()
	if rerr := s.Repo.RecordFailure(dctx, x.ID, err.Error(), permanent, s.now().Unix()); rerr != nil {
		logger.C(ctx).Error().Err(rerr).Msg("recording fetch failure failed")
	}
}

func (s *Svc) enabledTypes(ctx context.Context) ([]signal.SignalType, error) {
	ratios, err := s.banks.Bind(s.db).SignalTypeRatios(ctx)
	if err != nil {
		return nil, err
	}
	var out []signal.SignalType
	for _, st := range s.signals.SignalTypes() {
		if r, ok := ratios[st.Name()]; ok && r <= 0 {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// fetch pulls batches and applies them until the iterator is exhausted or the cycle budget is spent
func (s *Svc) fetch(ctx context.Context, x domain.Exchange, api exchange.API, st domain.FetchStatus, res *domain.CycleResult) error {
	cp, err := api.DecodeCheckpoint(st.Checkpoint)
	if err != nil {
		return err
	}
	if exchange.IsStale(cp, s.now(), s.cfg.Retention) {
		logger.C(ctx).Warn().Time("progress", cp.ProgressTime()).Msg("checkpoint aged out, refetching from scratch")
		if err := s.clear(ctx, x); err != nil {
			return err
		}
		cp, res.Stale = nil, true
	}
	types, err := s.enabledTypes(ctx)
	if err != nil {
		return err
	}
	creds, err := s.Repo.Credentials(ctx, x.API)
	if err != nil {
		return err
	}
	collab := exchange.Collab{Name: x.Name, Config: x.TypedConfig, Credentials: creds}

	fctx, cancel := guardrails.WithCycle(ctx, s.timeouts())
	defer cancel()
	it, err := api.Fetch(fctx, exchange.FetchRequest{Collab: collab, SignalTypes: types, Checkpoint: cp})
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	budgetSpent := func() bool { return fctx.Err() != nil && ctx.Err() == nil }
	prev := cp
	var prevRaw json.RawMessage
	if cp != nil {
		// re-encoded so a first batch repeating the stored checkpoint compares equal
		if prevRaw, err = json.Marshal(cp); err != nil {
			return perr.Wrap(err, perr.ErrorCodeJSON, "encode checkpoint")
		}
	}
	upToDate := false
	for !budgetSpent() {
		b, err := it.Next(fctx)
		if errors.Is(err, io.EOF) {
			upToDate = true
			break
		}
		if err != nil {
			if budgetSpent() {
				break
			}
			return err
		}
		raw, err := advance(prev, prevRaw, b.Checkpoint)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, x, api, types, collab, b, raw, res); err != nil {
			return err
		}
		prev, prevRaw = b.Checkpoint, raw
		res.Batches++
	}
	if !upToDate {
		logger.C(ctx).Warn().Dur("budget", s.cfg.CycleBudget).Msg("fetch budget spent, resuming next cycle")
	}
	res.UpToDate = upToDate

	dctx, dcancel := guardrails.ForDB(ctx, s.timeouts())
	defer dcancel()
	return s.Repo.Complete(dctx, x.ID, upToDate, s.now().Unix())
}

// advance checks that next moves the fetch forward and encodes it.
// Progress may never go back and the same checkpoint may not repeat, the stored one included
func advance(prev exchange.Checkpoint, prevRaw json.RawMessage, next exchange.Checkpoint) (json.RawMessage, error) {
	if next == nil {
		return nil, perr.InvalidArgf("exchange yielded a batch without a checkpoint")
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeJSON, "encode checkpoint")
	}
	if prev == nil {
		return raw, nil
	}
	if next.ProgressTime().Before(prev.ProgressTime()) {
		return nil, perr.InvalidArgf("checkpoint moved backwards from %s to %s",
			prev.ProgressTime().Format("2006-01-02T15:04:05Z"), next.ProgressTime().Format("2006-01-02T15:04:05Z"))
	}
	if prevRaw != nil && bytes.Equal(raw, prevRaw) {
		return nil, perr.InvalidArgf("checkpoint did not advance between batches")
	}
	return raw, nil
}

// apply writes one batch and its checkpoint in a single transaction: deletes first, then upserts
func (s *Svc) apply(
	ctx context.Context,
	x domain.Exchange,
	api exchange.API,
	types []signal.SignalType,
	collab exchange.Collab,
	b exchange.Batch,
	cpRaw json.RawMessage,
	res *domain.CycleResult,
) error {
	keys := make([]string, 0, len(b.Updates))
	for k := range b.Updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dctx, cancel := guardrails.ForDB(ctx, s.timeouts())
	defer cancel()

	var st stats
	err := s.tx(dctx, func(r repo.Repo, br banksrepo.Repo) error {
		bank, err := s.importBank(dctx, br, x)
		if err != nil {
			return err
		}
		stored, err := r.DataByFetchIDs(dctx, x.ID, keys)
		if err != nil {
			return err
		}

		merged := make(map[string]json.RawMessage, len(keys))
		for _, k := range keys {
			next := b.Updates[k]
			if next == nil {
				merged[k] = nil
				continue
			}
			var old json.RawMessage
			if d, ok := stored[k]; ok {
				old = d.Payload
			}
			if merged[k], err = api.Merge(old, next); err != nil {
				return err
			}
		}

		for _, k := range keys {
			if merged[k] != nil {
				continue
			}
			if d, ok := stored[k]; ok {
				if err := drop(dctx, r, br, d); err != nil {
					return err
				}
				st.deletes++
			}
		}

		for _, k := range keys {
			v := merged[k]
			if v == nil {
				continue
			}
			if err := s.upsert(dctx, r, br, x, api, types, collab, bank, k, v, stored, &st); err != nil {
				return err
			}
		}
		return r.SaveCheckpoint(dctx, x.ID, b.Checkpoint.ProgressTime().Unix(), cpRaw)
	})
	if err != nil {
		return err
	}

	res.Upserts += st.upserts
	res.Deletes += st.deletes
	res.Skipped += st.skipped
	metrics.FetchUpdates.WithLabelValues(x.Name, "upsert").Add(float64(st.upserts))
	metrics.FetchUpdates.WithLabelValues(x.Name, "delete").Add(float64(st.deletes))
	metrics.FetchUpdates.WithLabelValues(x.Name, "skipped").Add(float64(st.skipped))
	return nil
}

type stats struct {
	upserts, deletes, skipped int
}

// importBank returns the bank an exchange imports into, recreating it if it went missing
func (s *Svc) importBank(ctx context.Context, br banksrepo.Repo, x domain.Exchange) (banksdom.Bank, error) {
	b, err := br.BankByExchange(ctx, x.ID)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		logger.C(ctx).Warn().Msg("import bank missing, recreating")
		return br.CreateBank(ctx, x.Name, 1, &x.ID)
	}
	return b, err
}

// drop soft removes the member a record backs, then deletes the record
func drop(ctx context.Context, r repo.Repo, br banksrepo.Repo, d domain.Data) error {
	if _, err := br.RemoveByImportedFrom(ctx, d.ID); err != nil {
		return err
	}
	return r.DeleteData(ctx, d.ID)
}

func (s *Svc) upsert(
	ctx context.Context,
	r repo.Repo,
	br banksrepo.Repo,
	x domain.Exchange,
	api exchange.API,
	types []signal.SignalType,
	collab exchange.Collab,
	bank banksdom.Bank,
	key string,
	value json.RawMessage,
	stored map[string]domain.Data,
	st *stats,
) error {
	log := logger.C(ctx)
	sigs, err := api.Convert(types, collab, key, value)
	if err != nil {
		log.Warn().Err(err).Str("fetch_id", key).Msg("record skipped, convert failed")
		st.skipped++
		return nil
	}
	values, contentType, summary, err := flatten(s.signals, key, sigs)
	if err != nil {
		log.Warn().Err(err).Str("fetch_id", key).Msg("record skipped")
		st.skipped++
		return nil
	}
	sum, _ := json.Marshal(summary)

	if len(values) == 0 {
		if !x.RetainUnknown {
			if d, ok := stored[key]; ok {
				if err := drop(ctx, r, br, d); err != nil {
					return err
				}
				st.deletes++
			}
			return nil
		}
		id, err := r.UpsertData(ctx, x.ID, key, value, sum)
		if err != nil {
			return err
		}
		if _, err := br.RemoveByImportedFrom(ctx, id); err != nil {
			return err
		}
		st.upserts++
		return nil
	}

	id, err := r.UpsertData(ctx, x.ID, key, value, sum)
	if err != nil {
		return err
	}
	memberID, err := br.UpsertImported(ctx, banksrepo.NewMember{
		BankID:         bank.ID,
		ContentType:    contentType,
		ImportKey:      key,
		ImportedFromID: &id,
		Tags:           summary.Tags,
	})
	if err != nil {
		return err
	}
	if err := br.ReplaceSignals(ctx, memberID, values); err != nil {
		return err
	}
	st.upserts++
	return nil
}

// flatten turns converted signals into a sorted signal set with its single content type.
// Signals of unknown types are ignored; signals spanning content types are an error
func flatten(reg *signal.Registry, key string, sigs exchange.Signals) ([]banksdom.SignalValue, string, domain.Summary, error) {
	summary := domain.Summary{Signals: map[string][]string{}}
	var names []string
	for name, vals := range sigs {
		if _, ok := reg.Signal(name); ok && len(vals) > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, "", summary, nil
	}
	sort.Strings(names)
	contentType, ok := reg.ContentTypeOf(names...)
	if !ok {
		return nil, "", summary, exchange.ErrMultipleContentTypes(key)
	}

	var out []banksdom.SignalValue
	seen := map[string]bool{}
	for _, name := range names {
		vals := make([]string, 0, len(sigs[name]))
		for v, meta := range sigs[name] {
			vals = append(vals, v)
			for _, t := range meta.Tags {
				if !seen[t] {
					seen[t] = true
					summary.Tags = append(summary.Tags, t)
				}
			}
		}
		sort.Strings(vals)
		for _, v := range vals {
			out = append(out, banksdom.SignalValue{Type: name, Value: v})
		}
		summary.Signals[name] = vals
	}
	sort.Strings(summary.Tags)
	return out, contentType, summary, nil
}
