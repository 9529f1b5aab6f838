// Package service answers match queries against the cached indices
package service

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"hma/internal/core/hashing"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
	"hma/internal/platform/metrics"
	banksdom "hma/internal/services/banks/domain"
	xdom "hma/internal/services/exchanges/domain"
	indexdom "hma/internal/services/indexer/domain"
	"hma/internal/services/matcher/audit"
	"hma/internal/services/matcher/cache"
	"hma/internal/services/matcher/domain"
	"hma/internal/services/matcher/filters"
)

// Config holds match tunables
type Config struct {
	// Strict answers lookups before the first build with IndexStale instead of no matches
	Strict bool
	// StaleAfter is how long an index may go unconfirmed before Ready fails; <=0 -> 3m
	StaleAfter time.Duration
	// RatioTTL is how long signal type overrides are cached; <=0 -> 10s
	RatioTTL time.Duration
}

// Deps are the collaborators of the match service. Hasher, Matched and Audit are optional
type Deps struct {
	Cache   *cache.Cache
	Store   indexdom.StorePort
	Banks   banksdom.ReaderPort
	Signals *signal.Registry
	Hasher  *hashing.Hasher
	Matched xdom.MatchPort
	Audit   domain.AuditPort
}

type ratios struct {
	m  map[string]float64
	at time.Time
}

// Svc implements domain.ServicePort
type Svc struct {
	d      Deps
	cfg    Config
	chain  filters.Chain
	ratios atomic.Pointer[ratios]

	now   func() time.Time
	async func(func())
}

// New creates the match service
func New(d Deps, cfg Config) *Svc {
	if d.Cache == nil || d.Store == nil || d.Banks == nil || d.Signals == nil {
		panic("matcher.Service requires a cache, an index store, a bank reader and a signal registry")
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * time.Minute
	}
	if cfg.RatioTTL <= 0 {
		cfg.RatioTTL = 10 * time.Second
	}
	return &Svc{
		d:     d,
		cfg:   cfg,
		chain: filters.Default(),
		now:   time.Now,
		async: func(f func()) { go f() },
	}
}

// enabledRatio returns the override of signalType, 1 when absent
func (s *Svc) enabledRatio(ctx context.Context, signalType string) (float64, error) {
	cur := s.ratios.Load()
	if cur == nil || s.now().Sub(cur.at) >= s.cfg.RatioTTL {
		m, err := s.d.Banks.SignalTypeRatios(ctx)
		if err != nil {
			if cur == nil {
				return 0, err
			}
			logger.C(ctx).Warn().Err(err).Msg("signal type overrides, using cached")
		} else {
			cur = &ratios{m: m, at: s.now()}
			s.ratios.Store(cur)
		}
	}
	if r, ok := cur.m[signalType]; ok {
		return r, nil
	}
	return 1, nil
}

// signalType resolves an enabled signal type and canonicalizes sig
func (s *Svc) signalType(ctx context.Context, name, sig string) (signal.SignalType, string, error) {
	if name == "" {
		return nil, "", perr.WithField(perr.Validationf("signal_type is required"), "signal_type")
	}
	st, ok := s.d.Signals.Signal(name)
	if !ok {
		return nil, "", perr.WithField(perr.Validationf("unknown signal type %q", name), "signal_type")
	}
	r, err := s.enabledRatio(ctx, name)
	if err != nil {
		return nil, "", err
	}
	if r <= 0 {
		return nil, "", perr.WithField(perr.Validationf("signal type %q is not enabled", name), "signal_type")
	}
	canon, err := st.Validate(sig)
	if err != nil {
		return nil, "", err
	}
	return st, canon, nil
}

// snapshot returns the served index, nil before the first build unless strict or required
func (s *Svc) snapshot(ctx context.Context, name string, required bool) (signal.Index, error) {
	snap, err := s.d.Cache.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if snap.Built() {
		return snap.Index, nil
	}
	if required || s.cfg.Strict {
		return nil, perr.Unavailablef("INDEX-STALE: no %s index has been loaded", name)
	}
	return nil, nil
}

// RawLookup implements domain.ServicePort
func (s *Svc) RawLookup(ctx context.Context, signalType, sig string, withDistance bool) (out []domain.RawMatch, err error) {
	started := time.Now()
	defer func() { metrics.ObserveLookup(s.label(signalType), outcome(len(out), err), started) }()

	st, canon, err := s.signalType(ctx, signalType, sig)
	if err != nil {
		return nil, err
	}
	idx, err := s.snapshot(ctx, st.Name(), false)
	if err != nil || idx == nil {
		return []domain.RawMatch{}, err
	}
	ms, err := idx.Query(canon)
	if err != nil {
		return nil, err
	}
	out = make([]domain.RawMatch, 0, len(ms))
	for _, m := range ms {
		rm := domain.RawMatch{MemberID: m.ID}
		if withDistance {
			d := m.Distance
			rm.Distance = &d
		}
		out = append(out, rm)
	}
	return out, nil
}

// Lookup implements domain.ServicePort
func (s *Svc) Lookup(ctx context.Context, q domain.Query) (domain.Lookup, error) {
	return s.lookup(ctx, q, lookupOp{
		query: func(idx signal.Index, sig string) ([]signal.Match, error) { return idx.Query(sig) },
	})
}

// LookupTopK implements domain.ServicePort
func (s *Svc) LookupTopK(ctx context.Context, q domain.Query, k int) (domain.Lookup, error) {
	if k <= 0 {
		return nil, perr.WithField(perr.OutOfRangef("k must be positive"), "k")
	}
	return s.lookup(ctx, q, lookupOp{
		name:     "top_k",
		ownBound: true,
		supports: func(idx signal.Index) bool { _, ok := idx.(signal.TopKIndex); return ok },
		query: func(idx signal.Index, sig string) ([]signal.Match, error) {
			return idx.(signal.TopKIndex).QueryTopK(sig, k)
		},
	})
}

// LookupThreshold implements domain.ServicePort
func (s *Svc) LookupThreshold(ctx context.Context, q domain.Query, threshold float64) (domain.Lookup, error) {
	if threshold < 0 {
		return nil, perr.WithField(perr.OutOfRangef("threshold must not be negative"), "threshold")
	}
	return s.lookup(ctx, q, lookupOp{
		name:     "threshold",
		ownBound: true,
		supports: func(idx signal.Index) bool { _, ok := idx.(signal.ThresholdIndex); return ok },
		query: func(idx signal.Index, sig string) ([]signal.Match, error) {
			return idx.(signal.ThresholdIndex).QueryThreshold(sig, threshold)
		},
	})
}

// lookupOp is one way of querying an index. Optional operations set supports
// and need a loaded index; ownBound skips the confident distance filter
type lookupOp struct {
	name     string
	ownBound bool
	supports func(signal.Index) bool
	query    func(idx signal.Index, sig string) ([]signal.Match, error)
}

func (s *Svc) lookup(ctx context.Context, q domain.Query, op lookupOp) (out domain.Lookup, err error) {
	started := time.Now()
	defer func() { metrics.ObserveLookup(s.label(q.SignalType), outcome(len(out), err), started) }()

	st, canon, err := s.signalType(ctx, q.SignalType, q.Signal)
	if err != nil {
		return nil, err
	}
	if op.supports != nil && !op.supports(st.NewIndex()) {
		return nil, signal.NotSupported(st.Name(), op.name)
	}
	idx, err := s.snapshot(ctx, st.Name(), op.supports != nil)
	if err != nil || idx == nil {
		return domain.Lookup{}, err
	}
	ms, err := op.query(idx, canon)
	if err != nil {
		return nil, err
	}

	fq := filters.Query{
		Now:             s.now(),
		IncludeDisputed: q.IncludeDisputed,
		BypassRatio:     q.BypassRatio,
		Key:             ratioKey(q.Seed, st.Name(), canon),
	}
	if t, ok := st.(signal.Thresholded); ok && !op.ownBound {
		fq.Threshold = t.ConfidentThreshold()
	}
	kept, err := s.resolve(ctx, ms)
	if err != nil {
		return nil, err
	}
	kept = s.chain.Apply(fq, kept)

	out = group(kept)
	s.report(ctx, st.Name(), kept, out)
	return out, nil
}

func ratioKey(seed, signalType, canon string) string {
	if seed != "" {
		return seed
	}
	return signalType + ":" + canon
}

// resolve loads the members behind index hits. Hits whose member is gone are dropped
func (s *Svc) resolve(ctx context.Context, ms []signal.Match) ([]filters.Candidate, error) {
	if len(ms) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(ms))
	seen := make(map[int64]bool, len(ms))
	for _, m := range ms {
		if !seen[m.ID] {
			seen[m.ID] = true
			ids = append(ids, m.ID)
		}
	}
	members, err := s.d.Banks.Members(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]banksdom.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	out := make([]filters.Candidate, 0, len(ms))
	for _, m := range ms {
		if mem, ok := byID[m.ID]; ok {
			out = append(out, filters.Candidate{Member: mem, Distance: m.Distance})
		}
	}
	return out, nil
}

func group(cs []filters.Candidate) domain.Lookup {
	out := domain.Lookup{}
	for _, c := range cs {
		b := c.Member.BankName
		out[b] = append(out[b], domain.Match{MemberID: c.Member.ID, Distance: c.Distance, Tags: c.Member.Tags})
	}
	for _, ms := range out {
		sort.SliceStable(ms, func(i, j int) bool {
			if ms[i].Distance != ms[j].Distance {
				return ms[i].Distance < ms[j].Distance
			}
			return ms[i].MemberID < ms[j].MemberID
		})
	}
	return out
}

// report audits the lookup and flags exchange records of matched members
func (s *Svc) report(ctx context.Context, signalType string, kept []filters.Candidate, out domain.Lookup) {
	banks := make([]string, 0, len(out))
	n := 0
	for b, ms := range out {
		banks = append(banks, b)
		n += len(ms)
	}
	sort.Strings(banks)
	s.d.Audit.Record(domain.Event{At: s.now(), SignalType: signalType, Matches: n, Banks: banks})

	if s.d.Matched == nil {
		return
	}
	var dataIDs []int64
	for _, c := range kept {
		if c.Member.ImportedFromID != nil {
			dataIDs = append(dataIDs, *c.Member.ImportedFromID)
		}
	}
	if len(dataIDs) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.async(func() {
		ctx, cancel := context.WithTimeout(bg, 10*time.Second)
		defer cancel()
		if err := s.d.Matched.MarkMatched(ctx, dataIDs); err != nil {
			logger.C(ctx).Warn().Err(err).Int("records", len(dataIDs)).Msg("mark exchange records matched")
		}
	})
}

// LookupContent implements domain.ServicePort
func (s *Svc) LookupContent(ctx context.Context, q domain.ContentQuery) (domain.ContentLookup, error) {
	if s.d.Hasher == nil {
		return nil, perr.NotSupportedf("lookup by content needs the hasher role")
	}
	var (
		hashes map[string]string
		err    error
	)
	switch {
	case q.URL != "" && q.Data != nil:
		return nil, perr.Validationf("give either a url or an upload, not both")
	case q.URL != "":
		hashes, err = s.d.Hasher.HashURL(ctx, q.ContentType, q.URL)
	case q.Data != nil:
		hashes, err = s.d.Hasher.HashBytes(ctx, q.ContentType, q.Data)
	default:
		return nil, perr.WithField(perr.Validationf("url or file is required"), "url")
	}
	if err != nil {
		return nil, err
	}

	out := domain.ContentLookup{}
	names := make([]string, 0, len(hashes))
	for n := range hashes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		if r, err := s.enabledRatio(ctx, name); err != nil {
			return nil, err
		} else if r <= 0 {
			continue
		}
		res, err := s.Lookup(ctx, domain.Query{
			SignalType:      name,
			Signal:          hashes[name],
			IncludeDisputed: q.IncludeDisputed,
			BypassRatio:     q.BypassRatio,
			Seed:            q.Seed,
		})
		if err != nil {
			return nil, err
		}
		out[name] = res
	}
	return out, nil
}

// Compare implements domain.ServicePort
func (s *Svc) Compare(_ context.Context, pairs map[string][]string) (map[string]domain.Comparison, error) {
	if len(pairs) == 0 {
		return nil, perr.Validationf("at least one signal type is required")
	}
	out := make(map[string]domain.Comparison, len(pairs))
	for name, pair := range pairs {
		st, ok := s.d.Signals.Signal(name)
		if !ok {
			return nil, perr.WithField(perr.Validationf("unknown signal type %q", name), name)
		}
		if len(pair) != 2 {
			return nil, perr.WithField(perr.Validationf("%s: want exactly two signals, got %d", name, len(pair)), name)
		}
		a, err := st.Validate(pair[0])
		if err != nil {
			return nil, err
		}
		b, err := st.Validate(pair[1])
		if err != nil {
			return nil, err
		}
		c, err := st.Compare(a, b, 0)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

// IndexStatus implements domain.ServicePort. An empty signalType reports every installed type
func (s *Svc) IndexStatus(ctx context.Context, signalType string) (map[string]domain.IndexStatus, error) {
	names := s.d.Signals.Names()
	if signalType != "" {
		if _, ok := s.d.Signals.Signal(signalType); !ok {
			return nil, perr.WithField(perr.Validationf("unknown signal type %q", signalType), "signal_type")
		}
		names = []string{signalType}
	}
	out := make(map[string]domain.IndexStatus, len(names))
	for _, name := range names {
		info, ok, err := s.d.Store.Info(ctx, name)
		if err != nil {
			return nil, err
		}
		var st domain.IndexStatus
		if ok {
			cp, at := info.Checkpoint, info.UpdatedAt
			st = domain.IndexStatus{Present: true, BuiltTo: &cp, Size: info.Size, UpdatedAt: &at}
			if snap, _, _ := s.d.Cache.Peek(name); snap.Built() && snap.Info.Checkpoint == cp {
				st.Loaded = true
			}
		}
		out[name] = st
	}
	return out, nil
}

// Ready implements domain.ServicePort
func (s *Svc) Ready(context.Context) error {
	stale := s.d.Cache.Stale(s.cfg.StaleAfter)
	if len(stale) == 0 {
		return nil
	}
	sort.Strings(stale)
	return perr.Unavailablef("INDEX-STALE: %s", strings.Join(stale, ", "))
}

// label keeps metric labels to installed signal types
func (s *Svc) label(name string) string {
	if _, ok := s.d.Signals.Signal(name); ok {
		return name
	}
	return "unknown"
}

func outcome(n int, err error) string {
	switch {
	case perr.IsCode(err, perr.ErrorCodeUnavailable):
		return "stale"
	case err != nil:
		return "error"
	case n == 0:
		return "miss"
	}
	return "match"
}

var _ domain.ServicePort = (*Svc)(nil)
