// Package service contains bank store workflows
package service

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"hma/internal/core/signal"
	"hma/internal/modkit/repokit"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
	"hma/internal/services/banks/domain"
	"hma/internal/services/banks/repo"
)

// Service defines the service contract for banks
type Service interface {
	domain.ServicePort
	domain.ReaderPort
}

// Config holds bank store tunables
type Config struct {
	// HorizonYear bounds disable_until_ts; values past Jan 1 of this year are rejected
	HorizonYear int
	// MaxPageSize caps content listings; <=0 -> 200
	MaxPageSize int
}

// Svc implements the Service interface
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	reg    *signal.Registry
	cfg    Config

	now func() time.Time
}

// New creates a new banks service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], reg *signal.Registry, cfg Config) *Svc {
	if db == nil {
		panic("banks.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("banks.Service requires a non nil Repo binder")
	}
	if reg == nil {
		panic("banks.Service requires a signal registry")
	}
	if cfg.HorizonYear <= 0 {
		cfg.HorizonYear = 2200
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	return &Svc{Repo: binder.Bind(db), binder: binder, db: db, reg: reg, cfg: cfg, now: time.Now}
}

func (s *Svc) horizon() int64 {
	return time.Date(s.cfg.HorizonYear, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
}

// CreateBank creates a manually curated bank
func (s *Svc) CreateBank(ctx context.Context, in domain.CreateBankInput) (domain.Bank, error) {
	if err := domain.CheckName(in.Name); err != nil {
		return domain.Bank{}, err
	}
	ratio := 1.0
	if in.MatchingEnabledRatio != nil {
		ratio = domain.ClampRatio(*in.MatchingEnabledRatio)
	}
	if in.Enabled != nil && !*in.Enabled {
		ratio = 0
	}
	b, err := s.Repo.CreateBank(ctx, in.Name, ratio, nil)
	if err != nil {
		return domain.Bank{}, err
	}
	logger.C(ctx).Info().Str("bank", b.Name).Float64("ratio", ratio).Msg("bank created")
	return b, nil
}

// GetBank loads a bank by name
func (s *Svc) GetBank(ctx context.Context, name string) (domain.Bank, error) {
	return s.Repo.BankByName(ctx, name)
}

// ListBanks returns every bank ordered by name
func (s *Svc) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	out, err := s.Repo.ListBanks(ctx)
	if out == nil {
		out = []domain.Bank{}
	}
	return out, err
}

// UpdateBank renames a bank or changes its ratio
func (s *Svc) UpdateBank(ctx context.Context, name string, in domain.UpdateBankInput) (domain.Bank, error) {
	var out domain.Bank
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		b, err := r.BankByName(ctx, name)
		if err != nil {
			return err
		}
		newName := b.Name
		if in.Name != nil && *in.Name != b.Name {
			if err := domain.CheckName(*in.Name); err != nil {
				return err
			}
			if b.Imported() {
				return perr.Forbiddenf("bank %q is managed by its exchange and cannot be renamed", b.Name)
			}
			newName = *in.Name
		}
		ratio := b.MatchingEnabledRatio
		if in.MatchingEnabledRatio != nil {
			ratio = domain.ClampRatio(*in.MatchingEnabledRatio)
		}
		if in.Enabled != nil {
			switch {
			case !*in.Enabled:
				ratio = 0
			case in.MatchingEnabledRatio == nil && ratio == 0:
				ratio = 1
			}
		}
		out, err = r.UpdateBank(ctx, b.ID, newName, ratio)
		return err
	})
	return out, err
}

// DeleteBank deletes a manual bank and everything in it. A missing bank is not an error
func (s *Svc) DeleteBank(ctx context.Context, name string) (domain.Deleted, error) {
	var out domain.Deleted
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		b, err := r.BankByName(ctx, name)
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if b.Imported() {
			return perr.InUsef("bank %q is the import bank of an exchange; delete the exchange instead", b.Name)
		}
		out.Deleted, err = r.DeleteBank(ctx, b.ID)
		return err
	})
	if err == nil && out.Deleted {
		logger.C(ctx).Info().Str("bank", name).Msg("bank deleted")
	}
	return out, err
}

// Canonicalize validates a signal map against contentType and returns it in canonical form
func Canonicalize(reg *signal.Registry, contentType string, in map[string]string) ([]domain.SignalValue, error) {
	ct, ok := reg.Content(contentType)
	if !ok {
		return nil, perr.WithField(perr.Validationf("unknown content type %q", contentType), "content_type")
	}
	if !ct.Enabled {
		return nil, perr.WithField(perr.Validationf("content type %q is disabled", contentType), "content_type")
	}
	if len(in) == 0 {
		return nil, perr.WithField(perr.Validationf("at least one signal is required"), "signals")
	}
	out := make([]domain.SignalValue, 0, len(in))
	for name, raw := range in {
		st, ok := reg.Signal(name)
		if !ok {
			return nil, perr.WithField(perr.Validationf("unknown signal type %q", name), "signals")
		}
		if !slices.Contains(st.ContentTypes(), contentType) {
			return nil, perr.WithField(perr.Validationf("signal type %q does not apply to %s", name, contentType), "signals")
		}
		v, err := st.Validate(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SignalValue{Type: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func signalMap(sigs []domain.SignalValue) map[string]string {
	out := make(map[string]string, len(sigs))
	for _, s := range sigs {
		out[s.Type] = s.Value
	}
	return out
}

// AddContent adds a member with already hashed signals. A repeated import key returns the existing member
func (s *Svc) AddContent(ctx context.Context, bank string, in domain.AddContentInput) (domain.AddContentResult, error) {
	sigs, err := Canonicalize(s.reg, in.ContentType, in.Signals)
	if err != nil {
		return domain.AddContentResult{}, err
	}
	res := domain.AddContentResult{Signals: signalMap(sigs)}
	err = s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		b, err := r.BankByName(ctx, bank)
		if err != nil {
			return err
		}
		if b.Imported() {
			return perr.Forbiddenf("bank %q is managed by its exchange", b.Name)
		}
		if in.ImportKey != "" {
			id, err := r.MemberIDByImportKey(ctx, b.ID, in.ImportKey)
			if err == nil {
				res.ID, res.Existing = id, true
				return nil
			}
			if !perr.IsCode(err, perr.ErrorCodeNotFound) {
				return err
			}
		}
		id, err := r.InsertMember(ctx, repo.NewMember{
			BankID:             b.ID,
			ContentType:        in.ContentType,
			ImportKey:          in.ImportKey,
			OriginalContentURI: in.OriginalContentURI,
			Notes:              in.Notes,
			Tags:               cleanTags(in.Tags),
		})
		if err != nil {
			return err
		}
		res.ID = id
		return r.ReplaceSignals(ctx, id, sigs)
	})
	if err != nil {
		return domain.AddContentResult{}, err
	}
	logger.C(ctx).Info().
		Str("bank", bank).
		Int64("member_id", res.ID).
		Bool("existing", res.Existing).
		Int("signals", len(sigs)).
		Msg("content added")
	return res, nil
}

func (s *Svc) member(ctx context.Context, r repo.Repo, bank string, id int64) (domain.Member, error) {
	ms, err := r.Members(ctx, []int64{id})
	if err != nil {
		return domain.Member{}, err
	}
	if len(ms) == 0 || ms[0].BankName != bank || ms[0].Removed {
		return domain.Member{}, perr.NotFoundf("content %d not found in bank %q", id, bank)
	}
	return ms[0], nil
}

func (s *Svc) withSignals(ctx context.Context, r repo.Repo, m domain.Member) (domain.Member, error) {
	sigs, err := r.SignalsOf(ctx, []int64{m.ID})
	if err != nil {
		return domain.Member{}, err
	}
	m.Signals = map[string][]string{}
	for _, sv := range sigs[m.ID] {
		m.Signals[sv.Type] = append(m.Signals[sv.Type], sv.Value)
	}
	return m, nil
}

// GetMember loads one live member of bank
func (s *Svc) GetMember(ctx context.Context, bank string, id int64) (domain.Member, error) {
	m, err := s.member(ctx, s.Repo, bank, id)
	if err != nil {
		return domain.Member{}, err
	}
	return s.withSignals(ctx, s.Repo, m)
}

// MemberByImportKey loads a member by its exchange natural id
func (s *Svc) MemberByImportKey(ctx context.Context, bank, key string) (domain.Member, error) {
	b, err := s.Repo.BankByName(ctx, bank)
	if err != nil {
		return domain.Member{}, err
	}
	id, err := s.Repo.MemberIDByImportKey(ctx, b.ID, key)
	if err != nil {
		return domain.Member{}, err
	}
	return s.GetMember(ctx, bank, id)
}

// ListMembers pages through a bank, newest first. page is 1 based
func (s *Svc) ListMembers(ctx context.Context, bank string, page, size int) (domain.MemberPage, error) {
	b, err := s.Repo.BankByName(ctx, bank)
	if err != nil {
		return domain.MemberPage{}, err
	}
	page = max(page, 1)
	if size <= 0 || size > s.cfg.MaxPageSize {
		size = min(50, s.cfg.MaxPageSize)
	}
	items, total, err := s.Repo.ListMembers(ctx, b.ID, size, (page-1)*size)
	if err != nil {
		return domain.MemberPage{}, err
	}
	if items == nil {
		items = []domain.Member{}
	}
	return domain.MemberPage{Items: items, Total: total}, nil
}

// CheckDisableUntil maps the -1 shorthand and rejects values past the horizon
func (s *Svc) CheckDisableUntil(ts int64) (int64, error) {
	switch {
	case ts == -1:
		return domain.DisabledForever, nil
	case ts < 0:
		return 0, perr.WithField(perr.OutOfRangef("disable_until_ts must be -1, 0 or an epoch second"), "disable_until_ts")
	case ts > s.horizon():
		return 0, perr.WithField(
			perr.OutOfRangef("disable_until_ts %d is past %d-01-01; use -1 to disable forever", ts, s.cfg.HorizonYear),
			"disable_until_ts",
		)
	}
	return ts, nil
}

// UpdateMember edits disable_until_ts, notes and tags
func (s *Svc) UpdateMember(ctx context.Context, bank string, id int64, in domain.UpdateMemberInput) (domain.Member, error) {
	var until int64
	if in.DisableUntilTS != nil {
		v, err := s.CheckDisableUntil(*in.DisableUntilTS)
		if err != nil {
			return domain.Member{}, err
		}
		until = v
	}
	var out domain.Member
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		m, err := s.member(ctx, r, bank, id)
		if err != nil {
			return err
		}
		if in.DisableUntilTS != nil {
			m.DisableUntilTS = until
		}
		if in.Notes != nil {
			m.Notes = *in.Notes
		}
		if in.Tags != nil {
			m.Tags = cleanTags(*in.Tags)
		}
		if err := r.UpdateMember(ctx, m.ID, m.DisableUntilTS, m.Notes, m.Tags); err != nil {
			return err
		}
		out, err = s.withSignals(ctx, r, m)
		return err
	})
	return out, err
}

// RemoveContent soft removes a member. Its signals leave the next index build
func (s *Svc) RemoveContent(ctx context.Context, bank string, id int64) (domain.Deleted, error) {
	var out domain.Deleted
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		b, err := r.BankByName(ctx, bank)
		if err != nil {
			return err
		}
		if b.Imported() {
			return perr.Forbiddenf("bank %q is managed by its exchange", b.Name)
		}
		if _, err := s.member(ctx, r, bank, id); err != nil {
			return err
		}
		out.Deleted, err = r.RemoveMember(ctx, id)
		return err
	})
	if err == nil {
		logger.C(ctx).Info().Str("bank", bank).Int64("member_id", id).Msg("content removed")
	}
	return out, err
}

// SetOpinion records a true or false positive opinion as a member tag
func (s *Svc) SetOpinion(ctx context.Context, bank string, id int64, in domain.OpinionInput) (domain.Member, error) {
	var out domain.Member
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		m, err := s.member(ctx, r, bank, id)
		if err != nil {
			return err
		}
		m.Tags = WithOpinion(m.Tags, in.FalsePositive)
		if err := r.UpdateMember(ctx, m.ID, m.DisableUntilTS, m.Notes, m.Tags); err != nil {
			return err
		}
		out, err = s.withSignals(ctx, r, m)
		return err
	})
	return out, err
}

// WithOpinion replaces any opinion tag in tags
func WithOpinion(tags []string, falsePositive bool) []string {
	out := make([]string, 0, len(tags)+1)
	for _, t := range tags {
		if t != domain.TagFalsePositive && t != domain.TagTruePositive {
			out = append(out, t)
		}
	}
	if falsePositive {
		return append(out, domain.TagFalsePositive)
	}
	return append(out, domain.TagTruePositive)
}

// cleanTags trims, drops empties and dedupes while keeping order
func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SignalTypes lists the installed signal types with their override ratio
func (s *Svc) SignalTypes(ctx context.Context) ([]domain.SignalTypeInfo, error) {
	ratios, err := s.Repo.SignalTypeRatios(ctx)
	if err != nil {
		return nil, err
	}
	sts := s.reg.SignalTypes()
	out := make([]domain.SignalTypeInfo, 0, len(sts))
	for _, st := range sts {
		r, ok := ratios[st.Name()]
		if !ok {
			r = 1
		}
		out = append(out, domain.SignalTypeInfo{Name: st.Name(), ContentTypes: st.ContentTypes(), EnabledRatio: r})
	}
	return out, nil
}

// SetSignalTypeRatio stores an override. A zero ratio disables the type
func (s *Svc) SetSignalTypeRatio(ctx context.Context, name string, in domain.SignalTypeRatioInput) (domain.SignalTypeInfo, error) {
	st, ok := s.reg.Signal(name)
	if !ok {
		return domain.SignalTypeInfo{}, perr.NotFoundf("signal type %q is not installed", name)
	}
	ratio := domain.ClampRatio(in.EnabledRatio)
	if err := s.Repo.SetSignalTypeRatio(ctx, name, ratio); err != nil {
		return domain.SignalTypeInfo{}, err
	}
	logger.C(ctx).Info().Str("signal_type", name).Float64("ratio", ratio).Msg("signal type override set")
	return domain.SignalTypeInfo{Name: name, ContentTypes: st.ContentTypes(), EnabledRatio: ratio}, nil
}

// ContentTypes lists the installed content types
func (s *Svc) ContentTypes(_ context.Context) ([]domain.ContentTypeInfo, error) {
	cts := s.reg.ContentTypes()
	out := make([]domain.ContentTypeInfo, 0, len(cts))
	for _, c := range cts {
		out = append(out, domain.ContentTypeInfo{Name: c.Name, Enabled: c.Enabled})
	}
	return out, nil
}

// Members implements domain.ReaderPort
func (s *Svc) Members(ctx context.Context, ids []int64) ([]domain.Member, error) {
	return s.Repo.Members(ctx, ids)
}

// IterSignals implements domain.ReaderPort
func (s *Svc) IterSignals(ctx context.Context, signalType string, cur domain.Cursor, upTo time.Time, limit int) ([]domain.SignalRow, error) {
	return s.Repo.IterSignals(ctx, signalType, cur, upTo, limit)
}

// BuildTarget implements domain.ReaderPort
func (s *Svc) BuildTarget(ctx context.Context, signalType string) (domain.Checkpoint, error) {
	return s.Repo.BuildTarget(ctx, signalType)
}

// Reap implements domain.ReaderPort
func (s *Svc) Reap(ctx context.Context) (int64, error) {
	n, err := s.Repo.Reap(ctx)
	if err == nil && n > 0 {
		logger.Named("banks").Info().Int64("reaped", n).Msg("removed members reaped")
	}
	return n, err
}

// SignalTypeRatios implements domain.ReaderPort
func (s *Svc) SignalTypeRatios(ctx context.Context) (map[string]float64, error) {
	return s.Repo.SignalTypeRatios(ctx)
}
