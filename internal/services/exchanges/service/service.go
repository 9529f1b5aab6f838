// Package service contains the exchange fetch engine and exchange configuration workflows
package service

import (
	"context"
	"encoding/json"
	"time"

	"hma/internal/core/exchange"
	"hma/internal/core/signal"
	"hma/internal/modkit/repokit"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
	banksrepo "hma/internal/services/banks/repo"
	"hma/internal/services/exchanges/domain"
	"hma/internal/services/exchanges/guardrails"
	"hma/internal/services/exchanges/repo"
)

// Service defines the service contract for exchanges
type Service interface {
	domain.ServicePort
	domain.RunnerPort
	domain.MatchPort
}

// Config holds fetch engine tunables
type Config struct {
	// CycleBudget bounds fetching for one exchange per cycle; <=0 -> 15m
	CycleBudget time.Duration
	// StaleLease is how old a running fetch must be before another worker takes it over; <=0 -> 30m
	StaleLease time.Duration
	// Retention ages out checkpoints; a stale checkpoint triggers a full refetch; <=0 -> 85 days
	Retention time.Duration
	// DBTimeout caps each apply transaction; <=0 -> 2m
	DBTimeout time.Duration
}

// Svc implements the Service interface
type Svc struct {
	Repo   repo.Repo
	binder repokit.Binder[repo.Repo]
	banks  repokit.Binder[banksrepo.Repo]
	db     repokit.TxRunner

	signals *signal.Registry
	apis    *exchange.Registry
	lease   guardrails.LeaseFunc
	cfg     Config

	now func() time.Time
}

// New creates a new exchanges service. banks binds the bank store inside the
// same transactions so a batch lands in exchange_data and the import bank together
func New(
	db repokit.TxRunner,
	binder repokit.Binder[repo.Repo],
	banks repokit.Binder[banksrepo.Repo],
	signals *signal.Registry,
	apis *exchange.Registry,
	cfg Config,
) *Svc {
	if db == nil {
		panic("exchanges.Service requires a non nil TxRunner")
	}
	if binder == nil || banks == nil {
		panic("exchanges.Service requires non nil Repo binders")
	}
	if signals == nil || apis == nil {
		panic("exchanges.Service requires signal and exchange registries")
	}
	if cfg.CycleBudget <= 0 {
		cfg.CycleBudget = 15 * time.Minute
	}
	if cfg.StaleLease <= 0 {
		cfg.StaleLease = 30 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 85 * 24 * time.Hour
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 2 * time.Minute
	}
	return &Svc{
		Repo:    binder.Bind(db),
		binder:  binder,
		banks:   banks,
		db:      db,
		signals: signals,
		apis:    apis,
		lease:   guardrails.MakeFetchLease(db, binder, cfg.StaleLease),
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithLease replaces the fetch lease, used by tests and single process tools
func (s *Svc) WithLease(l guardrails.LeaseFunc) *Svc {
	s.lease = l
	return s
}

func (s *Svc) timeouts() guardrails.Timeouts {
	return guardrails.Timeouts{Cycle: s.cfg.CycleBudget, DB: s.cfg.DBTimeout}
}

// tx runs fn with both repos bound to one transaction
func (s *Svc) tx(ctx context.Context, fn func(r repo.Repo, br banksrepo.Repo) error) error {
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		return fn(s.binder.Bind(q), s.banks.Bind(q))
	})
}

// List returns every exchange ordered by name
func (s *Svc) List(ctx context.Context) ([]domain.Exchange, error) {
	out, err := s.Repo.List(ctx)
	if out == nil {
		out = []domain.Exchange{}
	}
	return out, err
}

// Get loads an exchange by name
func (s *Svc) Get(ctx context.Context, name string) (domain.Exchange, error) {
	return s.Repo.ByName(ctx, name)
}

// Create validates the typed config and creates the exchange with its import bank
func (s *Svc) Create(ctx context.Context, in domain.CreateInput) (domain.Exchange, error) {
	if err := domain.CheckName(in.Name); err != nil {
		return domain.Exchange{}, err
	}
	api, ok := s.apis.Get(in.API)
	if !ok {
		return domain.Exchange{}, perr.WithField(perr.Validationf("unknown exchange api %q", in.API), "api")
	}
	cfg, err := api.ValidateConfig(in.TypedConfig)
	if err != nil {
		if e, ok := perr.As(err); ok && e.Field() == "" {
			return domain.Exchange{}, perr.WithField(err, "typed_config")
		}
		return domain.Exchange{}, err
	}
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	var out domain.Exchange
	err = s.tx(ctx, func(r repo.Repo, br banksrepo.Repo) error {
		x, err := r.Create(ctx, repo.NewExchange{
			Name:          in.Name,
			API:           in.API,
			Enabled:       enabled,
			RetainAPIData: in.RetainAPIData,
			RetainUnknown: in.RetainUnknown,
			TypedConfig:   cfg,
		})
		if err != nil {
			return err
		}
		if _, err := br.CreateBank(ctx, x.Name, 1, &x.ID); err != nil {
			return err
		}
		out = x
		return nil
	})
	if err != nil {
		return domain.Exchange{}, err
	}
	logger.C(ctx).Info().Str("collab", out.Name).Str("api", out.API).Bool("enabled", enabled).Msg("exchange created")
	return out, nil
}

// Update toggles exchange flags. Turning fetching on clears a permanent failure
func (s *Svc) Update(ctx context.Context, name string, in domain.UpdateInput) (domain.Exchange, error) {
	var out domain.Exchange
	err := s.tx(ctx, func(r repo.Repo, _ banksrepo.Repo) error {
		x, err := r.ByName(ctx, name)
		if err != nil {
			return err
		}
		enabled, retainAPI, retainUnknown := x.FetchingEnabled, x.RetainAPIData, x.RetainUnknown
		if in.FetchingEnabled != nil {
			enabled = *in.FetchingEnabled
		}
		if in.RetainAPIData != nil {
			retainAPI = *in.RetainAPIData
		}
		if in.RetainUnknown != nil {
			retainUnknown = *in.RetainUnknown
		}
		if out, err = r.Update(ctx, x.ID, enabled, retainAPI, retainUnknown); err != nil {
			return err
		}
		if in.FetchingEnabled != nil && *in.FetchingEnabled {
			return r.ResetFailure(ctx, x.ID)
		}
		return nil
	})
	return out, err
}

// Delete removes an exchange; the import bank and its content go with it. A missing exchange is not an error
func (s *Svc) Delete(ctx context.Context, name string) (domain.Deleted, error) {
	x, err := s.Repo.ByName(ctx, name)
	if perr.IsCode(err, perr.ErrorCodeNotFound) {
		return domain.Deleted{}, nil
	}
	if err != nil {
		return domain.Deleted{}, err
	}
	ok, err := s.Repo.Delete(ctx, x.ID)
	if err != nil {
		return domain.Deleted{}, err
	}
	if ok {
		logger.C(ctx).Info().Str("collab", name).Msg("exchange deleted")
	}
	return domain.Deleted{Deleted: ok}, nil
}

func (s *Svc) view(ctx context.Context, x domain.Exchange) (domain.StatusView, error) {
	st, err := s.Repo.Status(ctx, x.ID)
	if err != nil {
		return domain.StatusView{}, err
	}
	n, err := s.Repo.CountData(ctx, x.ID)
	if err != nil {
		return domain.StatusView{}, err
	}
	return domain.StatusView{Name: x.Name, API: x.API, Enabled: x.FetchingEnabled, FetchedItems: n, FetchStatus: st}, nil
}

// Status returns the fetch status of one exchange with its stored record count
func (s *Svc) Status(ctx context.Context, name string) (domain.StatusView, error) {
	x, err := s.Repo.ByName(ctx, name)
	if err != nil {
		return domain.StatusView{}, err
	}
	return s.view(ctx, x)
}

// Statuses returns the status of every exchange
func (s *Svc) Statuses(ctx context.Context) ([]domain.StatusView, error) {
	xs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.StatusView, 0, len(xs))
	for _, x := range xs {
		v, err := s.view(ctx, x)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Data returns one stored record. The raw payload is only shown when the exchange retains api data
func (s *Svc) Data(ctx context.Context, name, fetchID string) (domain.Data, error) {
	x, err := s.Repo.ByName(ctx, name)
	if err != nil {
		return domain.Data{}, err
	}
	got, err := s.Repo.DataByFetchIDs(ctx, x.ID, []string{fetchID})
	if err != nil {
		return domain.Data{}, err
	}
	d, ok := got[fetchID]
	if !ok {
		return domain.Data{}, perr.NotFoundf("exchange %q has no record %q", name, fetchID)
	}
	if !x.RetainAPIData {
		d.Payload = nil
	}
	return d, nil
}

// MarkMatched flags records whose members were returned by a lookup
func (s *Svc) MarkMatched(ctx context.Context, dataIDs []int64) error {
	if len(dataIDs) == 0 {
		return nil
	}
	return s.Repo.MarkMatched(ctx, dataIDs)
}

func (s *Svc) info(name string, set map[string]bool) domain.APIInfo {
	return domain.APIInfo{Name: name, SupportsAuth: s.apis.SupportsAuth(name), HasSetAuth: set[name]}
}

// APIs lists the installed exchange apis
func (s *Svc) APIs(ctx context.Context) ([]domain.APIInfo, error) {
	set, err := s.Repo.CredentialsSet(ctx)
	if err != nil {
		return nil, err
	}
	names := s.apis.Names()
	out := make([]domain.APIInfo, 0, len(names))
	for _, n := range names {
		out = append(out, s.info(n, set))
	}
	return out, nil
}

// API describes one installed exchange api
func (s *Svc) API(ctx context.Context, name string) (domain.APIInfo, error) {
	if _, ok := s.apis.Get(name); !ok {
		return domain.APIInfo{}, perr.NotFoundf("exchange api %q is not installed", name)
	}
	set, err := s.Repo.CredentialsSet(ctx)
	if err != nil {
		return domain.APIInfo{}, err
	}
	return s.info(name, set), nil
}

// SetCredentials stores default credentials for an api that takes them
func (s *Svc) SetCredentials(ctx context.Context, name string, raw json.RawMessage) (domain.APIInfo, error) {
	api, ok := s.apis.Get(name)
	if !ok {
		return domain.APIInfo{}, perr.NotFoundf("exchange api %q is not installed", name)
	}
	auth, ok := api.(exchange.Authenticated)
	if !ok {
		return domain.APIInfo{}, perr.Validationf("exchange api %q does not take credentials", name)
	}
	if err := auth.ValidateCredentials(raw); err != nil {
		return domain.APIInfo{}, err
	}
	if err := s.Repo.SetCredentials(ctx, name, raw); err != nil {
		return domain.APIInfo{}, err
	}
	logger.C(ctx).Info().Str("api", name).Msg("exchange api credentials set")
	return domain.APIInfo{Name: name, SupportsAuth: true, HasSetAuth: true}, nil
}

// UnsetCredentials drops the stored credentials of an api
func (s *Svc) UnsetCredentials(ctx context.Context, name string) (domain.APIInfo, error) {
	if _, ok := s.apis.Get(name); !ok {
		return domain.APIInfo{}, perr.NotFoundf("exchange api %q is not installed", name)
	}
	if err := s.Repo.UnsetCredentials(ctx, name); err != nil {
		return domain.APIInfo{}, err
	}
	return domain.APIInfo{Name: name, SupportsAuth: s.apis.SupportsAuth(name)}, nil
}

var _ Service = (*Svc)(nil)
