// Package repo provides postgres access for exchanges, their fetch status and fetched records
package repo

import (
	"context"
	"encoding/json"

	"hma/internal/modkit/repokit"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/store"
	"hma/internal/services/exchanges/domain"
)

// Repo defines the repository contract for the fetch engine
type Repo interface {
	Create(ctx context.Context, e NewExchange) (domain.Exchange, error)
	ByName(ctx context.Context, name string) (domain.Exchange, error)
	List(ctx context.Context) ([]domain.Exchange, error)
	Update(ctx context.Context, id int64, enabled, retainAPIData, retainUnknown bool) (domain.Exchange, error)
	Delete(ctx context.Context, id int64) (bool, error)

	Status(ctx context.Context, collabID int64) (domain.FetchStatus, error)
	// ClaimLease takes the fetch lease when none is held or the holder started before staleBefore
	ClaimLease(ctx context.Context, collabID int64, owner string, now, staleBefore int64) (bool, error)
	ReleaseLease(ctx context.Context, collabID int64, owner string) error
	// SaveCheckpoint persists progress after an applied batch
	SaveCheckpoint(ctx context.Context, collabID, ts int64, cp json.RawMessage) error
	// Complete marks the cycle as succeeded
	Complete(ctx context.Context, collabID int64, upToDate bool, now int64) error
	RecordFailure(ctx context.Context, collabID int64, msg string, permanent bool, now int64) error
	// ResetProgress drops the checkpoint and any failure so the next cycle starts from scratch
	ResetProgress(ctx context.Context, collabID int64) error
	ResetFailure(ctx context.Context, collabID int64) error

	DataByFetchIDs(ctx context.Context, collabID int64, fetchIDs []string) (map[string]domain.Data, error)
	UpsertData(ctx context.Context, collabID int64, fetchID string, payload, summary json.RawMessage) (int64, error)
	DeleteData(ctx context.Context, id int64) error
	ClearData(ctx context.Context, collabID int64) (int64, error)
	CountData(ctx context.Context, collabID int64) (int64, error)
	MarkMatched(ctx context.Context, ids []int64) error

	Credentials(ctx context.Context, api string) (json.RawMessage, error)
	CredentialsSet(ctx context.Context) (map[string]bool, error)
	SetCredentials(ctx context.Context, api string, raw json.RawMessage) error
	UnsetCredentials(ctx context.Context, api string) error
}

// NewExchange is the insert shape of an exchange
type NewExchange struct {
	Name          string
	API           string
	Enabled       bool
	RetainAPIData bool
	RetainUnknown bool
	TypedConfig   json.RawMessage
}

type (
	// PG implements the Repo interface using Postgres
	PG struct{}

	// queries holds the database query methods
	queries struct{ q repokit.Queryer }
)

// NewPG creates a new Postgres repository binder
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind binds a Postgres queryer to the Repo implementation
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

const exchangeCols = `id, name, api_cls, fetching_enabled, retain_api_data,
retain_data_with_unknown_signal_types, typed_config, created_at`

func scanExchange(r store.Row) (domain.Exchange, error) {
	var e domain.Exchange
	var cfg []byte
	err := r.Scan(&e.ID, &e.Name, &e.API, &e.FetchingEnabled, &e.RetainAPIData, &e.RetainUnknown, &cfg, &e.CreatedAt)
	e.TypedConfig = cfg
	return e, err
}

func (r *queries) Create(ctx context.Context, e NewExchange) (domain.Exchange, error) {
	const sql = `
insert into exchange (name, api_cls, fetching_enabled, retain_api_data, retain_data_with_unknown_signal_types, typed_config)
values ($1, $2, $3, $4, $5, $6)
returning ` + exchangeCols
	cfg := e.TypedConfig
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	out, err := scanExchange(r.q.QueryRow(ctx, sql, e.Name, e.API, e.Enabled, e.RetainAPIData, e.RetainUnknown, []byte(cfg)))
	if err != nil {
		if perr.IsDuplicateKey(err) {
			return domain.Exchange{}, perr.WithField(perr.DuplicateKeyf("exchange %q already exists", e.Name), "name")
		}
		return domain.Exchange{}, perr.FromPostgresf(err, "create exchange %q", e.Name)
	}
	return out, nil
}

func (r *queries) ByName(ctx context.Context, name string) (domain.Exchange, error) {
	e, err := scanExchange(r.q.QueryRow(ctx, `select `+exchangeCols+` from exchange where name = $1`, name))
	if store.IsNoRows(err) {
		return domain.Exchange{}, perr.NotFoundf("exchange %q not found", name)
	}
	return e, perr.FromPostgresf(err, "load exchange %q", name)
}

func (r *queries) List(ctx context.Context) ([]domain.Exchange, error) {
	out, err := store.Many(ctx, r.q, scanExchange, `select `+exchangeCols+` from exchange order by name`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list exchanges")
	}
	return out, nil
}

func (r *queries) Update(ctx context.Context, id int64, enabled, retainAPIData, retainUnknown bool) (domain.Exchange, error) {
	const sql = `
update exchange set fetching_enabled = $2, retain_api_data = $3, retain_data_with_unknown_signal_types = $4
where id = $1
returning ` + exchangeCols
	e, err := scanExchange(r.q.QueryRow(ctx, sql, id, enabled, retainAPIData, retainUnknown))
	if store.IsNoRows(err) {
		return domain.Exchange{}, perr.NotFoundf("exchange %d not found", id)
	}
	return e, perr.FromPostgresf(err, "update exchange %d", id)
}

// Delete cascades to the fetch status, the stored records and the import bank
func (r *queries) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `delete from exchange where id = $1`, id)
	if err != nil {
		return false, perr.FromPostgresf(err, "delete exchange %d", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *queries) Status(ctx context.Context, collabID int64) (domain.FetchStatus, error) {
	const sql = `
select running_fetch_start_ts, coalesce(lease_owner, ''), last_fetch_succeeded, last_fetch_complete_ts,
       is_up_to_date, checkpoint_ts, checkpoint_json, coalesce(last_error, ''), permanent_failure
from exchange_fetch_status where collab_id = $1`
	s := domain.FetchStatus{CollabID: collabID}
	var cp []byte
	err := r.q.QueryRow(ctx, sql, collabID).Scan(
		&s.RunningSince,
		&s.LeaseOwner,
		&s.LastSucceeded,
		&s.LastCompleteTS,
		&s.UpToDate,
		&s.CheckpointTS,
		&cp,
		&s.LastError,
		&s.PermanentFailure,
	)
	if store.IsNoRows(err) {
		return domain.FetchStatus{CollabID: collabID}, nil
	}
	if len(cp) > 0 {
		s.Checkpoint = cp
	}
	return s, perr.FromPostgres(err, "load fetch status")
}

func (r *queries) ClaimLease(ctx context.Context, collabID int64, owner string, now, staleBefore int64) (bool, error) {
	if _, err := r.q.Exec(ctx,
		`insert into exchange_fetch_status (collab_id) values ($1) on conflict (collab_id) do nothing`, collabID,
	); err != nil {
		return false, perr.FromPostgres(err, "ensure fetch status")
	}
	const sql = `
update exchange_fetch_status
set running_fetch_start_ts = $2, lease_owner = $3
where collab_id = $1
and (running_fetch_start_ts is null or running_fetch_start_ts < $4)`
	tag, err := r.q.Exec(ctx, sql, collabID, now, owner, staleBefore)
	if err != nil {
		return false, perr.FromPostgres(err, "claim fetch lease")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *queries) ReleaseLease(ctx context.Context, collabID int64, owner string) error {
	const sql = `
update exchange_fetch_status set running_fetch_start_ts = null, lease_owner = null
where collab_id = $1 and lease_owner = $2`
	_, err := r.q.Exec(ctx, sql, collabID, owner)
	return perr.FromPostgres(err, "release fetch lease")
}

func (r *queries) SaveCheckpoint(ctx context.Context, collabID, ts int64, cp json.RawMessage) error {
	const sql = `
update exchange_fetch_status set checkpoint_ts = $2, checkpoint_json = $3, is_up_to_date = false
where collab_id = $1`
	_, err := r.q.Exec(ctx, sql, collabID, ts, []byte(cp))
	return perr.FromPostgres(err, "save checkpoint")
}

func (r *queries) Complete(ctx context.Context, collabID int64, upToDate bool, now int64) error {
	const sql = `
update exchange_fetch_status
set last_fetch_succeeded = true, last_fetch_complete_ts = $3, is_up_to_date = $2,
    last_error = null, permanent_failure = false
where collab_id = $1`
	_, err := r.q.Exec(ctx, sql, collabID, upToDate, now)
	return perr.FromPostgres(err, "complete fetch")
}

func (r *queries) RecordFailure(ctx context.Context, collabID int64, msg string, permanent bool, now int64) error {
	const sql = `
insert into exchange_fetch_status (collab_id, last_fetch_succeeded, last_fetch_complete_ts, last_error, permanent_failure)
values ($1, false, $2, $3, $4)
on conflict (collab_id) do update set
  last_fetch_succeeded = false,
  last_fetch_complete_ts = excluded.last_fetch_complete_ts,
  last_error = excluded.last_error,
  permanent_failure = excluded.permanent_failure,
  is_up_to_date = false`
	_, err := r.q.Exec(ctx, sql, collabID, now, msg, permanent)
	return perr.FromPostgres(err, "record fetch failure")
}

func (r *queries) ResetProgress(ctx context.Context, collabID int64) error {
	const sql = `
update exchange_fetch_status
set checkpoint_ts = null, checkpoint_json = null, is_up_to_date = false,
    last_error = null, permanent_failure = false
where collab_id = $1`
	_, err := r.q.Exec(ctx, sql, collabID)
	return perr.FromPostgres(err, "reset fetch progress")
}

func (r *queries) ResetFailure(ctx context.Context, collabID int64) error {
	_, err := r.q.Exec(ctx,
		`update exchange_fetch_status set permanent_failure = false where collab_id = $1`, collabID)
	return perr.FromPostgres(err, "reset fetch failure")
}

const dataCols = `id, collab_id, fetch_id, fetched_payload, fetched_metadata_summary, matched, verification_result, updated_at`

func scanData(r store.Row) (domain.Data, error) {
	var d domain.Data
	var payload, summary []byte
	err := r.Scan(&d.ID, &d.CollabID, &d.FetchID, &payload, &summary, &d.Matched, &d.VerificationResult, &d.UpdatedAt)
	if len(payload) > 0 {
		d.Payload = payload
	}
	d.Summary = summary
	return d, err
}

func (r *queries) DataByFetchIDs(ctx context.Context, collabID int64, fetchIDs []string) (map[string]domain.Data, error) {
	out := make(map[string]domain.Data, len(fetchIDs))
	if len(fetchIDs) == 0 {
		return out, nil
	}
	rows, err := store.Many(ctx, r.q, scanData,
		`select `+dataCols+` from exchange_data where collab_id = $1 and fetch_id = any($2)`, collabID, fetchIDs)
	if err != nil {
		return nil, perr.FromPostgres(err, "load exchange data")
	}
	for _, d := range rows {
		out[d.FetchID] = d
	}
	return out, nil
}

func (r *queries) UpsertData(ctx context.Context, collabID int64, fetchID string, payload, summary json.RawMessage) (int64, error) {
	const sql = `
insert into exchange_data (collab_id, fetch_id, fetched_payload, fetched_metadata_summary)
values ($1, $2, $3, $4)
on conflict (collab_id, fetch_id) do update set
  fetched_payload = excluded.fetched_payload,
  fetched_metadata_summary = excluded.fetched_metadata_summary,
  updated_at = now()
returning id`
	var p []byte
	if payload != nil {
		p = payload
	}
	var id int64
	err := r.q.QueryRow(ctx, sql, collabID, fetchID, p, []byte(summary)).Scan(&id)
	if err != nil {
		return 0, perr.FromPostgresf(err, "upsert exchange data %q", fetchID)
	}
	return id, nil
}

func (r *queries) DeleteData(ctx context.Context, id int64) error {
	_, err := r.q.Exec(ctx, `delete from exchange_data where id = $1`, id)
	return perr.FromPostgres(err, "delete exchange data")
}

func (r *queries) ClearData(ctx context.Context, collabID int64) (int64, error) {
	tag, err := r.q.Exec(ctx, `delete from exchange_data where collab_id = $1`, collabID)
	if err != nil {
		return 0, perr.FromPostgres(err, "clear exchange data")
	}
	return tag.RowsAffected(), nil
}

func (r *queries) CountData(ctx context.Context, collabID int64) (int64, error) {
	n, err := store.Scalar[int64](ctx, r.q, `select count(*) from exchange_data where collab_id = $1`, collabID)
	return n, perr.FromPostgres(err, "count exchange data")
}

func (r *queries) MarkMatched(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `update exchange_data set matched = true where id = any($1) and not matched`, ids)
	return perr.FromPostgres(err, "mark exchange data matched")
}

func (r *queries) Credentials(ctx context.Context, api string) (json.RawMessage, error) {
	var raw []byte
	err := r.q.QueryRow(ctx, `select default_credentials_json from exchange_api_config where api = $1`, api).Scan(&raw)
	if store.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.FromPostgres(err, "load api credentials")
	}
	return raw, nil
}

func (r *queries) CredentialsSet(ctx context.Context) (map[string]bool, error) {
	names, err := store.Many(ctx, r.q, func(row store.Row) (string, error) {
		var n string
		return n, row.Scan(&n)
	}, `select api from exchange_api_config`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list api credentials")
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (r *queries) SetCredentials(ctx context.Context, api string, raw json.RawMessage) error {
	const sql = `
insert into exchange_api_config (api, default_credentials_json) values ($1, $2)
on conflict (api) do update set default_credentials_json = excluded.default_credentials_json`
	_, err := r.q.Exec(ctx, sql, api, []byte(raw))
	return perr.FromPostgres(err, "store api credentials")
}

func (r *queries) UnsetCredentials(ctx context.Context, api string) error {
	_, err := r.q.Exec(ctx, `delete from exchange_api_config where api = $1`, api)
	return perr.FromPostgres(err, "unset api credentials")
}
