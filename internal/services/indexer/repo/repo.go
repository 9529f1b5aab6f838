// Package repo provides postgres access to the signal_index rows
package repo

import (
	"context"

	"hma/internal/modkit/repokit"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/store"
	"hma/internal/services/indexer/domain"
)

// Repo defines the repository contract for built indices
type Repo interface {
	Info(ctx context.Context, signalType string) (domain.Info, error)
	Infos(ctx context.Context) ([]domain.Info, error)
	// Load reads the info and the blob stored in the row in one statement.
	// The blob is nil when the payload lives in the blob store
	Load(ctx context.Context, signalType string) (domain.Info, []byte, error)
	// LockKey locks the row of signalType for the rest of the transaction and returns its blob key
	LockKey(ctx context.Context, signalType string) (string, error)
	// Save replaces the index of a signal type with a new payload and checkpoint
	Save(ctx context.Context, row Row) (domain.Info, error)
}

// Row is a built index ready to store. Exactly one of Blob and BlobKey is set
type Row struct {
	Info    domain.Info
	Blob    []byte
	BlobKey string
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

const infoCols = `signal_type, updated_to_id, updated_to_ts, signal_count, updated_at, coalesce(blob_key, ''), blob_size`

func scanInfo(r store.Row) (domain.Info, error) {
	var i domain.Info
	err := r.Scan(&i.SignalType, &i.Checkpoint.LastID, &i.Checkpoint.LastTS, &i.Checkpoint.Count,
		&i.UpdatedAt, &i.BlobKey, &i.Size)
	return i, err
}

func (r *queries) Info(ctx context.Context, signalType string) (domain.Info, error) {
	i, err := scanInfo(r.q.QueryRow(ctx, `select `+infoCols+` from signal_index where signal_type = $1`, signalType))
	if store.IsNoRows(err) {
		return domain.Info{}, perr.NotFoundf("no index built for %s", signalType)
	}
	return i, perr.FromPostgresf(err, "load %s index info", signalType)
}

func (r *queries) Infos(ctx context.Context) ([]domain.Info, error) {
	out, err := store.Many(ctx, r.q, scanInfo, `select `+infoCols+` from signal_index order by signal_type`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list indices")
	}
	return out, nil
}

func (r *queries) Load(ctx context.Context, signalType string) (domain.Info, []byte, error) {
	var i domain.Info
	var b []byte
	err := r.q.QueryRow(ctx, `select `+infoCols+`, blob from signal_index where signal_type = $1`, signalType).Scan(
		&i.SignalType, &i.Checkpoint.LastID, &i.Checkpoint.LastTS, &i.Checkpoint.Count,
		&i.UpdatedAt, &i.BlobKey, &i.Size, &b,
	)
	if store.IsNoRows(err) {
		return domain.Info{}, nil, perr.NotFoundf("no index built for %s", signalType)
	}
	if err != nil {
		return domain.Info{}, nil, perr.FromPostgresf(err, "load %s index", signalType)
	}
	return i, b, nil
}

func (r *queries) LockKey(ctx context.Context, signalType string) (string, error) {
	var key string
	err := r.q.QueryRow(ctx,
		`select coalesce(blob_key, '') from signal_index where signal_type = $1 for update`, signalType,
	).Scan(&key)
	if store.IsNoRows(err) {
		return "", nil
	}
	return key, perr.FromPostgresf(err, "lock %s index", signalType)
}

func (r *queries) Save(ctx context.Context, row Row) (domain.Info, error) {
	const sql = `
insert into signal_index (signal_type, updated_to_id, updated_to_ts, signal_count, updated_at, blob, blob_key, blob_size)
values ($1, $2, $3, $4, now(), $5, nullif($6, ''), $7)
on conflict (signal_type) do update set
  updated_to_id = excluded.updated_to_id,
  updated_to_ts = excluded.updated_to_ts,
  signal_count = excluded.signal_count,
  updated_at = excluded.updated_at,
  blob = excluded.blob,
  blob_key = excluded.blob_key,
  blob_size = excluded.blob_size
returning ` + infoCols
	cp := row.Info.Checkpoint
	i, err := scanInfo(r.q.QueryRow(ctx, sql,
		row.Info.SignalType, cp.LastID, cp.LastTS, cp.Count, row.Blob, row.BlobKey, row.Info.Size))
	if err != nil {
		return domain.Info{}, perr.FromPostgresf(err, "save %s index", row.Info.SignalType)
	}
	return i, nil
}
