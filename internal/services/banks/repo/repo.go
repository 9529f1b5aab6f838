// Package repo provides postgres access for banks, members and their signals
package repo

import (
	"context"
	"time"

	"hma/internal/modkit/repokit"
	perr "hma/internal/platform/errors"
	"hma/internal/platform/store"
	str "hma/internal/platform/strings"
	"hma/internal/services/banks/domain"
)

// Repo defines the repository contract for the bank store
type Repo interface {
	CreateBank(ctx context.Context, name string, ratio float64, importFrom *int64) (domain.Bank, error)
	BankByName(ctx context.Context, name string) (domain.Bank, error)
	BankByExchange(ctx context.Context, exchangeID int64) (domain.Bank, error)
	ListBanks(ctx context.Context) ([]domain.Bank, error)
	UpdateBank(ctx context.Context, id int64, name string, ratio float64) (domain.Bank, error)
	DeleteBank(ctx context.Context, id int64) (bool, error)

	InsertMember(ctx context.Context, m NewMember) (int64, error)
	UpsertImported(ctx context.Context, m NewMember) (int64, error)
	MemberIDByImportKey(ctx context.Context, bankID int64, key string) (int64, error)
	ReplaceSignals(ctx context.Context, memberID int64, sigs []domain.SignalValue) error
	Members(ctx context.Context, ids []int64) ([]domain.Member, error)
	SignalsOf(ctx context.Context, ids []int64) (map[int64][]domain.SignalValue, error)
	ListMembers(ctx context.Context, bankID int64, limit, offset int) ([]domain.Member, int, error)
	UpdateMember(ctx context.Context, id, disableUntil int64, notes string, tags []string) error
	RemoveMember(ctx context.Context, id int64) (bool, error)
	RemoveByImportedFrom(ctx context.Context, exchangeDataID int64) (bool, error)
	RemoveBankMembers(ctx context.Context, bankID int64) (int64, error)

	IterSignals(ctx context.Context, signalType string, cur domain.Cursor, upTo time.Time, limit int) ([]domain.SignalRow, error)
	BuildTarget(ctx context.Context, signalType string) (domain.Checkpoint, error)
	Reap(ctx context.Context) (int64, error)

	SignalTypeRatios(ctx context.Context) (map[string]float64, error)
	SetSignalTypeRatio(ctx context.Context, name string, ratio float64) error
}

// NewMember is the insert shape of a member. An empty ImportKey stores NULL
type NewMember struct {
	BankID             int64
	ContentType        string
	ImportKey          string
	ImportedFromID     *int64
	OriginalContentURI string
	Notes              string
	Tags               []string
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

const bankCols = `id, name, enabled_ratio, import_from_exchange_id, created_at`

func scanBank(r store.Row) (domain.Bank, error) {
	var b domain.Bank
	err := r.Scan(&b.ID, &b.Name, &b.MatchingEnabledRatio, &b.ImportFromExchangeID, &b.CreatedAt)
	return b, err
}

func (r *queries) CreateBank(ctx context.Context, name string, ratio float64, importFrom *int64) (domain.Bank, error) {
	const sql = `
insert into bank (name, enabled_ratio, import_from_exchange_id)
values ($1, $2, $3)
returning ` + bankCols
	b, err := scanBank(r.q.QueryRow(ctx, sql, name, ratio, importFrom))
	if err != nil {
		if perr.IsDuplicateKey(err) {
			return domain.Bank{}, perr.WithField(perr.DuplicateKeyf("bank %q already exists", name), "name")
		}
		return domain.Bank{}, perr.FromPostgresf(err, "create bank %q", name)
	}
	return b, nil
}

func (r *queries) BankByName(ctx context.Context, name string) (domain.Bank, error) {
	b, err := scanBank(r.q.QueryRow(ctx, `select `+bankCols+` from bank where name = $1`, name))
	if store.IsNoRows(err) {
		return domain.Bank{}, perr.NotFoundf("bank %q not found", name)
	}
	return b, perr.FromPostgresf(err, "load bank %q", name)
}

func (r *queries) BankByExchange(ctx context.Context, exchangeID int64) (domain.Bank, error) {
	b, err := scanBank(r.q.QueryRow(ctx, `select `+bankCols+` from bank where import_from_exchange_id = $1`, exchangeID))
	if store.IsNoRows(err) {
		return domain.Bank{}, perr.NotFoundf("no import bank for exchange %d", exchangeID)
	}
	return b, perr.FromPostgres(err, "load import bank")
}

func (r *queries) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	out, err := store.Many(ctx, r.q, scanBank, `select `+bankCols+` from bank order by name`)
	if err != nil {
		return nil, perr.FromPostgres(err, "list banks")
	}
	return out, nil
}

func (r *queries) UpdateBank(ctx context.Context, id int64, name string, ratio float64) (domain.Bank, error) {
	const sql = `
update bank set name = $2, enabled_ratio = $3
where id = $1
returning ` + bankCols
	b, err := scanBank(r.q.QueryRow(ctx, sql, id, name, ratio))
	switch {
	case store.IsNoRows(err):
		return domain.Bank{}, perr.NotFoundf("bank %d not found", id)
	case perr.IsDuplicateKey(err):
		return domain.Bank{}, perr.WithField(perr.DuplicateKeyf("bank %q already exists", name), "name")
	}
	return b, perr.FromPostgresf(err, "update bank %d", id)
}

func (r *queries) DeleteBank(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx, `delete from bank where id = $1`, id)
	if err != nil {
		if perr.IsForeignKeyViolation(err) {
			return false, perr.InUsef("bank %d is still referenced", id)
		}
		return false, perr.FromPostgres(err, "delete bank")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *queries) InsertMember(ctx context.Context, m NewMember) (int64, error) {
	const sql = `
insert into bank_content (bank_id, content_type, import_key, imported_from_id, original_content_uri, notes, tags)
values ($1, $2, $3, $4, $5, $6, $7)
returning id`
	var id int64
	err := r.q.QueryRow(ctx, sql,
		m.BankID, m.ContentType, str.SQLNull(m.ImportKey), m.ImportedFromID,
		str.SQLNull(m.OriginalContentURI), m.Notes, tagsOrEmpty(m.Tags),
	).Scan(&id)
	if err != nil {
		if perr.IsDuplicateKey(err) {
			return 0, perr.WithField(perr.DuplicateKeyf("import key %q already used in bank", m.ImportKey), "import_key")
		}
		return 0, perr.FromPostgres(err, "insert member")
	}
	return id, nil
}

// UpsertImported keeps operator opinion tags across re-imports and revives removed members
func (r *queries) UpsertImported(ctx context.Context, m NewMember) (int64, error) {
	const sql = `
insert into bank_content (bank_id, content_type, import_key, imported_from_id, tags)
values ($1, $2, $3, $4, $5)
on conflict (bank_id, import_key) where import_key is not null
do update set
  content_type = excluded.content_type,
  imported_from_id = excluded.imported_from_id,
  tags = excluded.tags || array(
    select t from unnest(bank_content.tags) t
    where t like 'opinion:%' and not t = any(excluded.tags)
  ),
  removed_at = null,
  updated_at = now()
returning id`
	var id int64
	err := r.q.QueryRow(ctx, sql, m.BankID, m.ContentType, m.ImportKey, m.ImportedFromID, tagsOrEmpty(m.Tags)).Scan(&id)
	if err != nil {
		return 0, perr.FromPostgresf(err, "upsert imported member %q", m.ImportKey)
	}
	return id, nil
}

func (r *queries) MemberIDByImportKey(ctx context.Context, bankID int64, key string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `select id from bank_content where bank_id = $1 and import_key = $2`, bankID, key).Scan(&id)
	if store.IsNoRows(err) {
		return 0, perr.NotFoundf("no member with import key %q", key)
	}
	return id, perr.FromPostgres(err, "load member by import key")
}

// ReplaceSignals makes the member's signal set exactly sigs. Unchanged signals keep their create_time
func (r *queries) ReplaceSignals(ctx context.Context, memberID int64, sigs []domain.SignalValue) error {
	types := make([]string, len(sigs))
	vals := make([]string, len(sigs))
	for i, s := range sigs {
		types[i], vals[i] = s.Type, s.Value
	}
	const del = `
delete from content_signal cs
where cs.content_id = $1
and not exists (
  select 1 from unnest($2::text[], $3::text[]) as n(t, v)
  where n.t = cs.signal_type and n.v = cs.signal_val
)`
	if _, err := r.q.Exec(ctx, del, memberID, types, vals); err != nil {
		return perr.FromPostgres(err, "drop stale signals")
	}
	if len(sigs) == 0 {
		return nil
	}
	const ins = `
insert into content_signal (content_id, signal_type, signal_val)
select $1, n.t, n.v from unnest($2::text[], $3::text[]) as n(t, v)
on conflict do nothing`
	if _, err := r.q.Exec(ctx, ins, memberID, types, vals); err != nil {
		return perr.FromPostgres(err, "insert signals")
	}
	return nil
}

const memberCols = `
bc.id, bc.bank_id, b.name, b.enabled_ratio, bc.content_type, coalesce(bc.import_key, ''),
bc.imported_from_id, bc.disable_until_ts, coalesce(bc.original_content_uri, ''), bc.notes,
bc.tags, bc.removed_at is not null, bc.created_at`

func scanMember(r store.Row) (domain.Member, error) {
	var m domain.Member
	err := r.Scan(
		&m.ID,
		&m.BankID,
		&m.BankName,
		&m.BankRatio,
		&m.ContentType,
		&m.ImportKey,
		&m.ImportedFromID,
		&m.DisableUntilTS,
		&m.OriginalContentURI,
		&m.Notes,
		&m.Tags,
		&m.Removed,
		&m.CreatedAt,
	)
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return m, err
}

func (r *queries) Members(ctx context.Context, ids []int64) ([]domain.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const sql = `select ` + memberCols + `
from bank_content bc join bank b on b.id = bc.bank_id
where bc.id = any($1)
order by bc.id`
	out, err := store.Many(ctx, r.q, scanMember, sql, ids)
	if err != nil {
		return nil, perr.FromPostgres(err, "load members")
	}
	return out, nil
}

func (r *queries) SignalsOf(ctx context.Context, ids []int64) (map[int64][]domain.SignalValue, error) {
	out := make(map[int64][]domain.SignalValue, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	const sql = `
select content_id, signal_type, signal_val from content_signal
where content_id = any($1)
order by content_id, signal_type, signal_val`
	rows, err := r.q.Query(ctx, sql, ids)
	if err != nil {
		return nil, perr.FromPostgres(err, "load signals")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var s domain.SignalValue
		if err := rows.Scan(&id, &s.Type, &s.Value); err != nil {
			return nil, perr.FromPostgres(err, "scan signal")
		}
		out[id] = append(out[id], s)
	}
	return out, perr.FromPostgres(rows.Err(), "load signals")
}

func (r *queries) ListMembers(ctx context.Context, bankID int64, limit, offset int) ([]domain.Member, int, error) {
	var total int
	err := r.q.QueryRow(ctx,
		`select count(*) from bank_content where bank_id = $1 and removed_at is null`, bankID,
	).Scan(&total)
	if err != nil {
		return nil, 0, perr.FromPostgres(err, "count members")
	}
	const sql = `select ` + memberCols + `
from bank_content bc join bank b on b.id = bc.bank_id
where bc.bank_id = $1 and bc.removed_at is null
order by bc.id desc
limit $2 offset $3`
	out, err := store.Many(ctx, r.q, scanMember, sql, bankID, limit, offset)
	if err != nil {
		return nil, 0, perr.FromPostgres(err, "list members")
	}
	return out, total, nil
}

func (r *queries) UpdateMember(ctx context.Context, id, disableUntil int64, notes string, tags []string) error {
	const sql = `
update bank_content set disable_until_ts = $2, notes = $3, tags = $4, updated_at = now()
where id = $1 and removed_at is null`
	tag, err := r.q.Exec(ctx, sql, id, disableUntil, notes, tagsOrEmpty(tags))
	if err != nil {
		return perr.FromPostgresf(err, "update member %d", id)
	}
	if tag.RowsAffected() == 0 {
		return perr.NotFoundf("member %d not found", id)
	}
	return nil
}

func (r *queries) RemoveMember(ctx context.Context, id int64) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`update bank_content set removed_at = now(), updated_at = now() where id = $1 and removed_at is null`, id)
	if err != nil {
		return false, perr.FromPostgresf(err, "remove member %d", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *queries) RemoveByImportedFrom(ctx context.Context, exchangeDataID int64) (bool, error) {
	const sql = `
update bank_content set removed_at = now(), updated_at = now(), imported_from_id = null
where imported_from_id = $1 and removed_at is null`
	tag, err := r.q.Exec(ctx, sql, exchangeDataID)
	if err != nil {
		return false, perr.FromPostgres(err, "remove imported member")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *queries) RemoveBankMembers(ctx context.Context, bankID int64) (int64, error) {
	tag, err := r.q.Exec(ctx,
		`update bank_content set removed_at = now(), updated_at = now() where bank_id = $1 and removed_at is null`, bankID)
	if err != nil {
		return 0, perr.FromPostgres(err, "clear bank")
	}
	return tag.RowsAffected(), nil
}

func (r *queries) IterSignals(ctx context.Context, signalType string, cur domain.Cursor, upTo time.Time, limit int) ([]domain.SignalRow, error) {
	const sql = `
select cs.signal_val, cs.content_id, cs.create_time
from content_signal cs join bank_content bc on bc.id = cs.content_id
where cs.signal_type = $1
and bc.removed_at is null
and (cs.create_time, cs.content_id, cs.signal_val) > ($2, $3, $4)
and cs.create_time <= $5
order by cs.create_time, cs.content_id, cs.signal_val
limit $6`
	out, err := store.Many(ctx, r.q, func(row store.Row) (domain.SignalRow, error) {
		var s domain.SignalRow
		err := row.Scan(&s.Value, &s.MemberID, &s.CreatedAt)
		return s, err
	}, sql, signalType, cur.CreatedAt, cur.MemberID, cur.Value, upTo, limit)
	if err != nil {
		return nil, perr.FromPostgresf(err, "stream %s signals", signalType)
	}
	return out, nil
}

func (r *queries) BuildTarget(ctx context.Context, signalType string) (domain.Checkpoint, error) {
	const sql = `
select coalesce(max(cs.content_id), 0),
       coalesce((extract(epoch from max(cs.create_time)) * 1000000)::bigint, 0),
       count(*)
from content_signal cs join bank_content bc on bc.id = cs.content_id
where cs.signal_type = $1 and bc.removed_at is null`
	var c domain.Checkpoint
	err := r.q.QueryRow(ctx, sql, signalType).Scan(&c.LastID, &c.LastTS, &c.Count)
	return c, perr.FromPostgresf(err, "build target for %s", signalType)
}

// Reap deletes removed members once every stored index was built after the
// removal and checkpointed strictly past the member's signals
func (r *queries) Reap(ctx context.Context) (int64, error) {
	const sql = `
delete from bank_content bc
where bc.removed_at is not null
and bc.removed_at < (select coalesce(min(updated_at), '-infinity'::timestamptz) from signal_index)
and not exists (
  select 1
  from content_signal cs join signal_index si on si.signal_type = cs.signal_type
  where cs.content_id = bc.id
  and (extract(epoch from cs.create_time) * 1000000)::bigint >= si.updated_to_ts
)`
	tag, err := r.q.Exec(ctx, sql)
	if err != nil {
		return 0, perr.FromPostgres(err, "reap removed members")
	}
	return tag.RowsAffected(), nil
}

func (r *queries) SignalTypeRatios(ctx context.Context) (map[string]float64, error) {
	rows, err := r.q.Query(ctx, `select name, enabled_ratio from signal_type_override`)
	if err != nil {
		return nil, perr.FromPostgres(err, "load signal type overrides")
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var name string
		var ratio float64
		if err := rows.Scan(&name, &ratio); err != nil {
			return nil, perr.FromPostgres(err, "scan override")
		}
		out[name] = ratio
	}
	return out, perr.FromPostgres(rows.Err(), "load signal type overrides")
}

func (r *queries) SetSignalTypeRatio(ctx context.Context, name string, ratio float64) error {
	const sql = `
insert into signal_type_override (name, enabled_ratio) values ($1, $2)
on conflict (name) do update set enabled_ratio = excluded.enabled_ratio`
	_, err := r.q.Exec(ctx, sql, name, ratio)
	return perr.FromPostgresf(err, "set %s ratio", name)
}

func tagsOrEmpty(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}
