// Package banktest provides an in-memory bank repo for service tests across modules
package banktest

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"hma/internal/modkit/repokit"
	"hma/internal/modkit/repokit/repotest"
	perr "hma/internal/platform/errors"
	"hma/internal/services/banks/domain"
	"hma/internal/services/banks/repo"
)

type member struct {
	domain.Member
	removedAt time.Time
}

// builtIndex is the part of a signal_index row Reap looks at
type builtIndex struct {
	upToTS int64
	at     time.Time
}

type sig struct {
	memberID  int64
	typ, val  string
	createdAt time.Time
}

// Memory implements repo.Repo over maps. Signal create times come from a
// microsecond clock that only moves forward
type Memory struct {
	mu sync.Mutex

	banks     map[int64]domain.Bank
	members   map[int64]*member
	signals   []sig
	overrides map[string]float64
	indexes   map[string]builtIndex

	nextBank   int64
	nextMember int64
	clock      time.Time
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{
		banks:     map[int64]domain.Bank{},
		members:   map[int64]*member{},
		overrides: map[string]float64{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Binder hands the store out for every Queryer
func (m *Memory) Binder() repokit.Binder[repo.Repo] { return repotest.Binder[repo.Repo](m) }

func (m *Memory) tick() time.Time {
	m.clock = m.clock.Add(time.Microsecond)
	return m.clock
}

// IndexBuilt records a signal_index row built to upToTS (unix micros) at at,
// which gates Reap
func (m *Memory) IndexBuilt(signalType string, upToTS int64, at time.Time) {
	m.mu.Lock()
	if m.indexes == nil {
		m.indexes = map[string]builtIndex{}
	}
	m.indexes[signalType] = builtIndex{upToTS: upToTS, at: at}
	m.mu.Unlock()
}

// Now returns the store clock
func (m *Memory) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick()
}

func (m *Memory) CreateBank(_ context.Context, name string, ratio float64, importFrom *int64) (domain.Bank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.banks {
		if b.Name == name {
			return domain.Bank{}, perr.WithField(perr.DuplicateKeyf("bank %q already exists", name), "name")
		}
		if importFrom != nil && b.ImportFromExchangeID != nil && *b.ImportFromExchangeID == *importFrom {
			return domain.Bank{}, perr.DuplicateKeyf("exchange %d already has an import bank", *importFrom)
		}
	}
	m.nextBank++
	b := domain.Bank{ID: m.nextBank, Name: name, MatchingEnabledRatio: ratio, ImportFromExchangeID: importFrom, CreatedAt: m.tick()}
	m.banks[b.ID] = b
	return b, nil
}

func (m *Memory) BankByName(_ context.Context, name string) (domain.Bank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.banks {
		if b.Name == name {
			return b, nil
		}
	}
	return domain.Bank{}, perr.NotFoundf("bank %q not found", name)
}

func (m *Memory) BankByExchange(_ context.Context, exchangeID int64) (domain.Bank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.banks {
		if b.ImportFromExchangeID != nil && *b.ImportFromExchangeID == exchangeID {
			return b, nil
		}
	}
	return domain.Bank{}, perr.NotFoundf("no import bank for exchange %d", exchangeID)
}

func (m *Memory) ListBanks(context.Context) ([]domain.Bank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Bank, 0, len(m.banks))
	for _, b := range m.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateBank(_ context.Context, id int64, name string, ratio float64) (domain.Bank, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.banks[id]
	if !ok {
		return domain.Bank{}, perr.NotFoundf("bank %d not found", id)
	}
	for _, o := range m.banks {
		if o.ID != id && o.Name == name {
			return domain.Bank{}, perr.WithField(perr.DuplicateKeyf("bank %q already exists", name), "name")
		}
	}
	b.Name, b.MatchingEnabledRatio = name, ratio
	m.banks[id] = b
	return b, nil
}

func (m *Memory) DeleteBank(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.banks[id]; !ok {
		return false, nil
	}
	delete(m.banks, id)
	for mid, mm := range m.members {
		if mm.BankID == id {
			m.dropMember(mid)
		}
	}
	return true, nil
}

// DeleteExchangeBank mirrors the exchange cascade
func (m *Memory) DeleteExchangeBank(exchangeID int64) {
	m.mu.Lock()
	var id int64
	for _, b := range m.banks {
		if b.ImportFromExchangeID != nil && *b.ImportFromExchangeID == exchangeID {
			id = b.ID
		}
	}
	m.mu.Unlock()
	if id != 0 {
		_, _ = m.DeleteBank(context.Background(), id)
	}
}

func (m *Memory) dropMember(id int64) {
	delete(m.members, id)
	m.signals = slices.DeleteFunc(m.signals, func(s sig) bool { return s.memberID == id })
}

func (m *Memory) insert(nm repo.NewMember) int64 {
	m.nextMember++
	b := m.banks[nm.BankID]
	mm := &member{Member: domain.Member{
		ID:                 m.nextMember,
		BankID:             nm.BankID,
		BankName:           b.Name,
		ContentType:        nm.ContentType,
		ImportKey:          nm.ImportKey,
		ImportedFromID:     nm.ImportedFromID,
		OriginalContentURI: nm.OriginalContentURI,
		Notes:              nm.Notes,
		Tags:               append([]string{}, nm.Tags...),
		CreatedAt:          m.tick(),
	}}
	m.members[mm.ID] = mm
	return mm.ID
}

func (m *Memory) keyed(bankID int64, key string) *member {
	for _, mm := range m.members {
		if mm.BankID == bankID && mm.ImportKey == key {
			return mm
		}
	}
	return nil
}

func (m *Memory) InsertMember(_ context.Context, nm repo.NewMember) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.banks[nm.BankID]; !ok {
		return 0, perr.Conflictf("bank %d does not exist", nm.BankID)
	}
	if nm.ImportKey != "" && m.keyed(nm.BankID, nm.ImportKey) != nil {
		return 0, perr.WithField(perr.DuplicateKeyf("import key %q already used in bank", nm.ImportKey), "import_key")
	}
	return m.insert(nm), nil
}

func (m *Memory) UpsertImported(_ context.Context, nm repo.NewMember) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm := m.keyed(nm.BankID, nm.ImportKey)
	if mm == nil {
		return m.insert(nm), nil
	}
	tags := append([]string{}, nm.Tags...)
	for _, t := range mm.Tags {
		if strings.HasPrefix(t, "opinion:") && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	mm.ContentType = nm.ContentType
	mm.ImportedFromID = nm.ImportedFromID
	mm.Tags = tags
	mm.Removed = false
	mm.removedAt = time.Time{}
	return mm.ID, nil
}

func (m *Memory) MemberIDByImportKey(_ context.Context, bankID int64, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm := m.keyed(bankID, key); mm != nil {
		return mm.ID, nil
	}
	return 0, perr.NotFoundf("no member with import key %q", key)
}

func (m *Memory) ReplaceSignals(_ context.Context, memberID int64, sigs []domain.SignalValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[domain.SignalValue]bool{}
	for _, s := range sigs {
		want[s] = true
	}
	m.signals = slices.DeleteFunc(m.signals, func(s sig) bool {
		return s.memberID == memberID && !want[domain.SignalValue{Type: s.typ, Value: s.val}]
	})
	for _, s := range m.signals {
		if s.memberID == memberID {
			delete(want, domain.SignalValue{Type: s.typ, Value: s.val})
		}
	}
	for _, s := range sigs {
		if want[s] {
			m.signals = append(m.signals, sig{memberID: memberID, typ: s.Type, val: s.Value, createdAt: m.tick()})
			delete(want, s)
		}
	}
	return nil
}

func (m *Memory) view(mm *member) domain.Member {
	out := mm.Member
	b := m.banks[mm.BankID]
	out.BankName, out.BankRatio = b.Name, b.MatchingEnabledRatio
	out.Tags = append([]string{}, mm.Tags...)
	return out
}

func (m *Memory) Members(_ context.Context, ids []int64) ([]domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Member
	for _, id := range ids {
		if mm, ok := m.members[id]; ok {
			out = append(out, m.view(mm))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SignalsOf(_ context.Context, ids []int64) (map[int64][]domain.SignalValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int64][]domain.SignalValue{}
	for _, s := range m.signals {
		if slices.Contains(ids, s.memberID) {
			out[s.memberID] = append(out[s.memberID], domain.SignalValue{Type: s.typ, Value: s.val})
		}
	}
	return out, nil
}

func (m *Memory) ListMembers(_ context.Context, bankID int64, limit, offset int) ([]domain.Member, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Member
	for _, mm := range m.members {
		if mm.BankID == bankID && !mm.Removed {
			all = append(all, m.view(mm))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (m *Memory) UpdateMember(_ context.Context, id, disableUntil int64, notes string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.members[id]
	if !ok || mm.Removed {
		return perr.NotFoundf("member %d not found", id)
	}
	mm.DisableUntilTS, mm.Notes, mm.Tags = disableUntil, notes, append([]string{}, tags...)
	return nil
}

func (m *Memory) remove(mm *member) {
	mm.Removed = true
	mm.removedAt = m.tick()
}

func (m *Memory) RemoveMember(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mm, ok := m.members[id]
	if !ok || mm.Removed {
		return false, nil
	}
	m.remove(mm)
	return true, nil
}

func (m *Memory) RemoveByImportedFrom(_ context.Context, exchangeDataID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mm := range m.members {
		if mm.ImportedFromID != nil && *mm.ImportedFromID == exchangeDataID && !mm.Removed {
			m.remove(mm)
			mm.ImportedFromID = nil
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) RemoveBankMembers(_ context.Context, bankID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, mm := range m.members {
		if mm.BankID == bankID && !mm.Removed {
			m.remove(mm)
			n++
		}
	}
	return n, nil
}

func (m *Memory) live(signalType string) []sig {
	var out []sig
	for _, s := range m.signals {
		if s.typ != signalType {
			continue
		}
		if mm, ok := m.members[s.memberID]; ok && !mm.Removed {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		if a.memberID != b.memberID {
			return a.memberID < b.memberID
		}
		return a.val < b.val
	})
	return out
}

func after(s sig, c domain.Cursor) bool {
	if !s.createdAt.Equal(c.CreatedAt) {
		return s.createdAt.After(c.CreatedAt)
	}
	if s.memberID != c.MemberID {
		return s.memberID > c.MemberID
	}
	return s.val > c.Value
}

func (m *Memory) IterSignals(_ context.Context, signalType string, cur domain.Cursor, upTo time.Time, limit int) ([]domain.SignalRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SignalRow
	for _, s := range m.live(signalType) {
		if len(out) >= limit {
			break
		}
		if !after(s, cur) || s.createdAt.After(upTo) {
			continue
		}
		out = append(out, domain.SignalRow{Value: s.val, MemberID: s.memberID, CreatedAt: s.createdAt})
	}
	return out, nil
}

func (m *Memory) BuildTarget(_ context.Context, signalType string) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c domain.Checkpoint
	for _, s := range m.live(signalType) {
		c.Count++
		c.LastID = max(c.LastID, s.memberID)
		c.LastTS = max(c.LastTS, s.createdAt.UnixMicro())
	}
	return c, nil
}

func (m *Memory) Reap(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.indexes) == 0 {
		return 0, nil
	}
	oldest := time.Unix(math.MaxInt32, 0)
	for _, ix := range m.indexes {
		if ix.at.Before(oldest) {
			oldest = ix.at
		}
	}
	var n int64
	for id, mm := range m.members {
		if mm.Removed && mm.removedAt.Before(oldest) && m.passedByIndexes(id) {
			m.dropMember(id)
			n++
		}
	}
	return n, nil
}

// passedByIndexes is true when every built index of the member's signal types
// checkpointed strictly past those signals
func (m *Memory) passedByIndexes(memberID int64) bool {
	for _, s := range m.signals {
		if s.memberID != memberID {
			continue
		}
		if ix, ok := m.indexes[s.typ]; ok && s.createdAt.UnixMicro() >= ix.upToTS {
			return false
		}
	}
	return true
}

func (m *Memory) SignalTypeRatios(context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.overrides))
	for k, v := range m.overrides {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetSignalTypeRatio(_ context.Context, name string, ratio float64) error {
	m.mu.Lock()
	m.overrides[name] = ratio
	m.mu.Unlock()
	return nil
}

var _ repo.Repo = (*Memory)(nil)
