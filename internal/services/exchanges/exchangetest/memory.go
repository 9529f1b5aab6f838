// Package exchangetest provides an in-memory exchange repo for service and handler tests
package exchangetest

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"hma/internal/modkit/repokit"
	"hma/internal/modkit/repokit/repotest"
	perr "hma/internal/platform/errors"
	"hma/internal/services/exchanges/domain"
	"hma/internal/services/exchanges/repo"
)

// Memory implements repo.Repo over maps
type Memory struct {
	mu sync.Mutex

	exchanges map[int64]domain.Exchange
	status    map[int64]domain.FetchStatus
	data      map[int64]domain.Data
	creds     map[string]json.RawMessage

	nextExchange int64
	nextData     int64

	// OnDelete runs after an exchange is deleted, standing in for the import bank cascade
	OnDelete func(id int64)
}

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{
		exchanges: map[int64]domain.Exchange{},
		status:    map[int64]domain.FetchStatus{},
		data:      map[int64]domain.Data{},
		creds:     map[string]json.RawMessage{},
	}
}

// Binder hands the store out for every Queryer
func (m *Memory) Binder() repokit.Binder[repo.Repo] { return repotest.Binder[repo.Repo](m) }

// SetStatus overwrites a fetch status row
func (m *Memory) SetStatus(s domain.FetchStatus) {
	m.mu.Lock()
	m.status[s.CollabID] = s
	m.mu.Unlock()
}

// Records returns the stored records of an exchange keyed by fetch id
func (m *Memory) Records(collabID int64) map[string]domain.Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.Data{}
	for _, d := range m.data {
		if d.CollabID == collabID {
			out[d.FetchID] = d
		}
	}
	return out
}

func (m *Memory) Create(_ context.Context, e repo.NewExchange) (domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.exchanges {
		if x.Name == e.Name {
			return domain.Exchange{}, perr.WithField(perr.DuplicateKeyf("exchange %q already exists", e.Name), "name")
		}
	}
	m.nextExchange++
	cfg := e.TypedConfig
	if len(cfg) == 0 {
		cfg = json.RawMessage(`{}`)
	}
	x := domain.Exchange{
		ID:              m.nextExchange,
		Name:            e.Name,
		API:             e.API,
		FetchingEnabled: e.Enabled,
		RetainAPIData:   e.RetainAPIData,
		RetainUnknown:   e.RetainUnknown,
		TypedConfig:     cfg,
		CreatedAt:       time.Now().UTC(),
	}
	m.exchanges[x.ID] = x
	return x, nil
}

func (m *Memory) ByName(_ context.Context, name string) (domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.exchanges {
		if x.Name == name {
			return x, nil
		}
	}
	return domain.Exchange{}, perr.NotFoundf("exchange %q not found", name)
}

func (m *Memory) List(context.Context) ([]domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Exchange, 0, len(m.exchanges))
	for _, x := range m.exchanges {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Update(_ context.Context, id int64, enabled, retainAPIData, retainUnknown bool) (domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x, ok := m.exchanges[id]
	if !ok {
		return domain.Exchange{}, perr.NotFoundf("exchange %d not found", id)
	}
	x.FetchingEnabled, x.RetainAPIData, x.RetainUnknown = enabled, retainAPIData, retainUnknown
	m.exchanges[id] = x
	return x, nil
}

func (m *Memory) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	if _, ok := m.exchanges[id]; !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.exchanges, id)
	delete(m.status, id)
	for did, d := range m.data {
		if d.CollabID == id {
			delete(m.data, did)
		}
	}
	hook := m.OnDelete
	m.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	return true, nil
}

func (m *Memory) Status(_ context.Context, collabID int64) (domain.FetchStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[collabID]
	if !ok {
		return domain.FetchStatus{CollabID: collabID}, nil
	}
	return s, nil
}

func (m *Memory) ClaimLease(_ context.Context, collabID int64, owner string, now, staleBefore int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[collabID]
	if !ok {
		s = domain.FetchStatus{CollabID: collabID}
	}
	if s.RunningSince != nil && *s.RunningSince >= staleBefore {
		m.status[collabID] = s
		return false, nil
	}
	s.RunningSince, s.LeaseOwner = &now, owner
	m.status[collabID] = s
	return true, nil
}

func (m *Memory) ReleaseLease(_ context.Context, collabID int64, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status[collabID]
	if s.LeaseOwner == owner {
		s.RunningSince, s.LeaseOwner = nil, ""
		m.status[collabID] = s
	}
	return nil
}

func (m *Memory) SaveCheckpoint(_ context.Context, collabID, ts int64, cp json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status[collabID]
	s.CollabID = collabID
	s.CheckpointTS, s.Checkpoint, s.UpToDate = &ts, append(json.RawMessage(nil), cp...), false
	m.status[collabID] = s
	return nil
}

func (m *Memory) Complete(_ context.Context, collabID int64, upToDate bool, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status[collabID]
	ok := true
	s.LastSucceeded, s.LastCompleteTS, s.UpToDate = &ok, &now, upToDate
	s.LastError, s.PermanentFailure = "", false
	m.status[collabID] = s
	return nil
}

func (m *Memory) RecordFailure(_ context.Context, collabID int64, msg string, permanent bool, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status[collabID]
	s.CollabID = collabID
	failed := false
	s.LastSucceeded, s.LastCompleteTS, s.UpToDate = &failed, &now, false
	s.LastError, s.PermanentFailure = msg, permanent
	m.status[collabID] = s
	return nil
}

func (m *Memory) ResetProgress(_ context.Context, collabID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.status[collabID]
	if !ok {
		return nil
	}
	s.CheckpointTS, s.Checkpoint, s.UpToDate = nil, nil, false
	s.LastError, s.PermanentFailure = "", false
	m.status[collabID] = s
	return nil
}

func (m *Memory) ResetFailure(_ context.Context, collabID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.status[collabID]; ok {
		s.PermanentFailure = false
		m.status[collabID] = s
	}
	return nil
}

func (m *Memory) DataByFetchIDs(_ context.Context, collabID int64, fetchIDs []string) (map[string]domain.Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.Data{}
	for _, d := range m.data {
		if d.CollabID == collabID && slices.Contains(fetchIDs, d.FetchID) {
			out[d.FetchID] = d
		}
	}
	return out, nil
}

func (m *Memory) UpsertData(_ context.Context, collabID int64, fetchID string, payload, summary json.RawMessage) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.data {
		if d.CollabID == collabID && d.FetchID == fetchID {
			d.Payload, d.Summary, d.UpdatedAt = payload, summary, time.Now().UTC()
			m.data[id] = d
			return id, nil
		}
	}
	m.nextData++
	m.data[m.nextData] = domain.Data{
		ID:        m.nextData,
		CollabID:  collabID,
		FetchID:   fetchID,
		Payload:   payload,
		Summary:   summary,
		UpdatedAt: time.Now().UTC(),
	}
	return m.nextData, nil
}

func (m *Memory) DeleteData(_ context.Context, id int64) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ClearData(_ context.Context, collabID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.data {
		if d.CollabID == collabID {
			delete(m.data, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountData(_ context.Context, collabID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.data {
		if d.CollabID == collabID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkMatched(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if d, ok := m.data[id]; ok {
			d.Matched = true
			m.data[id] = d
		}
	}
	return nil
}

func (m *Memory) Credentials(_ context.Context, api string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[api], nil
}

func (m *Memory) CredentialsSet(context.Context) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for k := range m.creds {
		out[k] = true
	}
	return out, nil
}

func (m *Memory) SetCredentials(_ context.Context, api string, raw json.RawMessage) error {
	m.mu.Lock()
	m.creds[api] = append(json.RawMessage(nil), raw...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) UnsetCredentials(_ context.Context, api string) error {
	m.mu.Lock()
	delete(m.creds, api)
	m.mu.Unlock()
	return nil
}

var _ repo.Repo = (*Memory)(nil)
