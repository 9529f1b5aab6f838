// Package indexertest provides an in-memory signal_index repo for indexer and matcher tests
package indexertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"hma/internal/modkit/repokit"
	"hma/internal/modkit/repokit/repotest"
	perr "hma/internal/platform/errors"
	"hma/internal/services/indexer/domain"
	"hma/internal/services/indexer/repo"
)

type row struct {
	info domain.Info
	blob []byte
}

// Memory implements repo.Repo over a map
type Memory struct {
	mu   sync.Mutex
	rows map[string]row

	// Clock stamps updated_at, time.Now when nil
	Clock func() time.Time
	// OnSave runs after every save with the checkpoint ts and the new updated_at
	OnSave func(signalType string, upToTS int64, at time.Time)
	// Saves counts successful saves
	Saves int
}

// NewMemory returns an empty store
func NewMemory() *Memory { return &Memory{rows: map[string]row{}} }

// Binder hands the store out for every Queryer
func (m *Memory) Binder() repokit.Binder[repo.Repo] { return repotest.Binder[repo.Repo](m) }

func (m *Memory) Info(_ context.Context, signalType string) (domain.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[signalType]
	if !ok {
		return domain.Info{}, perr.NotFoundf("no index built for %s", signalType)
	}
	return r.info, nil
}

func (m *Memory) Infos(context.Context) ([]domain.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Info, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalType < out[j].SignalType })
	return out, nil
}

func (m *Memory) Load(_ context.Context, signalType string) (domain.Info, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[signalType]
	if !ok {
		return domain.Info{}, nil, perr.NotFoundf("no index built for %s", signalType)
	}
	return r.info, r.blob, nil
}

func (m *Memory) LockKey(_ context.Context, signalType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[signalType].info.BlobKey, nil
}

func (m *Memory) Save(_ context.Context, r repo.Row) (domain.Info, error) {
	m.mu.Lock()
	at := time.Now()
	if m.Clock != nil {
		at = m.Clock()
	}
	info := r.Info
	info.UpdatedAt, info.BlobKey = at, r.BlobKey
	m.rows[info.SignalType] = row{info: info, blob: append([]byte(nil), r.Blob...)}
	m.Saves++
	hook := m.OnSave
	m.mu.Unlock()
	if hook != nil {
		hook(info.SignalType, info.Checkpoint.LastTS, at)
	}
	return info, nil
}

var _ repo.Repo = (*Memory)(nil)
