package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hma/internal/platform/config"

	"github.com/rs/zerolog"
)

// stubDB is a TxRunner without Ping or TryLock
type stubDB struct{}

func (stubDB) Tx(context.Context, func(RowQuerier) error) error         { return nil }
func (stubDB) Exec(context.Context, string, ...any) (CommandTag, error) { return nil, nil }
func (stubDB) Query(context.Context, string, ...any) (Rows, error)      { return nil, nil }
func (stubDB) QueryRow(context.Context, string, ...any) Row             { return nil }

type pingDB struct {
	stubDB
	err error
}

func (p pingDB) Ping(context.Context) error { return p.err }

func TestOpen_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cases := map[string]Config{
		"ch without url": {CH: CHConfig{Enabled: true}},
		"bad pg url":     {PG: PGConfig{Enabled: true, URL: "://bad", MaxConns: 1}},
		"pg fails first": {
			PG: PGConfig{Enabled: true, URL: "://bad"},
			CH: CHConfig{Enabled: true, URL: "clickhouse://127.0.0.1:1/default"},
		},
	}
	for name, cfg := range cases {
		s, err := Open(ctx, cfg)
		if err == nil || s != nil {
			t.Fatalf("%s: store=%v err=%v", name, s, err)
		}
	}
}

func TestOpen_EmptyWithLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s, err := Open(context.Background(), Config{}, WithLogger(zerolog.New(&buf)))
	if err != nil || s == nil {
		t.Fatalf("open: %v", err)
	}
	s.Log.Info().Msg("opened")
	if !strings.Contains(buf.String(), "opened") {
		t.Fatalf("logger not applied: %q", buf.String())
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var nilStore *Store
	if nilStore.Guard(ctx) == nil {
		t.Fatal("nil store passed guard")
	}
	for name, s := range map[string]*Store{
		"empty":     {},
		"no pinger": {PG: stubDB{}},
		"ping ok":   {PG: pingDB{}},
	} {
		if err := s.Guard(ctx); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	err := (&Store{PG: pingDB{err: errors.New("refused")}}).Guard(ctx)
	if err == nil || !strings.HasPrefix(err.Error(), "pg: ") {
		t.Fatalf("guard err = %v", err)
	}
}

func TestWaitReady(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls atomic.Int32
	flaky := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("starting up")
		}
		return nil
	}
	if err := waitReady(ctx, flaky, 5, time.Second); err != nil || calls.Load() != 3 {
		t.Fatalf("flaky: calls=%d err=%v", calls.Load(), err)
	}

	down := errors.New("refused")
	err := waitReady(ctx, func(context.Context) error { return down }, 2, time.Second)
	if !errors.Is(err, down) || !strings.Contains(err.Error(), "2 attempts") {
		t.Fatalf("down: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := waitReady(cctx, func(context.Context) error { return down }, 5, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled: %v", err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SERVICE_PGSQL_URL", "postgres://u:p@db:5432/hma")
	t.Setenv("SERVICE_PGSQL_MAX_CONNS", "3")
	t.Setenv("SERVICE_CH_ENABLED", "true")
	t.Setenv("SERVICE_CH_URL", "clickhouse://ch:9000/default")

	cfg := ConfigFromEnv(config.New(), "worker")
	if !cfg.PG.Enabled || cfg.PG.URL != "postgres://u:p@db:5432/hma" || cfg.PG.MaxConns != 3 {
		t.Fatalf("pg config %+v", cfg.PG)
	}
	if !cfg.CH.Enabled || cfg.CH.ClientRole != "worker" {
		t.Fatalf("ch config %+v", cfg.CH)
	}
	if cfg.AppName != "hma-worker" {
		t.Fatalf("app name %q", cfg.AppName)
	}
}

func TestStore_LockerNilWithoutPG(t *testing.T) {
	if (&Store{}).Locker() != nil {
		t.Fatalf("expected nil locker")
	}
	if (&Store{PG: stubDB{}}).Locker() != nil {
		t.Fatalf("stub without TryLock should not be a locker")
	}
}
