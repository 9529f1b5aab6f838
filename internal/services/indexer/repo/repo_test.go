package repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"hma/internal/modkit/repokit/repotest"
	perr "hma/internal/platform/errors"
	banksdom "hma/internal/services/banks/domain"
	"hma/internal/services/indexer/domain"
)

func TestInfo_NotFoundBeforeFirstBuild(t *testing.T) {
	t.Parallel()
	_, err := NewPG().Bind(&repotest.Q{}).Info(context.Background(), "pdq")
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestInfo_Scans(t *testing.T) {
	t.Parallel()
	now := time.Now()
	q := &repotest.Q{}
	q.Push(repotest.Result{Rows: [][]any{{"pdq", int64(9), int64(1234), int64(3), now, "indexes/pdq/x", int64(77)}}})
	i, err := NewPG().Bind(q).Info(context.Background(), "pdq")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	want := banksdom.Checkpoint{LastID: 9, LastTS: 1234, Count: 3}
	if i.Checkpoint != want || i.BlobKey != "indexes/pdq/x" || i.Size != 77 {
		t.Fatalf("info = %+v", i)
	}
}

func TestLockKey_MissingRow(t *testing.T) {
	t.Parallel()
	q := &repotest.Q{}
	key, err := NewPG().Bind(q).LockKey(context.Background(), "pdq")
	if err != nil || key != "" {
		t.Fatalf("key = %q, %v", key, err)
	}
	if !strings.HasSuffix(strings.TrimSpace(q.Last().SQL), "for update") {
		t.Fatalf("sql = %s", q.Last().SQL)
	}
}

func TestSave_PassesBlobOrKey(t *testing.T) {
	t.Parallel()
	now := time.Now()
	q := &repotest.Q{}
	q.Push(repotest.Result{Rows: [][]any{{"md5", int64(1), int64(2), int64(1), now, "", int64(3)}}})
	row := Row{
		Info: domain.Info{SignalType: "md5", Checkpoint: banksdom.Checkpoint{LastID: 1, LastTS: 2, Count: 1}, Size: 3},
		Blob: []byte{1, 2, 3},
	}
	i, err := NewPG().Bind(q).Save(context.Background(), row)
	if err != nil || i.SignalType != "md5" || i.BlobKey != "" {
		t.Fatalf("save = %+v, %v", i, err)
	}
	args := q.Last().Args
	if string(args[4].([]byte)) != "\x01\x02\x03" || args[5] != "" || args[6] != int64(3) {
		t.Fatalf("args = %v", args)
	}
	if !strings.Contains(q.Last().SQL, "on conflict (signal_type) do update") {
		t.Fatalf("sql = %s", q.Last().SQL)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	if _, _, err := NewPG().Bind(&repotest.Q{}).Load(context.Background(), "pdq"); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}

	q := &repotest.Q{}
	q.Push(repotest.Result{Rows: [][]any{{"pdq", int64(1), int64(2), int64(1), time.Now(), "", int64(2), []byte{7, 8}}}})
	i, b, err := NewPG().Bind(q).Load(context.Background(), "pdq")
	if err != nil || i.Checkpoint.Count != 1 || len(b) != 2 {
		t.Fatalf("load = %+v %v %v", i, b, err)
	}
}
