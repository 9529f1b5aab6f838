package service

import (
	"context"
	"testing"
	"time"

	"hma/internal/core/signal/builtin"
	"hma/internal/modkit/repokit/repotest"
	perr "hma/internal/platform/errors"
	"hma/internal/services/banks/banktest"
	"hma/internal/services/banks/domain"
	"hma/internal/services/banks/repo"
)

const pdqA = "f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22"

func newSvc(t *testing.T) (*Svc, *banktest.Memory) {
	t.Helper()
	reg, err := builtin.Registry(builtin.Options{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	mem := banktest.NewMemory()
	return New(&repotest.Tx{}, mem.Binder(), reg, Config{}), mem
}

func f64(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }
func i64(v int64) *int64      { return &v }
func sptr(v string) *string   { return &v }

func TestCreateBank(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()

	b, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "MY_TEST_BANK_01"})
	if err != nil {
		t.Fatalf("CreateBank: %v", err)
	}
	if b.ID == 0 || b.MatchingEnabledRatio != 1 {
		t.Fatalf("unexpected bank %+v", b)
	}

	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "MY_TEST_BANK_01"}); !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
		t.Fatalf("want duplicate, got %v", err)
	}
	for _, bad := range []string{"01_BAD", "lower", "", "HAS-DASH"} {
		if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: bad}); !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("%q: want validation error, got %v", bad, err)
		}
	}

	off, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "OFF", MatchingEnabledRatio: f64(0.7), Enabled: bptr(false)})
	if err != nil || off.MatchingEnabledRatio != 0 {
		t.Fatalf("disabled bank = %+v, %v", off, err)
	}
	clamped, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "_CLAMP", MatchingEnabledRatio: f64(3)})
	if err != nil || clamped.MatchingEnabledRatio != 1 {
		t.Fatalf("clamped bank = %+v, %v", clamped, err)
	}
}

func TestUpdateBank(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "A"}); err != nil {
		t.Fatal(err)
	}

	b, err := s.UpdateBank(ctx, "A", domain.UpdateBankInput{Name: sptr("B"), MatchingEnabledRatio: f64(-1)})
	if err != nil {
		t.Fatalf("UpdateBank: %v", err)
	}
	if b.Name != "B" || b.MatchingEnabledRatio != 0 {
		t.Fatalf("got %+v", b)
	}
	if _, err := s.UpdateBank(ctx, "B", domain.UpdateBankInput{Name: sptr("9X")}); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	b, err = s.UpdateBank(ctx, "B", domain.UpdateBankInput{Enabled: bptr(true)})
	if err != nil || b.MatchingEnabledRatio != 1 {
		t.Fatalf("re-enable = %+v, %v", b, err)
	}
	if _, err := s.UpdateBank(ctx, "A", domain.UpdateBankInput{}); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestDeleteBank_IdempotentAndImportGuard(t *testing.T) {
	t.Parallel()
	s, mem := newSvc(t)
	ctx := context.Background()

	d, err := s.DeleteBank(ctx, "NOPE")
	if err != nil || d.Deleted {
		t.Fatalf("missing bank delete = %+v, %v", d, err)
	}

	if _, err := mem.CreateBank(ctx, "IMPORTED", 1, i64(7)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteBank(ctx, "IMPORTED"); !perr.IsCode(err, perr.ErrorCodeConflict) {
		t.Fatalf("want in use, got %v", err)
	}

	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "MANUAL"}); err != nil {
		t.Fatal(err)
	}
	d, err = s.DeleteBank(ctx, "MANUAL")
	if err != nil || !d.Deleted {
		t.Fatalf("delete = %+v, %v", d, err)
	}
}

func TestAddContent(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "MY_TEST_BANK_01"}); err != nil {
		t.Fatal(err)
	}

	res, err := s.AddContent(ctx, "MY_TEST_BANK_01", domain.AddContentInput{
		ContentType: "photo",
		Signals:     map[string]string{"pdq": "  F8F8F0CEE0F4A84F06370A22038F63F0B36E2ED596621E1D33E6B39C4E9C9B22 "},
	})
	if err != nil {
		t.Fatalf("AddContent: %v", err)
	}
	if res.ID != 1 || res.Signals["pdq"] != pdqA {
		t.Fatalf("got %+v", res)
	}

	m, err := s.GetMember(ctx, "MY_TEST_BANK_01", res.ID)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if got := m.Signals["pdq"]; len(got) != 1 || got[0] != pdqA {
		t.Fatalf("member signals = %v", m.Signals)
	}

	cases := []struct {
		name string
		in   domain.AddContentInput
	}{
		{"unknown content type", domain.AddContentInput{ContentType: "hologram", Signals: map[string]string{"pdq": pdqA}}},
		{"unknown signal type", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"nope": "x"}}},
		{"wrong content type", domain.AddContentInput{ContentType: "text", Signals: map[string]string{"pdq": pdqA}}},
		{"bad hash", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": "abc"}}},
		{"no signals", domain.AddContentInput{ContentType: "photo"}},
	}
	for _, tc := range cases {
		if _, err := s.AddContent(ctx, "MY_TEST_BANK_01", tc.in); !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("%s: want validation error, got %v", tc.name, err)
		}
	}
	if _, err := s.AddContent(ctx, "MISSING", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}}); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestAddContent_ImportKeyIsIdempotent(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	in := domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}, ImportKey: "ext-1"}
	first, err := s.AddContent(ctx, "B", in)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.AddContent(ctx, "B", in)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || !again.Existing {
		t.Fatalf("repeat = %+v, first = %+v", again, first)
	}
	m, err := s.MemberByImportKey(ctx, "B", "ext-1")
	if err != nil || m.ID != first.ID {
		t.Fatalf("MemberByImportKey = %+v, %v", m, err)
	}
}

func TestImportBankIsOwnedByExchange(t *testing.T) {
	t.Parallel()
	s, mem := newSvc(t)
	ctx := context.Background()
	b, err := mem.CreateBank(ctx, "FEED", 1, i64(3))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddContent(ctx, "FEED", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}}); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("add: want forbidden, got %v", err)
	}
	if _, err := s.UpdateBank(ctx, "FEED", domain.UpdateBankInput{Name: sptr("OTHER")}); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("rename: want forbidden, got %v", err)
	}
	if _, err := s.UpdateBank(ctx, "FEED", domain.UpdateBankInput{MatchingEnabledRatio: f64(0.5)}); err != nil {
		t.Fatalf("ratio change should be allowed: %v", err)
	}

	id, err := mem.UpsertImported(ctx, repoMember(b.ID, "k1"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RemoveContent(ctx, "FEED", id); !perr.IsCode(err, perr.ErrorCodeForbidden) {
		t.Fatalf("remove: want forbidden, got %v", err)
	}
	if _, err := s.SetOpinion(ctx, "FEED", id, domain.OpinionInput{FalsePositive: true}); err != nil {
		t.Fatalf("opinion on imported content: %v", err)
	}
}

func TestUpdateMember_Horizon(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	res, err := s.AddContent(ctx, "B", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}})
	if err != nil {
		t.Fatal(err)
	}

	year2286 := time.Date(2286, 11, 20, 0, 0, 0, 0, time.UTC).Unix()
	if _, err := s.UpdateMember(ctx, "B", res.ID, domain.UpdateMemberInput{DisableUntilTS: i64(year2286)}); !perr.IsCode(err, perr.ErrorCodeOutOfRange) {
		t.Fatalf("want out of range, got %v", err)
	}
	if perr.HTTPStatus(perr.OutOfRangef("x")) != 400 {
		t.Fatalf("out of range must be a 400")
	}
	if _, err := s.UpdateMember(ctx, "B", res.ID, domain.UpdateMemberInput{DisableUntilTS: i64(-5)}); !perr.IsCode(err, perr.ErrorCodeOutOfRange) {
		t.Fatalf("negative: want out of range, got %v", err)
	}

	m, err := s.UpdateMember(ctx, "B", res.ID, domain.UpdateMemberInput{DisableUntilTS: i64(-1), Notes: sptr("n")})
	if err != nil {
		t.Fatalf("forever: %v", err)
	}
	if m.DisableUntilTS != domain.DisabledForever || !m.Disabled(time.Now()) || m.Notes != "n" {
		t.Fatalf("got %+v", m)
	}

	tags := []string{" a ", "a", "", "b"}
	m, err = s.UpdateMember(ctx, "B", res.ID, domain.UpdateMemberInput{DisableUntilTS: i64(0), Tags: &tags})
	if err != nil {
		t.Fatal(err)
	}
	if m.Disabled(time.Now()) || len(m.Tags) != 2 || m.Tags[0] != "a" || m.Tags[1] != "b" {
		t.Fatalf("got %+v", m)
	}
}

func TestRemoveContent_SoftRemoves(t *testing.T) {
	t.Parallel()
	s, mem := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	res, err := s.AddContent(ctx, "B", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := s.BuildTarget(ctx, "pdq")
	if before.Count != 1 {
		t.Fatalf("target before = %+v", before)
	}

	d, err := s.RemoveContent(ctx, "B", res.ID)
	if err != nil || !d.Deleted {
		t.Fatalf("remove = %+v, %v", d, err)
	}
	if _, err := s.GetMember(ctx, "B", res.ID); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("removed member should be hidden, got %v", err)
	}
	ms, _ := s.Members(ctx, []int64{res.ID})
	if len(ms) != 1 || !ms[0].Removed {
		t.Fatalf("member should be retained until reaped: %+v", ms)
	}
	after, _ := s.BuildTarget(ctx, "pdq")
	if after.Count != 0 {
		t.Fatalf("removed signals still counted: %+v", after)
	}
	rows, _ := s.IterSignals(ctx, "pdq", domain.Cursor{}, time.Now(), 10)
	if len(rows) != 0 {
		t.Fatalf("removed signals still streamed: %+v", rows)
	}

	if n, _ := s.Reap(ctx); n != 0 {
		t.Fatalf("reaped before any index: %d", n)
	}
	// built after the removal but checkpointed at the member's own signal
	mem.IndexBuilt("pdq", before.LastTS, mem.Now())
	if n, _ := s.Reap(ctx); n != 0 {
		t.Fatalf("reaped with checkpoint not past the signal: %d", n)
	}
	mem.IndexBuilt("pdq", before.LastTS+1, mem.Now())
	if n, _ := s.Reap(ctx); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
}

func TestReap_WaitsForEveryIndex(t *testing.T) {
	t.Parallel()
	s, mem := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	mem.IndexBuilt("md5", 0, mem.Now())
	res, err := s.AddContent(ctx, "B", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}})
	if err != nil {
		t.Fatal(err)
	}
	target, _ := s.BuildTarget(ctx, "pdq")
	if _, err := s.RemoveContent(ctx, "B", res.ID); err != nil {
		t.Fatal(err)
	}

	// pdq is past the signal but md5 was last built before the removal
	mem.IndexBuilt("pdq", target.LastTS+1, mem.Now())
	if n, _ := s.Reap(ctx); n != 0 {
		t.Fatalf("reaped while an older index may still hold the member: %d", n)
	}
	mem.IndexBuilt("md5", 0, mem.Now())
	if n, _ := s.Reap(ctx); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
}

func TestIterSignals_OrderAndCursor(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	reg, _ := builtin.Registry(builtin.Options{})
	pdqType, _ := reg.Signal("pdq")
	for _, ex := range pdqType.Examples() {
		if _, err := s.AddContent(ctx, "B", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": ex}}); err != nil {
			t.Fatal(err)
		}
	}
	target, _ := s.BuildTarget(ctx, "pdq")
	if target.Count != int64(len(pdqType.Examples())) {
		t.Fatalf("target = %+v", target)
	}

	var got []domain.SignalRow
	cur := domain.Cursor{}
	for {
		page, err := s.IterSignals(ctx, "pdq", cur, target.Time(), 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		got = append(got, page...)
		cur = domain.After(page[len(page)-1])
	}
	if len(got) != int(target.Count) {
		t.Fatalf("streamed %d, want %d", len(got), target.Count)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatalf("rows out of order at %d", i)
		}
	}
}

func TestOpinionTags(t *testing.T) {
	t.Parallel()
	tags := WithOpinion([]string{"x", domain.TagTruePositive}, true)
	if len(tags) != 2 || tags[1] != domain.TagFalsePositive {
		t.Fatalf("got %v", tags)
	}
	tags = WithOpinion(tags, false)
	if len(tags) != 2 || tags[1] != domain.TagTruePositive {
		t.Fatalf("got %v", tags)
	}
}

func TestSignalTypeOverrides(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()

	info, err := s.SetSignalTypeRatio(ctx, "pdq", domain.SignalTypeRatioInput{EnabledRatio: 0})
	if err != nil || info.Enabled() {
		t.Fatalf("set = %+v, %v", info, err)
	}
	if _, err := s.SetSignalTypeRatio(ctx, "nope", domain.SignalTypeRatioInput{EnabledRatio: 1}); !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	all, err := s.SignalTypes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range all {
		want := 1.0
		if st.Name == "pdq" {
			want = 0
		}
		if st.EnabledRatio != want {
			t.Fatalf("%s ratio = %v, want %v", st.Name, st.EnabledRatio, want)
		}
	}
	cts, _ := s.ContentTypes(ctx)
	if len(cts) != 4 {
		t.Fatalf("content types = %+v", cts)
	}
}

func TestListMembers_Pages(t *testing.T) {
	t.Parallel()
	s, _ := newSvc(t)
	ctx := context.Background()
	if _, err := s.CreateBank(ctx, domain.CreateBankInput{Name: "B"}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.AddContent(ctx, "B", domain.AddContentInput{ContentType: "photo", Signals: map[string]string{"pdq": pdqA}}); err != nil {
			t.Fatal(err)
		}
	}
	p, err := s.ListMembers(ctx, "B", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Total != 3 || len(p.Items) != 2 || p.Items[0].ID != 3 {
		t.Fatalf("page 1 = %+v", p)
	}
	p, _ = s.ListMembers(ctx, "B", 2, 2)
	if len(p.Items) != 1 || p.Items[0].ID != 1 {
		t.Fatalf("page 2 = %+v", p)
	}
}

func TestNew_PanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(nil, nil, nil, Config{})
}

func repoMember(bankID int64, key string) repo.NewMember {
	return repo.NewMember{BankID: bankID, ContentType: "photo", ImportKey: key}
}
