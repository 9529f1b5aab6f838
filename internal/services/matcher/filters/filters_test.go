package filters

import (
	"fmt"
	"testing"
	"time"

	banksdom "hma/internal/services/banks/domain"
)

func cand(id int64, mut func(*banksdom.Member)) Candidate {
	m := banksdom.Member{ID: id, BankID: 1, BankRatio: 1}
	if mut != nil {
		mut(&m)
	}
	return Candidate{Member: m, Distance: 2}
}

func TestDefaultChain(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	q := Query{Now: now}

	cases := []struct {
		name string
		c    Candidate
		q    Query
		keep bool
	}{
		{"plain", cand(1, nil), q, true},
		{"bank off", cand(1, func(m *banksdom.Member) { m.BankRatio = 0 }), q, false},
		{"bank off ignores bypass", cand(1, func(m *banksdom.Member) { m.BankRatio = 0 }), Query{Now: now, BypassRatio: true}, false},
		{"removed", cand(1, func(m *banksdom.Member) { m.Removed = true }), q, false},
		{"disabled", cand(1, func(m *banksdom.Member) { m.DisableUntilTS = now.Unix() + 60 }), q, false},
		{"disable elapsed", cand(1, func(m *banksdom.Member) { m.DisableUntilTS = now.Unix() - 60 }), q, true},
		{"beyond threshold", cand(1, nil), Query{Now: now, Threshold: 1}, false},
		{"within threshold", cand(1, nil), Query{Now: now, Threshold: 2}, true},
		{"disputed", cand(1, func(m *banksdom.Member) { m.Tags = []string{banksdom.TagFalsePositive} }), q, false},
		{"disputed included", cand(1, func(m *banksdom.Member) { m.Tags = []string{banksdom.TagFalsePositive} }), Query{Now: now, IncludeDisputed: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Default().Apply(tc.q, []Candidate{tc.c})
			if (len(got) == 1) != tc.keep {
				t.Fatalf("kept = %v, want %v", len(got) == 1, tc.keep)
			}
		})
	}
}

func TestApply_KeepsOrderAndNeverAdds(t *testing.T) {
	t.Parallel()
	in := []Candidate{cand(3, nil), cand(1, func(m *banksdom.Member) { m.Removed = true }), cand(2, nil)}
	out := Default().Apply(Query{Now: time.Now()}, in)
	if len(out) != 2 || out[0].Member.ID != 3 || out[1].Member.ID != 2 {
		t.Fatalf("out = %+v", out)
	}
	if in[1].Member.ID != 1 {
		t.Fatalf("input mutated")
	}
}

func TestBankEnabled_RatioIsPerQuery(t *testing.T) {
	t.Parallel()
	const queries = 4000
	now := time.Now()
	members := []Candidate{}
	for id := int64(1); id <= 5; id++ {
		members = append(members, cand(id, func(m *banksdom.Member) { m.BankRatio = 0.3 }))
	}

	admitted := 0
	for i := 0; i < queries; i++ {
		q := Query{Now: now, Key: fmt.Sprintf("pdq:%064x", i)}
		out := Default().Apply(q, members)
		switch len(out) {
		case len(members):
			admitted++
		case 0:
		default:
			t.Fatalf("query %d split the bank: kept %d of %d", i, len(out), len(members))
		}
		if len(Default().Apply(q, members)) != len(out) {
			t.Fatalf("query %d not stable", i)
		}
	}
	if frac := float64(admitted) / queries; frac < 0.27 || frac > 0.33 {
		t.Fatalf("bank took part in %.3f of queries", frac)
	}
}

func TestAdmit_Monotonic(t *testing.T) {
	t.Parallel()
	for i := 0; i < 2000; i++ {
		key := fmt.Sprintf("seed-%d", i)
		if Admit(7, key, 0.3) && !Admit(7, key, 0.6) {
			t.Fatalf("%s admitted at 0.3 but not at 0.6", key)
		}
	}
}

func TestBypassRatio(t *testing.T) {
	t.Parallel()
	key := ""
	for i := 0; i < 100; i++ {
		if k := fmt.Sprintf("seed-%d", i); !Admit(1, k, 0.01) {
			key = k
			break
		}
	}
	c := cand(1, func(m *banksdom.Member) { m.BankRatio = 0.01 })
	if len(Default().Apply(Query{Now: time.Now(), Key: key}, []Candidate{c})) != 0 {
		t.Fatalf("query %q should skip the bank at ratio 0.01", key)
	}
	if len(Default().Apply(Query{Now: time.Now(), Key: key, BypassRatio: true}, []Candidate{c})) != 1 {
		t.Fatalf("bypass should keep the bank for %q", key)
	}
}
