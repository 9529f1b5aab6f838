// Package filters holds the match filter chain. Filters only drop candidates;
// a filter with no opinion on a candidate keeps it
package filters

import (
	"encoding/binary"
	"hash/fnv"
	"time"

	banksdom "hma/internal/services/banks/domain"
)

// Candidate is one index hit resolved to its member
type Candidate struct {
	Member   banksdom.Member
	Distance float64
}

// Query carries the per request knobs the filters read
type Query struct {
	Now time.Time
	// Threshold is the confident distance of the signal type; 0 means none.
	// Queries that chose their own bound leave it at 0
	Threshold       float64
	IncludeDisputed bool
	BypassRatio     bool
	// Key identifies the query for bank ratios: the seed when the caller
	// gave one, otherwise the signal type and canonical signal
	Key string
}

// Filter decides whether a candidate survives
type Filter interface {
	Name() string
	Keep(q Query, c Candidate) bool
}

// Chain runs filters in order
type Chain []Filter

// Default is the chain every lookup runs
func Default() Chain {
	return Chain{BankEnabled{}, MemberEnabled{}, Distance{}, Opinion{}}
}

// Apply returns the candidates every filter keeps, in input order
func (ch Chain) Apply(q Query, cs []Candidate) []Candidate {
	out := cs[:0:0]
next:
	for _, c := range cs {
		for _, f := range ch {
			if !f.Keep(q, c) {
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

// BankEnabled applies the bank matching ratio. A bank with a ratio strictly
// between 0 and 1 takes part in that fraction of queries, all of its members
// together; the same query always gets the same answer
type BankEnabled struct{}

func (BankEnabled) Name() string { return "bank_enabled" }

func (BankEnabled) Keep(q Query, c Candidate) bool {
	r := c.Member.BankRatio
	switch {
	case r <= 0:
		return false
	case r >= 1, q.BypassRatio:
		return true
	}
	return Admit(c.Member.BankID, q.Key, r)
}

// Admit hashes (bank, query key) with FNV-1a into [0,1) and admits below ratio.
// The fmix64 finalizer spreads nearby bank ids across the high bits
func Admit(bankID int64, key string, ratio float64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(bankID))
	h := fnv.New64a()
	_, _ = h.Write(b[:])
	_, _ = h.Write([]byte(key))
	x := h.Sum64()
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return float64(x>>11)/(1<<53) < ratio
}

// MemberEnabled drops removed members and members disabled until a future time
type MemberEnabled struct{}

func (MemberEnabled) Name() string { return "member_enabled" }

func (MemberEnabled) Keep(q Query, c Candidate) bool {
	return !c.Member.Removed && !c.Member.Disabled(q.Now)
}

// Distance drops matches beyond the confident threshold of the signal type
type Distance struct{}

func (Distance) Name() string { return "distance" }

func (Distance) Keep(q Query, c Candidate) bool {
	return q.Threshold <= 0 || c.Distance <= q.Threshold
}

// Opinion drops members the operator marked as false positives
type Opinion struct{}

func (Opinion) Name() string { return "opinion" }

func (Opinion) Keep(q Query, c Candidate) bool {
	return q.IncludeDisputed || !c.Member.HasTag(banksdom.TagFalsePositive)
}
