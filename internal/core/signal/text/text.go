// Package text provides the raw_text and url signal types
package text

import (
	"hma/internal/core/normalize"
	"hma/internal/core/signal"
)

// RawTextName is the registered name of the fuzzy text signal type
const RawTextName = "raw_text"

// DiffPercent is the default share of the query length that may differ
const DiffPercent = 5.0

var normalizer = normalize.New()

// maxDistance is the edit budget for a query of n normalized runes
func maxDistance(n int, pct float64) float64 {
	return float64(n) - float64(n)*(100-pct)/100
}

// Levenshtein is the edit distance between a and b, counted in runes
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// distance compares two strings already projected with normalize.ForMatching
// the length difference alone rules out most candidates without running the full edit distance
func distance(a, b string, pct float64) (int, bool) {
	limit := maxDistance(len([]rune(a)), pct)
	ldiff := len([]rune(a)) - len([]rune(b))
	if ldiff < 0 {
		ldiff = -ldiff
	}
	if float64(ldiff) > limit {
		return ldiff, false
	}
	d := Levenshtein(a, b)
	return d, float64(d) <= limit
}

// RawText implements signal.SignalType
type RawText struct{}

// NewRawText returns the raw_text signal type
func NewRawText() RawText { return RawText{} }

func (RawText) Name() string           { return RawTextName }
func (RawText) ContentTypes() []string { return []string{signal.ContentText} }

// Validate normalizes whitespace, case and compatibility forms
func (RawText) Validate(s string) (string, error) {
	out := normalizer.Normalize(s)
	if out == "" {
		return "", signal.Invalid(RawTextName, "empty text")
	}
	return out, nil
}

// Compare allows threshold percent of the first string's length to differ, 5 when unset
func (t RawText) Compare(a, b string, threshold float64) (signal.Comparison, error) {
	if threshold <= 0 {
		threshold = DiffPercent
	}
	if threshold > 100 {
		return signal.Comparison{}, signal.Invalid(RawTextName, "threshold %v is over 100 percent", threshold)
	}
	d, ok := distance(normalize.ForMatching(a), normalize.ForMatching(b), threshold)
	return signal.Comparison{Match: ok, Distance: float64(d)}, nil
}

func (RawText) NewIndex() signal.Index { return NewLinearIndex(DiffPercent) }

func (RawText) LoadIndex(data []byte) (signal.Index, error) { return LoadLinearIndex(data) }

func (RawText) Examples() []string {
	return []string{
		"The quick brown fox jumps over the lazy dog",
		"We the People of the United States, in Order to form a more perfect Union, " +
			"establish Justice, ensure domestic Tranquility, provide for the common defence, " +
			"promote the general Welfare, and secure the Blessings of Liberty to ourselves " +
			"and our Posterity, do ordain and establish this Constitution for the United States of America.",
		"bball now?",
	}
}

var _ signal.SignalType = RawText{}
