package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var decomposePool = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	},
}

// ForMatching projects text onto the form used for fuzzy comparison:
// lower case, accents stripped, runs longer than two squashed, and only letters and digits kept
// "W0000000t, Café!" becomes "w00tcafe"
func ForMatching(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(strings.ToValidUTF8(Sanitize(s), ""))

	tr := decomposePool.Get().(transform.Transformer)
	ns, _, _ := transform.String(tr, s)
	tr.Reset()
	decomposePool.Put(tr)

	return stripNonWord(squashRuns(ns, 2))
}

// URL lower cases u and removes a leading "scheme://"
func URL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if i := strings.Index(u, "://"); i > 0 && isScheme(u[:i]) {
		return u[i+3:]
	}
	return u
}

func isScheme(s string) bool {
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func stripNonWord(s string) string {
	if s == "" {
		return s
	}
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b = append(b, r)
		}
	}
	return string(b)
}

func squashRuns(s string, max int) string {
	if s == "" || max < 1 {
		return s
	}
	out := make([]rune, 0, len(s))
	var prev rune
	count := 0
	for _, r := range s {
		if r == prev {
			count++
			if count <= max {
				out = append(out, r)
			}
			continue
		}
		prev = r
		count = 1
		out = append(out, r)
	}
	return string(out)
}
