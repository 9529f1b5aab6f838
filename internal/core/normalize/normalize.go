// Package normalize canonicalizes text and url signals before they are
// compared or indexed
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Normalizer folds text to a canonical display form: compatibility
// decomposed, case folded, without marks or format characters, fullwidth
// folded to ASCII, recomposed, with whitespace runs collapsed.
// Safe for concurrent use
type Normalizer struct {
	chains sync.Pool
}

func New() *Normalizer {
	n := &Normalizer{}
	n.chains.New = func() any {
		return transform.Chain(
			norm.NFKD,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)),
			runes.Remove(runes.In(unicode.Cf)), // ZWJ, ZWNJ, BOM
			width.Fold,
			norm.NFC,
		)
	}
	return n
}

func (n *Normalizer) Normalize(s string) string {
	s = Sanitize(s)
	if s == "" {
		return ""
	}
	tr := n.chains.Get().(transform.Transformer)
	out, _, _ := transform.String(tr, s)
	tr.Reset()
	n.chains.Put(tr)
	return strings.Join(strings.Fields(out), " ")
}
