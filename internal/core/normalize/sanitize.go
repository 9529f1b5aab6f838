package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// control drops C0 and C1 controls, DEL included, but keeps tab, CR and LF
var control = runes.Remove(runes.Predicate(isControl))

func isControl(r rune) bool { return unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' }

// Sanitize drops invalid UTF-8 and the control characters that have no place
// in a stored signal. Clean input comes back unchanged
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	if strings.IndexFunc(s, isControl) < 0 {
		return s
	}
	out, _, _ := transform.String(control, s)
	return out
}
