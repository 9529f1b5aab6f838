package domain

import (
	"regexp"

	perr "hma/internal/platform/errors"
)

var nameRe = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// MaxNameLen bounds bank and collab names
const MaxNameLen = 255

// ValidName reports whether name is a legal bank or collab name
func ValidName(name string) bool {
	return len(name) <= MaxNameLen && nameRe.MatchString(name)
}

// CheckName returns a validation error for an illegal name
func CheckName(name string) error {
	if ValidName(name) {
		return nil
	}
	return perr.WithField(
		perr.Validationf("invalid name %q: use uppercase letters, digits and underscores, not starting with a digit", name),
		"name",
	)
}

// ClampRatio forces r into [0, 1]
func ClampRatio(r float64) float64 {
	switch {
	case r != r, r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
