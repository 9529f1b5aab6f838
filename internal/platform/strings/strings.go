// Package strings holds small string and slice helpers shared by modules and repos
package strings

import std "strings"

// IfEmpty returns def if in is empty, otherwise returns in
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// MustString returns s if it has non whitespace content otherwise panics
// name is used in the panic message so you can tell what was missing
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// MustPrefix normalizes a mount prefix like /m or /c to one leading slash
// and no trailing slash. Panics on the bare root
func MustPrefix(s string) string {
	s = "/" + std.Trim(std.TrimSpace(s), " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}

// SQLNull returns nil for a blank s so optional text columns store NULL
func SQLNull(s string) any {
	if std.TrimSpace(s) == "" {
		return nil
	}
	return s
}
