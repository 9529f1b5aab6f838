// Package testkit provides testing helpers shared across packages
package testkit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// MustPanic fails the test unless fn panics
func MustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic, got none")
		}
	}()
	fn()
}

// MustContain fails unless haystack contains needle. Long output is dumped to
// a temp file rather than the test log
func MustContain(t *testing.T, haystack, needle string) {
	t.Helper()
	if strings.Contains(haystack, needle) {
		return
	}
	if len(haystack) < 512 {
		t.Fatalf("expected %q in %q", needle, haystack)
	}
	path := filepath.Join(t.TempDir(), "output.txt")
	_ = os.WriteFile(path, []byte(haystack), 0o600)
	t.Fatalf("expected %q in output, full output in %s", needle, path)
}
