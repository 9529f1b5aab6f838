package version

import "testing"

func TestInfo(t *testing.T) {
	b := Info("hma-api")
	if b.Service != "hma-api" || b.Version != "dev" {
		t.Fatalf("info = %+v", b)
	}
	if got := b.String(); got != "hma-api dev (none, unknown)" {
		t.Fatalf("string = %q", got)
	}
}
