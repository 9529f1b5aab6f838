package module

import (
	"testing"
	"time"

	"hma/internal/platform/config"
)

func TestFromConfig(t *testing.T) {
	o := FromConfig(config.New())
	if o.MaxBytes != 32<<20 || o.FetchTimeout != 10*time.Second {
		t.Fatalf("defaults = %+v", o)
	}
	t.Setenv("CORE_HASH_MAX_BYTES", "1024")
	o = FromConfig(config.New())
	if o.MaxBytes != 1024 {
		t.Fatalf("override = %+v", o)
	}
	if h := o.Hasher(nil); h.MaxBytes() != 1024 {
		t.Fatalf("hasher cap = %d", h.MaxBytes())
	}
}
