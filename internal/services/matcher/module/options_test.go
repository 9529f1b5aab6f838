package module

import (
	"testing"
	"time"

	"hma/internal/platform/config"
)

func TestFromConfig(t *testing.T) {
	o := FromConfig(config.New())
	if o.CacheRefresh != 30*time.Second || o.CacheGrace != time.Minute || o.Strict {
		t.Fatalf("defaults = %+v", o)
	}
	if o.StaleAfter() != 3*time.Minute {
		t.Fatalf("stale after = %v", o.StaleAfter())
	}

	t.Setenv("CORE_MATCH_STRICT", "true")
	t.Setenv("CORE_MATCH_CACHE_GRACE", "5m")
	t.Setenv("CORE_INDEX_LOCAL_CACHE_DIR", "/var/cache/hma")
	o = FromConfig(config.New())
	if !o.Strict || o.CacheGrace != 5*time.Minute || o.LocalCacheDir != "/var/cache/hma" {
		t.Fatalf("overrides = %+v", o)
	}
	if o.StaleAfter() != 10*time.Minute {
		t.Fatalf("stale after = %v", o.StaleAfter())
	}
}
