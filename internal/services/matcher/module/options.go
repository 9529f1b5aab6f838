package module

import (
	"time"

	"hma/internal/platform/config"
)

// Options holds match configuration
type Options struct {
	// CacheRefresh is how often the served indices are checked against the store
	CacheRefresh time.Duration
	CacheGrace   time.Duration
	Strict       bool
	// LocalCacheDir keeps downloaded index payloads on disk, read from CORE_INDEX_
	LocalCacheDir string
}

// FromConfig reads match options from the CORE_MATCH_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_MATCH_")
	return Options{
		CacheRefresh:  c.MayDuration("CACHE_REFRESH", 30*time.Second),
		CacheGrace:    c.MayDuration("CACHE_GRACE", 60*time.Second),
		Strict:        c.MayBool("STRICT", false),
		LocalCacheDir: cfg.Prefix("CORE_INDEX_").MayString("LOCAL_CACHE_DIR", ""),
	}
}

// StaleAfter is how long an index may go unconfirmed before /status fails
func (o Options) StaleAfter() time.Duration {
	return max(6*o.CacheRefresh, 2*o.CacheGrace)
}
