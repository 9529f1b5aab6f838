package module

import (
	"time"

	"hma/internal/core/hashing"
	"hma/internal/core/signal"
	"hma/internal/platform/config"
)

// Options holds content hashing configuration
type Options struct {
	MaxBytes     int64
	FetchTimeout time.Duration
}

// FromConfig reads hashing options from the CORE_HASH_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_HASH_")
	return Options{
		MaxBytes:     c.MayInt64("MAX_BYTES", 32<<20),
		FetchTimeout: c.MayDuration("FETCH_TIMEOUT", 10*time.Second),
	}
}

// Hasher builds the process hasher with a url fetcher
func (o Options) Hasher(reg *signal.Registry) *hashing.Hasher {
	return hashing.New(reg, hashing.NewFetcher(hashing.FetchOptions{MaxBytes: o.MaxBytes, Timeout: o.FetchTimeout}, nil))
}
