package module

import (
	"time"

	"hma/internal/core/exchange"
	"hma/internal/core/exchange/file"
	"hma/internal/core/exchange/jsonfeed"
	"hma/internal/core/exchange/sample"
	"hma/internal/platform/config"
)

// Options holds fetch engine configuration
type Options struct {
	// Interval is the worker fetch tick
	Interval    time.Duration
	CycleBudget time.Duration
	StaleLease  time.Duration
	// Retention ages out checkpoints, forcing a refetch from scratch
	Retention time.Duration
	// MaxRetries bounds retries of one exchange http request
	MaxRetries int
}

// FromConfig reads fetch options from the CORE_FETCH_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_FETCH_")
	return Options{
		Interval:    c.MayDuration("INTERVAL", time.Minute),
		CycleBudget: c.MayDuration("CYCLE_BUDGET", 15*time.Minute),
		StaleLease:  c.MayDuration("STALE_LEASE", 30*time.Minute),
		Retention:   c.MayDuration("CHECKPOINT_RETENTION", 85*24*time.Hour),
		MaxRetries:  c.MayInt("MAX_RETRIES", 3),
	}
}

// Registry installs the built in exchange apis. The json feed client takes
// its retry budget from MaxRetries
func (o Options) Registry() (*exchange.Registry, error) {
	client := jsonfeed.NewClient(jsonfeed.ClientOptions{MaxRetries: o.MaxRetries}, nil)
	return exchange.NewRegistry(sample.New(), file.New(), jsonfeed.New(client))
}
