package module

import (
	"context"
	"strings"
	"time"

	"hma/internal/platform/blob"
	"hma/internal/platform/config"
)

// Blob backends
const (
	BackendPG  = "pg"
	BackendGCS = "gcs"
)

// Options holds index build configuration
type Options struct {
	// Interval is the worker build tick
	Interval    time.Duration
	BuildBudget time.Duration
	DirtyCount  int64
	DirtyAge    time.Duration
	Batch       int

	// Backend picks where payloads live, pg keeps them in the signal_index row
	Backend        string
	GCSBucket      string
	GCSPrefix      string
	GCSCredentials string
	// LocalCacheDir enables the matcher's on-disk copy of downloaded payloads
	LocalCacheDir string
}

// FromConfig reads index options from the CORE_INDEX_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_INDEX_")
	return Options{
		Interval:       c.MayDuration("INTERVAL", 30*time.Second),
		BuildBudget:    c.MayDuration("BUILD_BUDGET", 30*time.Minute),
		DirtyCount:     c.MayInt64("DIRTY_COUNT", 1),
		DirtyAge:       c.MayDuration("DIRTY_AGE", 0),
		Batch:          c.MayInt("BATCH", 1000),
		Backend:        strings.ToLower(c.MayEnum("BLOB_BACKEND", BackendPG, BackendPG, BackendGCS)),
		GCSBucket:      c.MayString("GCS_BUCKET", ""),
		GCSPrefix:      c.MayString("GCS_PREFIX", "hma/"),
		GCSCredentials: c.MayString("GCS_CREDENTIALS", ""),
		LocalCacheDir:  c.MayString("LOCAL_CACHE_DIR", ""),
	}
}

// OpenBlobs builds the configured payload backend. The store is nil for pg;
// close must run on shutdown either way
func (o Options) OpenBlobs(ctx context.Context) (store blob.Store, closeFn func() error, err error) {
	if o.Backend != BackendGCS {
		return nil, func() error { return nil }, nil
	}
	g, err := blob.NewGCS(ctx, blob.GCSConfig{
		Bucket:          o.GCSBucket,
		Prefix:          o.GCSPrefix,
		CredentialsFile: o.GCSCredentials,
	})
	if err != nil {
		return nil, nil, err
	}
	return g, g.Close, nil
}
