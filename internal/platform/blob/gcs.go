package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures the GCS backend
type GCSConfig struct {
	Bucket string
	// Prefix is prepended to every object name
	Prefix string
	// CredentialsFile is optional; ambient credentials are used when empty
	CredentialsFile string
}

// GCS keeps index payloads as objects in a bucket
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a storage client for cfg.Bucket
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob: gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: gcs client: %w", err)
	}
	return &GCS{client: c, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Name implements Store
func (g *GCS) Name() string { return "gcs" }

// Ping checks the bucket exists and the credentials can read it
func (g *GCS) Ping(ctx context.Context) error {
	if _, err := g.client.Bucket(g.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("blob: gcs bucket %s: %w", g.bucket, err)
	}
	return nil
}

// Put implements Store
func (g *GCS) Put(ctx context.Context, prefix string, data []byte) (string, error) {
	p := prefix
	if g.prefix != "" {
		p = g.prefix + "/" + prefix
	}
	key := NewKey(p)
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("blob: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("blob: gcs close %s: %w", key, err)
	}
	return key, nil
}

// Get implements Store
func (g *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: gcs read %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// Delete implements Store. Missing objects are not an error
func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("blob: gcs delete %s: %w", key, err)
}

// Close releases the storage client
func (g *GCS) Close() error { return g.client.Close() }
