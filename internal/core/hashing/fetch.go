package hashing

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
)

const (
	defaultMaxBytes = 32 << 20
	defaultTimeout  = 10 * time.Second
	defaultUA       = "hma-hasher"
)

// FetchOptions configures the content downloader
type FetchOptions struct {
	MaxBytes  int64
	Timeout   time.Duration
	UserAgent string
}

// Fetcher downloads media by URL with a size cap
type Fetcher struct {
	http *http.Client
	opts FetchOptions
	log  logger.Logger
	now  func() time.Time
}

// NewFetcher fills defaults. client may be nil
func NewFetcher(o FetchOptions, client *http.Client) *Fetcher {
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	return &Fetcher{http: client, opts: o, log: *logger.Named("hashing"), now: time.Now}
}

// Fetch returns the body of rawURL, failing when it exceeds MaxBytes
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, perr.WithField(perr.Validationf("url must be an absolute http(s) url"), "url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "hashing new request failed")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	start := f.now()
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "fetch %s failed", u.Host)
	}
	defer func() { _ = resp.Body.Close() }()

	f.log.Debug().
		Str("host", u.Host).
		Int("status", resp.StatusCode).
		Dur("latency", f.now().Sub(start)).
		Int64("content_length", resp.ContentLength).
		Msg("hashing fetch response")

	switch {
	case resp.StatusCode >= 500:
		return nil, perr.Newf(perr.ErrorCodeUnavailable, "fetch %s: upstream status %d", u.Host, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, perr.WithField(perr.Validationf("fetch %s: status %d", u.Host, resp.StatusCode), "url")
	}
	if resp.ContentLength > f.opts.MaxBytes {
		return nil, perr.OutOfRangef("content is %d bytes, limit is %d", resp.ContentLength, f.opts.MaxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read %s failed", u.Host)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, perr.OutOfRangef("content exceeds %d bytes", f.opts.MaxBytes)
	}
	return data, nil
}
