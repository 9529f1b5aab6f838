package jsonfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	perr "hma/internal/platform/errors"
	"hma/internal/platform/logger"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUA        = "hma-jsonfeed"
	defaultMaxRetry  = 4
	defaultRetryBase = 500 * time.Millisecond
	defaultRPS       = 5
	maxBackoff       = 30 * time.Second
	maxPageBytes     = 64 << 20
)

// ClientOptions configures the feed client
type ClientOptions struct {
	Timeout    time.Duration
	UserAgent  string
	MaxRetries int
	RetryBase  time.Duration
	// RequestsPerSecond caps outbound calls per client
	RequestsPerSecond float64
}

// Client is a small GET+JSON client with retries and a token bucket
type Client struct {
	http    *http.Client
	opts    ClientOptions
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// NewClient fills defaults
func NewClient(o ClientOptions, hc *http.Client) *Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = defaultRPS
	}
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		http:    hc,
		opts:    o,
		limiter: rate.NewLimiter(rate.Limit(o.RequestsPerSecond), 1),
		log:     *logger.Named("jsonfeed"),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetJSON fetches url into out, retrying transport errors, 429 and 5xx
func (c *Client) GetJSON(ctx context.Context, url, token string, out any) error {
	attempts := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "jsonfeed bad url")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		start := c.now()
		resp, err := c.http.Do(req)
		lat := c.now().Sub(start)
		if err != nil {
			if ctx.Err() != nil || attempts >= c.opts.MaxRetries {
				return perr.Wrapf(err, perr.ErrorCodeUnavailable, "jsonfeed request failed")
			}
			back := c.backoff(attempts)
			c.log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempts).Msg("jsonfeed transport error retrying")
			if err := c.sleep(ctx, back); err != nil {
				return err
			}
			attempts++
			continue
		}

		c.log.Debug().
			Str("url", req.URL.Redacted()).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Msg("jsonfeed http response")

		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBytes)).Decode(out)
			_ = resp.Body.Close()
			if err != nil {
				return perr.Wrapf(err, perr.ErrorCodeJSON, "jsonfeed page is not valid json")
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			wait := retryAfter(resp.Header)
			_ = drainAndClose(resp.Body)
			if attempts >= c.opts.MaxRetries {
				return perr.Newf(perr.ErrorCodeUnavailable, "jsonfeed status %d after %d attempts", resp.StatusCode, attempts+1)
			}
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			c.log.Warn().Int("status", resp.StatusCode).Dur("retry_in", wait).Msg("jsonfeed transient status retrying")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			attempts++
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			_ = drainAndClose(resp.Body)
			return perr.Newf(perr.ErrorCodeUnauthorized, "jsonfeed rejected credentials")
		case resp.StatusCode == http.StatusForbidden:
			_ = drainAndClose(resp.Body)
			return perr.Newf(perr.ErrorCodeForbidden, "jsonfeed access denied")
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			return perr.Newf(perr.ErrorCodeInvalidArgument, "jsonfeed unexpected status %d body %s", resp.StatusCode, string(body))
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.RetryBase << uint(attempt)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func retryAfter(h http.Header) time.Duration {
	s := h.Get("Retry-After")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}
