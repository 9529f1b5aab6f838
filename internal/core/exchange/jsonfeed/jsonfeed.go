// Package jsonfeed is an exchange over a paged HTTP JSON feed
//
// The feed answers GET <url>?cursor=<c>&limit=<n> with
//
//	{"updates": [{"id": "...", "signal_type": "pdq", "signal": "...", "tags": [], "deleted": false, "updated_at": 1700000000}],
//	 "next_cursor": "...", "has_more": true}
package jsonfeed

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"hma/internal/core/exchange"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
)

// Name is the registered API name
const Name = "json_feed"

const defaultPageSize = 500

// Config is the typed config
type Config struct {
	URL      string `json:"url"`
	PageSize int    `json:"page_size,omitempty"`
}

// Credentials hold the bearer token
type Credentials struct {
	Token string `json:"token"`
}

type item struct {
	ID         string   `json:"id"`
	SignalType string   `json:"signal_type"`
	Signal     string   `json:"signal"`
	Tags       []string `json:"tags"`
	Deleted    bool     `json:"deleted"`
	UpdatedAt  int64    `json:"updated_at"`
}

type page struct {
	Updates    []item `json:"updates"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

// API implements exchange.API and exchange.Authenticated
type API struct {
	client *Client
}

// New returns the feed API over client. A nil client uses defaults
func New(client *Client) *API {
	if client == nil {
		client = NewClient(ClientOptions{}, nil)
	}
	return &API{client: client}
}

func (a *API) Name() string { return Name }

func (a *API) ValidateConfig(raw json.RawMessage) (json.RawMessage, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "json_feed config must be {\"url\": ...}")
	}
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, perr.WithField(perr.Validationf("url must be an absolute http(s) url"), "url")
	}
	c.URL = u.String()
	if c.PageSize < 0 || c.PageSize > 10000 {
		return nil, perr.WithField(perr.OutOfRangef("page_size must be in [1, 10000]"), "page_size")
	}
	out, _ := json.Marshal(c)
	return out, nil
}

func (a *API) ValidateCredentials(raw json.RawMessage) error {
	var c Credentials
	if err := json.Unmarshal(raw, &c); err != nil || strings.TrimSpace(c.Token) == "" {
		return perr.WithField(perr.Validationf("credentials must be {\"token\": \"...\"}"), "credential_json")
	}
	return nil
}

func (a *API) DecodeCheckpoint(raw json.RawMessage) (exchange.Checkpoint, error) {
	return exchange.DecodeTimeCheckpoint(raw)
}

func (a *API) Fetch(_ context.Context, req exchange.FetchRequest) (exchange.Iterator, error) {
	var c Config
	if err := json.Unmarshal(req.Collab.Config, &c); err != nil || c.URL == "" {
		return nil, perr.Validationf("collab %s has no feed url", req.Collab.Name)
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	var creds Credentials
	if len(req.Collab.Credentials) > 0 {
		_ = json.Unmarshal(req.Collab.Credentials, &creds)
	}
	it := &iterator{client: a.client, cfg: c, token: creds.Token}
	if cp, ok := req.Checkpoint.(exchange.TimeCheckpoint); ok {
		it.cp = cp
	}
	return it, nil
}

func (a *API) Merge(old, next json.RawMessage) (json.RawMessage, error) {
	return exchange.ReplaceMerge(old, next)
}

func (a *API) Convert(types []signal.SignalType, _ exchange.Collab, key string, value json.RawMessage) (exchange.Signals, error) {
	return exchange.ConvertRecord(types, key, value)
}

type iterator struct {
	client *Client
	cfg    Config
	token  string
	cp     exchange.TimeCheckpoint
	done   bool
}

func (it *iterator) pageURL() string {
	u, _ := url.Parse(it.cfg.URL)
	q := u.Query()
	if it.cp.Cursor != "" {
		q.Set("cursor", it.cp.Cursor)
	}
	q.Set("limit", strconv.Itoa(it.cfg.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

// Next fetches one page. A page that makes no progress ends the iteration without a batch
func (it *iterator) Next(ctx context.Context) (exchange.Batch, error) {
	if it.done {
		return exchange.Batch{}, io.EOF
	}
	var p page
	if err := it.client.GetJSON(ctx, it.pageURL(), it.token, &p); err != nil {
		return exchange.Batch{}, err
	}
	if !p.HasMore || p.NextCursor == "" || p.NextCursor == it.cp.Cursor {
		it.done = true
	}
	updates := make(map[string]json.RawMessage, len(p.Updates))
	next := it.cp
	if p.NextCursor != "" {
		next.Cursor = p.NextCursor
	}
	for _, u := range p.Updates {
		if u.ID == "" {
			return exchange.Batch{}, perr.InvalidArgf("json_feed update without id")
		}
		if u.UpdatedAt > next.TS {
			next.TS = u.UpdatedAt
		}
		if u.Deleted {
			updates[u.ID] = nil
			continue
		}
		updates[u.ID] = exchange.Record{SignalType: u.SignalType, Signal: u.Signal, Tags: u.Tags}.Marshal()
	}
	// a page that moves neither cursor nor time repeats what was already applied
	if next == it.cp {
		it.done = true
		return exchange.Batch{}, io.EOF
	}
	it.cp = next
	return exchange.Batch{Updates: updates, Checkpoint: next}, nil
}

func (it *iterator) Close() error { return nil }

var (
	_ exchange.API           = (*API)(nil)
	_ exchange.Authenticated = (*API)(nil)
)
