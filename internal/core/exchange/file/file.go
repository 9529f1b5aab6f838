// Package file is an exchange that reads signals from a local text file
// Each non-blank line is "<signal_type> <signal>"; lines starting with # are ignored
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"hma/internal/core/exchange"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
)

// Name is the registered API name
const Name = "local_file"

// Config is the typed config
type Config struct {
	Path string `json:"path"`
}

// Checkpoint remembers the file mtime and the keys it produced so removed lines become deletes
type Checkpoint struct {
	ModTime int64    `json:"mtime"`
	Keys    []string `json:"keys,omitempty"`
}

// ProgressTime implements exchange.Checkpoint
func (c Checkpoint) ProgressTime() time.Time { return time.Unix(c.ModTime, 0).UTC() }

// IsStale implements exchange.Staler. A file has no retention window on its side
func (c Checkpoint) IsStale(time.Time, time.Duration) bool { return false }

// API implements exchange.API
type API struct {
	readFile func(string) ([]byte, error)
	stat     func(string) (os.FileInfo, error)
}

// New returns the file API
func New() *API { return &API{readFile: os.ReadFile, stat: os.Stat} }

func (a *API) Name() string { return Name }

func (a *API) ValidateConfig(raw json.RawMessage) (json.RawMessage, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "file config must be {\"path\": ...}")
	}
	c.Path = strings.TrimSpace(c.Path)
	if c.Path == "" {
		return nil, perr.WithField(perr.Validationf("path is required"), "path")
	}
	out, _ := json.Marshal(c)
	return out, nil
}

func (a *API) DecodeCheckpoint(raw json.RawMessage) (exchange.Checkpoint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var c Checkpoint
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "bad file checkpoint")
	}
	return c, nil
}

// Key is the exchange id of one line
func Key(signalType, sig string) string { return signalType + " " + sig }

// Parse reads lines into records keyed by Key
func Parse(data []byte) map[string]exchange.Record {
	out := map[string]exchange.Record{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		st, sig, ok := strings.Cut(line, " ")
		sig = strings.TrimSpace(sig)
		if !ok || sig == "" {
			continue
		}
		out[Key(st, sig)] = exchange.Record{SignalType: st, Signal: sig}
	}
	return out
}

// Fetch re-reads the file when its mtime moved and yields one snapshot batch
func (a *API) Fetch(_ context.Context, req exchange.FetchRequest) (exchange.Iterator, error) {
	var c Config
	if err := json.Unmarshal(req.Collab.Config, &c); err != nil || c.Path == "" {
		return nil, perr.Validationf("collab %s has no file path", req.Collab.Name)
	}
	fi, err := a.stat(c.Path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "stat %s", c.Path)
	}
	var prev Checkpoint
	if cp, ok := req.Checkpoint.(Checkpoint); ok {
		prev = cp
	}
	mtime := fi.ModTime().Unix()
	if req.Checkpoint != nil && mtime <= prev.ModTime {
		return exchange.NewSliceIterator(), nil
	}
	data, err := a.readFile(c.Path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "read %s", c.Path)
	}
	recs := Parse(data)
	updates := make(map[string]json.RawMessage, len(recs))
	keys := make([]string, 0, len(recs))
	for k, r := range recs {
		updates[k] = r.Marshal()
		keys = append(keys, k)
	}
	for _, k := range prev.Keys {
		if _, still := recs[k]; !still {
			updates[k] = nil
		}
	}
	sort.Strings(keys)
	if mtime <= prev.ModTime {
		mtime = prev.ModTime + 1
	}
	return exchange.NewSliceIterator(exchange.Batch{
		Updates:    updates,
		Checkpoint: Checkpoint{ModTime: mtime, Keys: keys},
	}), nil
}

func (a *API) Merge(old, next json.RawMessage) (json.RawMessage, error) {
	return exchange.ReplaceMerge(old, next)
}

func (a *API) Convert(types []signal.SignalType, _ exchange.Collab, key string, value json.RawMessage) (exchange.Signals, error) {
	return exchange.ConvertRecord(types, key, value)
}

var _ exchange.API = (*API)(nil)
