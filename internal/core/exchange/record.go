package exchange

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
)

// Record is the shared value shape of the bundled APIs: one signal plus labels
type Record struct {
	SignalType string   `json:"signal_type"`
	Signal     string   `json:"signal"`
	Tags       []string `json:"tags,omitempty"`
}

// Marshal encodes r
func (r Record) Marshal() json.RawMessage {
	b, _ := json.Marshal(r)
	return b
}

// ConvertRecord implements API.Convert for Record values
// unknown or disabled signal types and invalid signals yield no signals
func ConvertRecord(types []signal.SignalType, key string, value json.RawMessage) (Signals, error) {
	var r Record
	if err := json.Unmarshal(value, &r); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "record %q is not valid json", key)
	}
	for _, st := range types {
		if st.Name() != r.SignalType {
			continue
		}
		canon, err := st.Validate(r.Signal)
		if err != nil {
			return Signals{}, nil
		}
		return Signals{st.Name(): {canon: Meta{Tags: cleanTags(r.Tags)}}}, nil
	}
	return Signals{}, nil
}

func cleanTags(tags []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// TimeCheckpoint is a checkpoint that only carries a progress time and an optional cursor
type TimeCheckpoint struct {
	Cursor string `json:"cursor,omitempty"`
	TS     int64  `json:"ts"`
}

// ProgressTime implements Checkpoint
func (c TimeCheckpoint) ProgressTime() time.Time { return time.Unix(c.TS, 0).UTC() }

// DecodeTimeCheckpoint implements API.DecodeCheckpoint for TimeCheckpoint
func DecodeTimeCheckpoint(raw json.RawMessage) (Checkpoint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var c TimeCheckpoint
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "bad checkpoint")
	}
	return c, nil
}

// SliceIterator yields a fixed list of batches
type SliceIterator struct {
	batches []Batch
	i       int
}

// NewSliceIterator returns an iterator over batches
func NewSliceIterator(batches ...Batch) *SliceIterator {
	return &SliceIterator{batches: batches}
}

// Next implements Iterator
func (s *SliceIterator) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.i >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.i]
	s.i++
	return b, nil
}

// Close implements Iterator
func (s *SliceIterator) Close() error { return nil }
