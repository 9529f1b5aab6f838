// Package sample is a static exchange that serves every signal type's examples
package sample

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hma/internal/core/exchange"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
)

// Name is the registered API name
const Name = "sample"

// Tag marks every sample record
const Tag = "sample"

// API implements exchange.API
type API struct {
	now func() time.Time
}

// New returns the sample API
func New() *API { return &API{now: time.Now} }

func (a *API) Name() string { return Name }

// ValidateConfig accepts an empty object only
func (a *API) ValidateConfig(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`), nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeValidation, "sample config must be a json object")
	}
	if len(m) > 0 {
		return nil, perr.Validationf("sample takes no config")
	}
	return json.RawMessage(`{}`), nil
}

func (a *API) DecodeCheckpoint(raw json.RawMessage) (exchange.Checkpoint, error) {
	return exchange.DecodeTimeCheckpoint(raw)
}

// Key is the exchange id of the i-th example of a signal type
func Key(signalType string, i int) string { return fmt.Sprintf("%s-%d", signalType, i) }

// Fetch yields every example once. A collab that already holds a checkpoint is up to date
func (a *API) Fetch(_ context.Context, req exchange.FetchRequest) (exchange.Iterator, error) {
	if req.Checkpoint != nil {
		return exchange.NewSliceIterator(), nil
	}
	updates := map[string]json.RawMessage{}
	for _, st := range req.SignalTypes {
		for i, ex := range st.Examples() {
			updates[Key(st.Name(), i)] = exchange.Record{SignalType: st.Name(), Signal: ex, Tags: []string{Tag}}.Marshal()
		}
	}
	cp := exchange.TimeCheckpoint{TS: a.now().Unix()}
	return exchange.NewSliceIterator(exchange.Batch{Updates: updates, Checkpoint: cp}), nil
}

func (a *API) Merge(old, next json.RawMessage) (json.RawMessage, error) {
	return exchange.ReplaceMerge(old, next)
}

func (a *API) Convert(types []signal.SignalType, _ exchange.Collab, key string, value json.RawMessage) (exchange.Signals, error) {
	return exchange.ConvertRecord(types, key, value)
}

var _ exchange.API = (*API)(nil)
