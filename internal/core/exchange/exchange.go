// Package exchange defines the contract every exchange API implements and the registry that holds them
package exchange

import (
	"context"
	"encoding/json"
	"time"

	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
)

// Checkpoint is the opaque cursor an API persists between fetches
type Checkpoint interface {
	// ProgressTime is the newest point in the exchange the fetch has covered
	ProgressTime() time.Time
}

// Staler lets a checkpoint decide its own staleness instead of the retention horizon
type Staler interface {
	IsStale(now time.Time, retention time.Duration) bool
}

// IsStale reports whether cp has aged out. A nil checkpoint is never stale
func IsStale(cp Checkpoint, now time.Time, retention time.Duration) bool {
	if cp == nil || retention <= 0 {
		return false
	}
	if s, ok := cp.(Staler); ok {
		return s.IsStale(now, retention)
	}
	return cp.ProgressTime().Before(now.Add(-retention))
}

// Batch is one page of a fetch: updates keyed by exchange id, a nil value meaning delete
type Batch struct {
	Updates    map[string]json.RawMessage
	Checkpoint Checkpoint
}

// Iterator pulls batches. Next returns io.EOF once the exchange is exhausted
type Iterator interface {
	Next(ctx context.Context) (Batch, error)
	Close() error
}

// Collab is the slice of an exchange config an API sees
type Collab struct {
	Name        string
	Config      json.RawMessage
	Credentials json.RawMessage
}

// FetchRequest starts a fetch
type FetchRequest struct {
	Collab      Collab
	SignalTypes []signal.SignalType
	// Checkpoint is nil on the first fetch or after a clear
	Checkpoint Checkpoint
}

// Meta is carried from an exchange record onto the bank member
type Meta struct {
	Tags []string `json:"tags,omitempty"`
}

// Signals maps signal type name to canonical signal to metadata
type Signals map[string]map[string]Meta

// API is one exchange type
type API interface {
	Name() string
	// ValidateConfig checks a typed config and returns its canonical JSON
	ValidateConfig(raw json.RawMessage) (json.RawMessage, error)
	DecodeCheckpoint(raw json.RawMessage) (Checkpoint, error)
	Fetch(ctx context.Context, req FetchRequest) (Iterator, error)
	// Merge folds a new value onto the stored one. old is nil for unseen keys; a nil result deletes
	Merge(old, next json.RawMessage) (json.RawMessage, error)
	// Convert extracts signals of the given types from one record
	Convert(types []signal.SignalType, collab Collab, key string, value json.RawMessage) (Signals, error)
}

// Authenticated APIs accept default credentials stored per API
type Authenticated interface {
	ValidateCredentials(raw json.RawMessage) error
}

// ReplaceMerge is the default Merge: the newest value wins
func ReplaceMerge(_, next json.RawMessage) (json.RawMessage, error) {
	return next, nil
}

// ErrorKind classifies fetch failures for status bookkeeping
type ErrorKind int

const (
	// Transient failures are retried next cycle
	Transient ErrorKind = iota
	// Permanent failures stop retries until an operator intervenes
	Permanent
)

// Classify maps an error to a retry kind. Auth, forbidden and shape errors are permanent
func Classify(err error) ErrorKind {
	switch perr.CodeOf(err) {
	case perr.ErrorCodeUnauthorized, perr.ErrorCodeForbidden, perr.ErrorCodeInvalidArgument,
		perr.ErrorCodeValidation, perr.ErrorCodeJSON:
		return Permanent
	default:
		return Transient
	}
}

// ErrMultipleContentTypes is returned for a record whose signals span content types
func ErrMultipleContentTypes(key string) error {
	return perr.InvalidArgf("record %q has signals of more than one content type", key)
}
