// Package signal defines signal types, content types, and the process-wide registry
package signal

import (
	"context"

	perr "hma/internal/platform/errors"
)

// Content type names
const (
	ContentPhoto = "photo"
	ContentVideo = "video"
	ContentText  = "text"
	ContentURL   = "url"
)

// ContentType categorizes media
type ContentType struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Comparison is the outcome of comparing two signals
// Distance is integral for hamming types and 0 for exact matches
type Comparison struct {
	Match    bool    `json:"match"`
	Distance float64 `json:"distance"`
}

// Match is one index hit: the payload id plus its distance from the query
type Match struct {
	ID       int64   `json:"id"`
	Distance float64 `json:"distance"`
}

// Index maps signal strings to integer payloads
type Index interface {
	Add(signal string, id int64) error
	Query(signal string) ([]Match, error)
	Len() int
	MarshalBinary() ([]byte, error)
}

// TopKIndex is implemented by indices that can return the k nearest entries
type TopKIndex interface {
	QueryTopK(signal string, k int) ([]Match, error)
}

// ThresholdIndex is implemented by indices that accept a per-query distance bound
type ThresholdIndex interface {
	QueryThreshold(signal string, threshold float64) ([]Match, error)
}

// SignalType is one hash family
type SignalType interface {
	Name() string
	// ContentTypes lists the content type names this signal applies to
	ContentTypes() []string
	// Validate returns the canonical form of s
	Validate(s string) (string, error)
	// Compare reports whether a and b match. threshold <= 0 uses the type default
	Compare(a, b string, threshold float64) (Comparison, error)
	NewIndex() Index
	LoadIndex(data []byte) (Index, error)
	Examples() []string
}

// Thresholded types declare a confident-match distance bound used by the matcher
type Thresholded interface {
	ConfidentThreshold() float64
}

// RandomGenerator types can produce random valid signals for seeding and tests
type RandomGenerator interface {
	RandomSignal() string
}

// BytesHasher types can hash raw content bytes
// an empty result with nil error means the content is too low quality to hash
type BytesHasher interface {
	HashBytes(ctx context.Context, data []byte) (string, error)
}

// Invalid builds the validation error every signal type returns on bad input
func Invalid(signalType, format string, a ...any) error {
	return perr.WithField(perr.Validationf("invalid "+signalType+" signal: "+format, a...), "signal")
}

// NotSupported builds the error optional index APIs return
func NotSupported(signalType, op string) error {
	return perr.NotSupportedf("%s does not support %s", signalType, op)
}
