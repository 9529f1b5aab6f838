// Package domain holds the match service types
package domain

import (
	"encoding/json"
	"time"

	"hma/internal/core/signal"
	banksdom "hma/internal/services/banks/domain"
)

// RawMatch is one unfiltered index hit
type RawMatch struct {
	MemberID int64    `json:"bank_content_id" example:"1"`
	Distance *float64 `json:"distance,omitempty" example:"0"`
}

// Match is one filtered hit within a bank
type Match struct {
	MemberID int64    `json:"bank_content_id" example:"1"`
	Distance float64  `json:"distance" example:"0"`
	Tags     []string `json:"tags,omitempty"`
}

// Lookup maps bank name to its matches ordered by ascending distance.
// Banks with no surviving match are absent
type Lookup map[string][]Match

// Query is one lookup request
type Query struct {
	SignalType string
	Signal     string
	// IncludeDisputed keeps members tagged as false positives
	IncludeDisputed bool
	// BypassRatio ignores bank ratios strictly between 0 and 1
	BypassRatio bool
	// Seed, when set, replaces the signal as the key bank ratios are decided on
	Seed string
}

// ContentQuery hashes media before looking it up
type ContentQuery struct {
	ContentType     string
	URL             string
	Data            []byte
	IncludeDisputed bool
	BypassRatio     bool
	Seed            string
}

// ContentLookup is the per signal type answer for a piece of media
type ContentLookup map[string]Lookup

// IndexStatus describes the stored and the served index of one signal type
type IndexStatus struct {
	Present bool                 `json:"present"`
	BuiltTo *banksdom.Checkpoint `json:"built_to,omitempty"`
	Size    int64                `json:"size"`
	// Loaded reports whether this process serves the stored build
	Loaded    bool       `json:"loaded"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Comparison is the outcome for one compared pair
type Comparison = signal.Comparison

// Event is one lookup as recorded by the audit sink
type Event struct {
	At         time.Time
	SignalType string
	Matches    int
	Banks      []string
}

// CompareInput maps signal type to the pair of signals to compare
type CompareInput struct {
	Pairs map[string][]string
}

// UnmarshalJSON reads the bare {"pdq": [a, b]} object into Pairs
func (c *CompareInput) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &c.Pairs)
}
