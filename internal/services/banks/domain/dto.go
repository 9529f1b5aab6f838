// Package domain holds the bank store types and the ports other modules consume
package domain

import (
	"math"
	"time"
)

// DisabledForever marks a member disabled but retained. Inputs spell it -1
const DisabledForever int64 = math.MaxInt64

// Tags the writeback filter understands
const (
	TagFalsePositive = "opinion:false_positive"
	TagTruePositive  = "opinion:true_positive"
)

// Bank is a named collection of content
type Bank struct {
	ID                   int64     `json:"id" example:"1"`
	Name                 string    `json:"name" example:"MY_TEST_BANK_01"`
	MatchingEnabledRatio float64   `json:"matching_enabled_ratio" example:"1"`
	ImportFromExchangeID *int64    `json:"import_from_exchange_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Imported reports whether an exchange owns this bank
func (b Bank) Imported() bool { return b.ImportFromExchangeID != nil }

// CreateBankInput creates a bank. enabled=false is shorthand for a zero ratio
type CreateBankInput struct {
	Name                 string   `json:"name" validate:"required,bankname" example:"MY_TEST_BANK_01"`
	MatchingEnabledRatio *float64 `json:"matching_enabled_ratio,omitempty" example:"1"`
	Enabled              *bool    `json:"enabled,omitempty" example:"true"`
}

// UpdateBankInput changes a bank. Omitted fields are left alone
type UpdateBankInput struct {
	Name                 *string  `json:"name,omitempty" validate:"omitempty,bankname" example:"RENAMED_BANK"`
	MatchingEnabledRatio *float64 `json:"matching_enabled_ratio,omitempty" example:"0.5"`
	Enabled              *bool    `json:"enabled,omitempty"`
}

// SignalValue is one canonical signal of a member
type SignalValue struct {
	Type  string `json:"signal_type"`
	Value string `json:"signal"`
}

// Member is one unit of content inside a bank
type Member struct {
	ID                 int64               `json:"id" example:"1"`
	BankID             int64               `json:"bank_id"`
	BankName           string              `json:"bank_name" example:"MY_TEST_BANK_01"`
	ContentType        string              `json:"content_type" example:"photo"`
	ImportKey          string              `json:"import_key,omitempty"`
	ImportedFromID     *int64              `json:"imported_from_id,omitempty"`
	DisableUntilTS     int64               `json:"disable_until_ts"`
	OriginalContentURI string              `json:"original_content_uri,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	Tags               []string            `json:"tags"`
	Signals            map[string][]string `json:"signals"`
	Removed            bool                `json:"removed,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`

	// BankRatio is the owning bank's matching ratio, carried for the match filters
	BankRatio float64 `json:"-"`
}

// Disabled reports whether the member is switched off at now
func (m Member) Disabled(now time.Time) bool {
	return m.DisableUntilTS > now.Unix()
}

// HasTag reports whether the member carries tag
func (m Member) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddContentInput adds a member from already hashed signals
type AddContentInput struct {
	ContentType        string            `json:"content_type" validate:"required" example:"photo"`
	Signals            map[string]string `json:"signals" validate:"required,min=1"`
	OriginalContentURI string            `json:"original_content_uri,omitempty"`
	Notes              string            `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Tags               []string          `json:"tags,omitempty" validate:"omitempty,max=64,dive,min=1,max=128"`
	ImportKey          string            `json:"import_key,omitempty" validate:"omitempty,max=512"`
}

// AddContentResult is returned by add_content
type AddContentResult struct {
	ID      int64             `json:"id" example:"1"`
	Signals map[string]string `json:"signals"`
	// Existing is set when an import key matched a member already in the bank
	Existing bool `json:"existing,omitempty"`
}

// UpdateMemberInput edits a member. disable_until_ts of -1 disables forever
type UpdateMemberInput struct {
	DisableUntilTS *int64    `json:"disable_until_ts,omitempty" example:"0"`
	Notes          *string   `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Tags           *[]string `json:"tags,omitempty" validate:"omitempty,max=64,dive,min=1,max=128"`
}

// OpinionInput records the operator's view of a member
type OpinionInput struct {
	FalsePositive bool `json:"false_positive" example:"true"`
}

// MemberPage is one page of a bank listing
type MemberPage struct {
	Items []Member
	Total int
}

// Deleted answers idempotent deletes
type Deleted struct {
	Deleted bool `json:"deleted"`
}

// SignalTypeInfo is an installed signal type with its override
type SignalTypeInfo struct {
	Name         string   `json:"name" example:"pdq"`
	ContentTypes []string `json:"content_types"`
	EnabledRatio float64  `json:"enabled_ratio" example:"1"`
}

// Enabled reports whether the type takes part in builds and lookups
func (s SignalTypeInfo) Enabled() bool { return s.EnabledRatio > 0 }

// SignalTypeRatioInput sets a signal type override
type SignalTypeRatioInput struct {
	EnabledRatio float64 `json:"enabled_ratio" validate:"min=0,max=1" example:"1"`
}

// SignalRow is one row of the indexer's bulk read
type SignalRow struct {
	Value     string
	MemberID  int64
	CreatedAt time.Time
}

// Checkpoint describes the snapshot an index was, or would be, built from.
// TS is unix microseconds of the newest signal
type Checkpoint struct {
	LastID int64 `json:"last_id"`
	LastTS int64 `json:"last_ts"`
	Count  int64 `json:"count"`
}

// Time returns TS as a time
func (c Checkpoint) Time() time.Time { return time.UnixMicro(c.LastTS).UTC() }

// Cursor is the position of the indexer's stream
type Cursor struct {
	CreatedAt time.Time
	MemberID  int64
	Value     string
}

// After returns the cursor positioned on r
func After(r SignalRow) Cursor {
	return Cursor{CreatedAt: r.CreatedAt, MemberID: r.MemberID, Value: r.Value}
}
