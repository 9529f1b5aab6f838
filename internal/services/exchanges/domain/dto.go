// Package domain holds the exchange fetch engine types and ports
package domain

import (
	"encoding/json"
	"time"
)

// Exchange is one configured collaboration
type Exchange struct {
	ID              int64           `json:"id" example:"1"`
	Name            string          `json:"name" example:"SAMPLE_FEED"`
	API             string          `json:"api" example:"sample"`
	FetchingEnabled bool            `json:"enabled" example:"true"`
	RetainAPIData   bool            `json:"retain_api_data" example:"false"`
	RetainUnknown   bool            `json:"retain_data_with_unknown_signal_types" example:"false"`
	TypedConfig     json.RawMessage `json:"typed_config" swaggertype:"object"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CreateInput creates an exchange and its import bank
type CreateInput struct {
	Name          string          `json:"name" validate:"required,bankname" example:"SAMPLE_FEED"`
	API           string          `json:"api" validate:"required" example:"sample"`
	Enabled       *bool           `json:"enabled,omitempty" example:"true"`
	RetainAPIData bool            `json:"retain_api_data,omitempty"`
	RetainUnknown bool            `json:"retain_data_with_unknown_signal_types,omitempty"`
	TypedConfig   json.RawMessage `json:"typed_config,omitempty" swaggertype:"object"`
}

// UpdateInput toggles exchange flags. Enabling fetching clears a permanent failure
type UpdateInput struct {
	FetchingEnabled *bool `json:"enabled,omitempty"`
	RetainAPIData   *bool `json:"retain_api_data,omitempty"`
	RetainUnknown   *bool `json:"retain_data_with_unknown_signal_types,omitempty"`
}

// FetchStatus is the persisted progress of one exchange
type FetchStatus struct {
	CollabID         int64           `json:"-"`
	RunningSince     *int64          `json:"running_fetch_start_ts,omitempty"`
	LeaseOwner       string          `json:"-"`
	LastSucceeded    *bool           `json:"last_fetch_succeeded,omitempty"`
	LastCompleteTS   *int64          `json:"last_fetch_complete_ts,omitempty"`
	UpToDate         bool            `json:"up_to_date"`
	CheckpointTS     *int64          `json:"checkpoint_ts,omitempty"`
	Checkpoint       json.RawMessage `json:"checkpoint,omitempty" swaggertype:"object"`
	LastError        string          `json:"last_error,omitempty"`
	PermanentFailure bool            `json:"permanent_failure"`
}

// Running reports whether a lease is held
func (s FetchStatus) Running() bool { return s.RunningSince != nil }

// Failed reports whether the last finished fetch failed
func (s FetchStatus) Failed() bool { return s.LastSucceeded != nil && !*s.LastSucceeded }

// StatusView is the status endpoint payload
type StatusView struct {
	Name         string `json:"name" example:"SAMPLE_FEED"`
	API          string `json:"api" example:"sample"`
	Enabled      bool   `json:"enabled"`
	FetchedItems int64  `json:"fetched_items" example:"42"`
	FetchStatus
}

// Data is one stored exchange record
type Data struct {
	ID                 int64           `json:"id"`
	CollabID           int64           `json:"collab_id"`
	FetchID            string          `json:"fetch_id"`
	Payload            json.RawMessage `json:"fetched_payload,omitempty" swaggertype:"object"`
	Summary            json.RawMessage `json:"fetched_metadata_summary" swaggertype:"object"`
	Matched            bool            `json:"matched"`
	VerificationResult *bool           `json:"verification_result,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Summary is stored next to each record so curators can see what it produced
type Summary struct {
	Signals map[string][]string `json:"signals"`
	Tags    []string            `json:"tags,omitempty"`
}

// APIInfo describes an installed exchange api
type APIInfo struct {
	Name         string `json:"name" example:"json_feed"`
	SupportsAuth bool   `json:"supports_auth" example:"true"`
	HasSetAuth   bool   `json:"has_set_auth" example:"false"`
}

// CredentialsInput sets the default credentials of an api
type CredentialsInput struct {
	CredentialJSON json.RawMessage `json:"credential_json" validate:"required" swaggertype:"object"`
}

// Deleted reports whether a delete removed anything
type Deleted struct {
	Deleted bool `json:"deleted"`
}

// Outcome labels a fetch cycle
type Outcome string

const (
	// OutcomeOK means the cycle finished and checkpointed
	OutcomeOK Outcome = "ok"
	// OutcomeFailed means the cycle recorded a failure
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the cycle never fetched: disabled, leased elsewhere or permanently failed
	OutcomeSkipped Outcome = "skipped"
)

// CycleResult summarizes one fetch cycle
type CycleResult struct {
	Collab   string        `json:"collab"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Batches  int           `json:"batches"`
	Upserts  int           `json:"upserts"`
	Deletes  int           `json:"deletes"`
	Skipped  int           `json:"skipped"`
	UpToDate bool          `json:"up_to_date"`
	Stale    bool          `json:"stale_refetch,omitempty"`
	Took     time.Duration `json:"took"`
	Err      error         `json:"-"`
}
