// Package domain holds the index build types shared by the indexer and the matcher
package domain

import (
	"time"

	banksdom "hma/internal/services/banks/domain"
)

// Info describes the stored index of one signal type
type Info struct {
	SignalType string              `json:"signal_type" example:"pdq"`
	Checkpoint banksdom.Checkpoint `json:"built_to"`
	UpdatedAt  time.Time           `json:"updated_at"`
	// BlobKey names the payload in the blob store; empty when it lives in the row
	BlobKey string `json:"-"`
	Size    int64  `json:"size" example:"1024"`
}

// Outcome of one build
type Outcome string

const (
	OutcomeBuilt   Outcome = "built"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// BuildResult summarizes one build
type BuildResult struct {
	SignalType string              `json:"signal_type"`
	Outcome    Outcome             `json:"outcome"`
	Reason     string              `json:"reason,omitempty"`
	Checkpoint banksdom.Checkpoint `json:"checkpoint"`
	Signals    int                 `json:"signals"`
	Bytes      int                 `json:"bytes"`
	Took       time.Duration       `json:"took"`
	Err        error               `json:"-"`
}
