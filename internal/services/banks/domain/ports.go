package domain

import (
	"context"
	"time"
)

// ServicePort is the curator facing bank contract
type ServicePort interface {
	CreateBank(ctx context.Context, in CreateBankInput) (Bank, error)
	GetBank(ctx context.Context, name string) (Bank, error)
	ListBanks(ctx context.Context) ([]Bank, error)
	UpdateBank(ctx context.Context, name string, in UpdateBankInput) (Bank, error)
	DeleteBank(ctx context.Context, name string) (Deleted, error)

	AddContent(ctx context.Context, bank string, in AddContentInput) (AddContentResult, error)
	GetMember(ctx context.Context, bank string, id int64) (Member, error)
	MemberByImportKey(ctx context.Context, bank, key string) (Member, error)
	ListMembers(ctx context.Context, bank string, page, size int) (MemberPage, error)
	UpdateMember(ctx context.Context, bank string, id int64, in UpdateMemberInput) (Member, error)
	RemoveContent(ctx context.Context, bank string, id int64) (Deleted, error)
	SetOpinion(ctx context.Context, bank string, id int64, in OpinionInput) (Member, error)

	SignalTypes(ctx context.Context) ([]SignalTypeInfo, error)
	SetSignalTypeRatio(ctx context.Context, name string, in SignalTypeRatioInput) (SignalTypeInfo, error)
	ContentTypes(ctx context.Context) ([]ContentTypeInfo, error)
}

// ReaderPort is what the indexer and the matcher read from the bank store
type ReaderPort interface {
	// Members loads members by id, removed ones included, with their bank ratio
	Members(ctx context.Context, ids []int64) ([]Member, error)
	// IterSignals returns up to limit signals of signalType after cur and no newer than upTo,
	// ordered by (created_at, member_id, value)
	IterSignals(ctx context.Context, signalType string, cur Cursor, upTo time.Time, limit int) ([]SignalRow, error)
	// BuildTarget describes the live signals of signalType
	BuildTarget(ctx context.Context, signalType string) (Checkpoint, error)
	// Reap hard deletes removed members every stored index has moved past
	Reap(ctx context.Context) (int64, error)
	// SignalTypeRatios returns the stored overrides; absent types are fully enabled
	SignalTypeRatios(ctx context.Context) (map[string]float64, error)
}

// ContentTypeInfo is an installed content type
type ContentTypeInfo struct {
	Name    string `json:"name" example:"photo"`
	Enabled bool   `json:"enabled" example:"true"`
}
