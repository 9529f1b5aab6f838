package domain

import (
	"context"
	"encoding/json"
)

// ServicePort is the curator facing exchange contract
type ServicePort interface {
	List(ctx context.Context) ([]Exchange, error)
	Create(ctx context.Context, in CreateInput) (Exchange, error)
	Get(ctx context.Context, name string) (Exchange, error)
	Update(ctx context.Context, name string, in UpdateInput) (Exchange, error)
	Delete(ctx context.Context, name string) (Deleted, error)

	Status(ctx context.Context, name string) (StatusView, error)
	Data(ctx context.Context, name, fetchID string) (Data, error)

	APIs(ctx context.Context) ([]APIInfo, error)
	API(ctx context.Context, api string) (APIInfo, error)
	SetCredentials(ctx context.Context, api string, raw json.RawMessage) (APIInfo, error)
	UnsetCredentials(ctx context.Context, api string) (APIInfo, error)
}

// RunnerPort drives fetch cycles from the worker and the cli
type RunnerPort interface {
	// FetchAll runs one cycle for every enabled exchange, in name order
	FetchAll(ctx context.Context) ([]CycleResult, error)
	// FetchOne runs one cycle for the named exchange, enabled or not
	FetchOne(ctx context.Context, name string) (CycleResult, error)
	// Clear drops the checkpoint, stored records and import bank content so the next cycle starts over
	Clear(ctx context.Context, name string) error
	// Statuses returns every exchange with its fetch status
	Statuses(ctx context.Context) ([]StatusView, error)
}

// MatchPort is what the matcher reports back
type MatchPort interface {
	// MarkMatched flags exchange records whose members were returned by a lookup
	MarkMatched(ctx context.Context, dataIDs []int64) error
}
