package domain

import (
	"context"
)

// ServicePort is the match api
type ServicePort interface {
	// RawLookup queries the index without resolving or filtering members
	RawLookup(ctx context.Context, signalType, sig string, withDistance bool) ([]RawMatch, error)
	Lookup(ctx context.Context, q Query) (Lookup, error)
	LookupTopK(ctx context.Context, q Query, k int) (Lookup, error)
	LookupThreshold(ctx context.Context, q Query, threshold float64) (Lookup, error)
	// LookupContent hashes media by every enabled signal type of its content type and looks each up
	LookupContent(ctx context.Context, q ContentQuery) (ContentLookup, error)
	Compare(ctx context.Context, pairs map[string][]string) (map[string]Comparison, error)
	IndexStatus(ctx context.Context, signalType string) (map[string]IndexStatus, error)
	// Ready fails while some served index is older than the cache allows
	Ready(ctx context.Context) error
}

// AuditPort records lookups; implementations must not block the request
type AuditPort interface {
	Record(e Event)
}
