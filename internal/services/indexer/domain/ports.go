package domain

import (
	"context"
)

// BuilderPort runs index builds from the worker and the cli
type BuilderPort interface {
	// BuildAll builds every enabled signal type whose index is dirty
	BuildAll(ctx context.Context) ([]BuildResult, error)
	// Build builds one signal type, dirty or not when force is set
	Build(ctx context.Context, signalType string, force bool) (BuildResult, error)
}

// StorePort is how the matcher reads built indices
type StorePort interface {
	// Infos lists every stored index
	Infos(ctx context.Context) ([]Info, error)
	// Info returns the stored index of signalType; ok is false before its first build
	Info(ctx context.Context, signalType string) (info Info, ok bool, err error)
	// Load returns the serialized index with the info it was built at
	Load(ctx context.Context, signalType string) (Info, []byte, error)
}
