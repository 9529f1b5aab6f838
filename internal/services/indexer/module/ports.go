package module

import (
	"hma/internal/services/indexer/domain"
)

// Ports are the indexer ports the worker, the cli and the matcher consume
type Ports struct {
	Builder domain.BuilderPort
	Store   domain.StorePort
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
