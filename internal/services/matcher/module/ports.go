package module

import (
	xdom "hma/internal/services/exchanges/domain"
	indexdom "hma/internal/services/indexer/domain"
	"hma/internal/services/matcher/domain"
)

// Ports are the match ports other modules consume
type Ports struct {
	Service domain.ServicePort
}

// Needs are the ports the matcher takes from other modules through
// modkit.WithPorts. Store defaults to a store over deps; Matched is optional
type Needs struct {
	Store   indexdom.StorePort
	Matched xdom.MatchPort
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
