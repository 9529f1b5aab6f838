package module

import (
	"hma/internal/services/exchanges/domain"
)

// Ports are the exchange ports other modules and processes consume
type Ports struct {
	Service domain.ServicePort
	Runner  domain.RunnerPort
	Match   domain.MatchPort
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
