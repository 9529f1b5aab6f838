package module

import (
	banksdom "hma/internal/services/banks/domain"
)

// Ports are the bank store ports other modules consume
type Ports struct {
	Service banksdom.ServicePort
	Reader  banksdom.ReaderPort
}

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
