// Package module lets one module reach another's ports without importing its
// internals. It is a sibling of modkit so that a module's ports package can
// import it freely
package module

import (
	phttp "hma/internal/platform/net/http"
)

// Module is the part of modkit.Module needed to read ports
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
