package modkit

import (
	phttp "hma/internal/platform/net/http"
)

// Module is one role's HTTP surface: /c banks, /c exchanges, /m matcher and so on
type Module interface {
	// MountRoutes attaches routes; r is already scoped to the module prefix
	MountRoutes(r phttp.Router)
	// Ports exposes what other modules may call, registered under Name
	Ports() any
	Name() string
}
