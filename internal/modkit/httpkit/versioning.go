package httpkit

import (
	"net/http"
	"sort"
)

// Prefixed is a module that mounts its routes under Prefix
type Prefixed interface {
	Prefix() string
	MountRoutes(r Router)
}

// MountPrefixed opens one subrouter per distinct prefix, applies mw to each,
// then lets every module sharing that prefix register on it. Modules that
// share a prefix (the bank store and the exchanges both live under /c) would
// otherwise mount chi twice on the same pattern
//
// example:
//
//	httpkit.MountPrefixed(r, httpkit.CommonStack(), banks, exchanges, matcher)
func MountPrefixed(r Router, mw []func(http.Handler) http.Handler, mods ...Prefixed) {
	byPrefix := map[string][]Prefixed{}
	for _, m := range mods {
		byPrefix[m.Prefix()] = append(byPrefix[m.Prefix()], m)
	}
	prefixes := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, p := range prefixes {
		group := byPrefix[p]
		r.Route(p, func(sub Router) {
			if len(mw) > 0 {
				sub.Use(mw...)
			}
			for _, m := range group {
				m.MountRoutes(sub)
			}
		})
	}
}
