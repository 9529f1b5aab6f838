// Package http is the router and server layer under the hma roles.
// Matcher, curator and hasher modules mount on Router, and the process serves
// them with Server. pprof rides along behind CORE_API_PROFILER for the matcher,
// whose index rebuilds are the usual reason to look at heap profiles
package http

import (
	stdhttp "net/http"

	mw "github.com/go-chi/chi/v5/middleware"
)

// MountProfiler serves chi's pprof mux under prefix, e.g. /debug/pprof/heap
// when prefix is /debug. Nothing is mounted unless enabled
func MountProfiler(r Router, prefix string, enabled bool) {
	if !enabled {
		return
	}
	pprof := stdhttp.StripPrefix(prefix, mw.Profiler())
	for _, p := range []string{prefix, prefix + "/*"} {
		r.Handle(p, pprof)
	}
}
