package middleware

import (
	"net/http"

	pnet "hma/internal/platform/net"
)

// RequestContext copies the chi request id onto the logger context
// mount after RequestID so every log line carries it
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := pnet.RequestID(r.Context())
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(pnet.WithRequest(r.Context(), id)))
	})
}
