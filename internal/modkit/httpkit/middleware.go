package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"hma/internal/platform/net/middleware"
)

// CommonStack returns the middleware every mounted prefix shares.
// origins restricts CORS, empty allows any
func CommonStack(origins ...string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		// tracing / correlation
		middleware.RequestID(),
		middleware.RequestContext,
		middleware.RealIP(),

		// safety
		middleware.RecoverJSON,

		// cache / freshness
		middleware.NoCache(),

		// observability; index status is polled by load balancers
		middleware.AccessLog(middleware.AccessLogOptions{
			Slow:  2 * time.Second,
			Quiet: []string{"/health", "/m/index/status"},
		}),

		// cross-origin
		middleware.CORS(middleware.CORSOptions{AllowedOrigins: origins}),
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/health"),
		middleware.RedirectSlashes(),
		middleware.StripSlashes(),
		middleware.Timeout(30 * time.Second),
	}
}
