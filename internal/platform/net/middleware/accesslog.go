
package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hma/internal/platform/logger"
)

// AccessLogOptions configures the zerolog access log
type AccessLogOptions struct {
	// Slow logs requests taking >= Slow at warn level, 0 disables it
	Slow time.Duration
	// Quiet paths are only logged when they fail (probes, scrapes)
	Quiet []string
}

// captureWriter records status and bytes written
type captureWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(b)
	cw.bytes += n
	return n, err
}

// Flush keeps streaming responses working behind the wrapper
func (cw *captureWriter) Flush() {
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// AccessLog logs one line per request through the request scoped logger.
// route is the chi pattern, so lookups by hash do not explode cardinality
func AccessLog(opt AccessLogOptions) func(http.Handler) http.Handler {
	quiet := make(map[string]bool, len(opt.Quiet))
	for _, p := range opt.Quiet {
		quiet[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(cw, r)

			elapsed := time.Since(start)
			if quiet[r.URL.Path] && cw.status < http.StatusInternalServerError {
				return
			}
			log := logger.C(r.Context())
			evt := log.Info()
			switch {
			case cw.status >= http.StatusInternalServerError:
				evt = log.Error()
			case opt.Slow > 0 && elapsed >= opt.Slow:
				evt = log.Warn()
			}
			evt.Int("status", cw.status).
				Dur("elapsed", elapsed).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("bytes", cw.bytes).
				Msg("request done")
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
