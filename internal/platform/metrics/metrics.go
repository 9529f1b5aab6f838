// Package metrics registers process counters and exposes the /metrics handler
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchCycles counts fetch cycles by collab and outcome (ok, failed, skipped, stale)
	FetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hma_fetch_cycles_total",
		Help: "Exchange fetch cycles by outcome",
	}, []string{"collab", "outcome"})

	// FetchUpdates counts applied updates by collab and op (upsert, delete, skipped, failed)
	FetchUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hma_fetch_updates_total",
		Help: "Exchange updates applied to banks",
	}, []string{"collab", "op"})

	// IndexBuilds counts index builds by signal type and outcome (built, skipped, failed)
	IndexBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hma_index_builds_total",
		Help: "Signal index builds by outcome",
	}, []string{"signal_type", "outcome"})

	// IndexSignals is the signal count of the last built index
	IndexSignals = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hma_index_signals",
		Help: "Signals in the most recent index per type",
	}, []string{"signal_type"})

	// Lookups counts match queries by signal type and outcome (match, miss, error, stale)
	Lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hma_lookup_total",
		Help: "Match lookups by outcome",
	}, []string{"signal_type", "outcome"})

	// LookupSeconds is the end to end lookup latency
	LookupSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hma_lookup_seconds",
		Help:    "Lookup latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hma_http_requests_total",
		Help: "HTTP requests by route pattern and status",
	}, []string{"route", "status"})
)

// Handler serves the default registry
func Handler() http.Handler { return promhttp.Handler() }

// ObserveLookup records one lookup outcome and its latency
func ObserveLookup(signalType, outcome string, started time.Time) {
	Lookups.WithLabelValues(signalType, outcome).Inc()
	LookupSeconds.Observe(time.Since(started).Seconds())
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// HTTP counts requests by chi route pattern so path params do not explode cardinality
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}
