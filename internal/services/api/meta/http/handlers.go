// Package http serves liveness, readiness and build info under /meta
package http

import (
	"context"
	"net/http"
	"time"

	"hma/internal/core/version"
	"hma/internal/modkit/httpkit"
)

// Probe is one readiness dependency. Targets without a Ping method report "unknown"
type Probe struct {
	Name   string
	Target any
}

// Deps are the handler dependencies
type Deps struct {
	ServiceName  string
	StartedAt    time.Time
	Probes       []Probe
	SignalTypes  []string
	ExchangeAPIs []string
}

type handlers struct{ deps Deps }

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d}
	httpkit.Get(r, "/health", h.health)
	httpkit.Get(r, "/ready", h.ready)
	httpkit.Get(r, "/version", h.version)
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	OK      bool   `json:"ok"      example:"true"`
	Service string `json:"service" example:"hma-api"`
	Started string `json:"started" example:"2025-09-03T13:00:00Z"`
	Uptime  int64  `json:"uptime"  example:"300"`
}

// ProbeResult is the outcome of one readiness probe
type ProbeResult struct {
	Name   string `json:"name"            example:"pg"`
	Status string `json:"status"          example:"ok"` // ok fail skipped unknown
	Error  string `json:"error,omitempty" example:"dial tcp 127.0.0.1:5432: connect: connection refused"`
}

// ReadyResponse rolls the probes up into ok, degraded or fail
type ReadyResponse struct {
	Status string        `json:"status" example:"ok"`
	Checks []ProbeResult `json:"checks"`
}

// VersionResponse is build info plus what this process can hash and fetch
type VersionResponse struct {
	version.BuildInfo
	SignalTypes  []string `json:"signal_types"`
	ExchangeAPIs []string `json:"exchange_apis"`
}

// @Summary Liveness
// @Tags Meta
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /meta/health [get]
func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(time.Since(h.deps.StartedAt) / time.Second),
	}, nil
}

// @Summary Readiness of the backing stores
// @Tags Meta
// @Produce json
// @Success 200 {object} ReadyResponse
// @Router /meta/ready [get]
func (h *handlers) ready(r *http.Request) (any, error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	out := ReadyResponse{Status: "ok", Checks: make([]ProbeResult, 0, len(h.deps.Probes))}
	for _, p := range h.deps.Probes {
		res := probe(ctx, p)
		switch {
		case res.Status == "fail":
			out.Status = "fail"
		case res.Status == "unknown" && out.Status == "ok":
			out.Status = "degraded"
		}
		out.Checks = append(out.Checks, res)
	}
	return out, nil
}

func probe(ctx context.Context, p Probe) ProbeResult {
	res := ProbeResult{Name: p.Name}
	pinger, ok := p.Target.(interface{ Ping(context.Context) error })
	switch {
	case p.Target == nil:
		res.Status = "skipped"
	case !ok:
		res.Status = "unknown"
	default:
		if err := pinger.Ping(ctx); err != nil {
			res.Status, res.Error = "fail", err.Error()
		} else {
			res.Status = "ok"
		}
	}
	return res
}

// @Summary Build info with installed signal types and exchange APIs
// @Tags Meta
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /meta/version [get]
func (h *handlers) version(_ *http.Request) (any, error) {
	return VersionResponse{
		BuildInfo:    version.Info(h.deps.ServiceName),
		SignalTypes:  h.deps.SignalTypes,
		ExchangeAPIs: h.deps.ExchangeAPIs,
	}, nil
}
