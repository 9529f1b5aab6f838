// Package http provides http transport for the match service
package http

import (
	stdhttp "net/http"

	"hma/internal/core/hashing"
	"hma/internal/modkit/httpkit"
	perr "hma/internal/platform/errors"
	"hma/internal/services/matcher/domain"
)

// Register mounts the match endpoints. maxUpload caps multipart lookups
func Register(r httpkit.Router, s domain.ServicePort, maxUpload int64) {
	h := &handlers{svc: s, maxUpload: maxUpload}

	httpkit.Get(r, "/raw_lookup", h.rawLookup)
	httpkit.Get(r, "/lookup", h.lookup)
	httpkit.Post(r, "/lookup", h.lookupUpload)
	httpkit.Get(r, "/lookup_top_k", h.lookupTopK)
	httpkit.Get(r, "/lookup_threshold", h.lookupThreshold)
	httpkit.PostJSON[domain.CompareInput](r, "/compare", h.compare)
	httpkit.Get(r, "/index/status", h.indexStatus)
}

// RegisterStatus mounts the liveness probe that load balancers poll
func RegisterStatus(r httpkit.Router, s domain.ServicePort) {
	h := httpkit.Handle(func(req *stdhttp.Request) httpkit.Response {
		if err := s.Ready(req.Context()); err != nil {
			return httpkit.PlainText(stdhttp.StatusServiceUnavailable, "INDEX-STALE")
		}
		return httpkit.PlainText(stdhttp.StatusOK, "I-AM-ALIVE")
	})
	r.Get("/status", h)
	r.Method(stdhttp.MethodHead, "/status", h)
}

type handlers struct {
	svc       domain.ServicePort
	maxUpload int64
}

// RawLookupResponse lists unfiltered hits. Items are member ids, or objects
// carrying the distance when include_distance is set
type RawLookupResponse struct {
	Matches any `json:"matches"`
}

func query(r *stdhttp.Request) (domain.Query, error) {
	q := domain.Query{
		SignalType: httpkit.Query(r, "signal_type"),
		Signal:     httpkit.Query(r, "signal"),
		Seed:       httpkit.Query(r, "seed"),
	}
	var err error
	if q.IncludeDisputed, err = httpkit.QueryBool(r, "include_disputed", false); err != nil {
		return q, err
	}
	if q.BypassRatio, err = httpkit.QueryBool(r, "bypass_enabled_ratio", false); err != nil {
		return q, err
	}
	if q.Signal == "" {
		return q, perr.WithField(perr.Validationf("signal is required"), "signal")
	}
	return q, nil
}

// @Summary Unfiltered index lookup
// @Tags Match
// @Produce json
// @Param signal_type query string true "Signal type"
// @Param signal query string true "Signal"
// @Param include_distance query bool false "Return distances"
// @Success 200 {object} RawLookupResponse "ok"
// @Failure 400 {object} net.ErrorBody "invalid signal"
// @Router /m/raw_lookup [get]
func (h *handlers) rawLookup(r *stdhttp.Request) (any, error) {
	q, err := query(r)
	if err != nil {
		return nil, err
	}
	withDistance, err := httpkit.QueryBool(r, "include_distance", false)
	if err != nil {
		return nil, err
	}
	ms, err := h.svc.RawLookup(r.Context(), q.SignalType, q.Signal, withDistance)
	if err != nil {
		return nil, err
	}
	if withDistance {
		return RawLookupResponse{Matches: ms}, nil
	}
	ids := make([]int64, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.MemberID)
	}
	return RawLookupResponse{Matches: ids}, nil
}

// @Summary Look up a signal, or media by url, grouped by bank
// @Description With url and content_type the media is hashed first and the answer is keyed by signal type
// @Tags Match
// @Produce json
// @Param signal_type query string false "Signal type"
// @Param signal query string false "Signal"
// @Param url query string false "Media url"
// @Param content_type query string false "Content type of the media"
// @Param include_disputed query bool false "Keep members marked as false positives"
// @Param bypass_enabled_ratio query bool false "Ignore partial bank ratios"
// @Param seed query string false "Decides partial bank ratios instead of the signal"
// @Success 200 {object} domain.Lookup "ok"
// @Failure 503 {object} net.ErrorBody "index not loaded"
// @Router /m/lookup [get]
func (h *handlers) lookup(r *stdhttp.Request) (any, error) {
	if url := httpkit.Query(r, "url"); url != "" {
		cq, err := contentQuery(r)
		if err != nil {
			return nil, err
		}
		cq.URL = url
		return h.svc.LookupContent(r.Context(), cq)
	}
	q, err := query(r)
	if err != nil {
		return nil, err
	}
	return h.svc.Lookup(r.Context(), q)
}

// @Summary Look up an uploaded file
// @Tags Match
// @Accept mpfd
// @Produce json
// @Param file formData file true "Media"
// @Param content_type formData string false "Content type, guessed from the file name when omitted"
// @Success 200 {object} domain.ContentLookup "ok"
// @Router /m/lookup [post]
func (h *handlers) lookupUpload(r *stdhttp.Request) (any, error) {
	if !hashing.IsMultipart(r) {
		return nil, perr.Validationf("expected a multipart upload with a file field")
	}
	data, name, err := hashing.ReadUpload(r, "file", h.maxUpload)
	if err != nil {
		return nil, err
	}
	cq, err := contentQuery(r)
	if err != nil {
		return nil, err
	}
	if ct := r.FormValue("content_type"); ct != "" {
		cq.ContentType = ct
	}
	if cq.ContentType == "" {
		cq.ContentType = hashing.GuessContentType(name)
	}
	cq.Data = data
	return h.svc.LookupContent(r.Context(), cq)
}

func contentQuery(r *stdhttp.Request) (domain.ContentQuery, error) {
	cq := domain.ContentQuery{ContentType: httpkit.Query(r, "content_type"), Seed: httpkit.Query(r, "seed")}
	var err error
	if cq.IncludeDisputed, err = httpkit.QueryBool(r, "include_disputed", false); err != nil {
		return cq, err
	}
	if cq.BypassRatio, err = httpkit.QueryBool(r, "bypass_enabled_ratio", false); err != nil {
		return cq, err
	}
	if cq.ContentType == "" {
		cq.ContentType = hashing.GuessContentType(httpkit.Query(r, "url"))
	}
	return cq, nil
}

// @Summary Nearest k matches
// @Tags Match
// @Produce json
// @Param signal_type query string true "Signal type"
// @Param signal query string true "Signal"
// @Param k query int true "Matches to return"
// @Success 200 {object} domain.Lookup "ok"
// @Failure 501 {object} net.ErrorBody "index has no top k query"
// @Router /m/lookup_top_k [get]
func (h *handlers) lookupTopK(r *stdhttp.Request) (any, error) {
	q, err := query(r)
	if err != nil {
		return nil, err
	}
	k, err := httpkit.QueryInt(r, "k", 0)
	if err != nil {
		return nil, err
	}
	return h.svc.LookupTopK(r.Context(), q, k)
}

// @Summary Matches within a distance
// @Tags Match
// @Produce json
// @Param signal_type query string true "Signal type"
// @Param signal query string true "Signal"
// @Param threshold query number true "Largest distance"
// @Success 200 {object} domain.Lookup "ok"
// @Failure 501 {object} net.ErrorBody "index has no threshold query"
// @Router /m/lookup_threshold [get]
func (h *handlers) lookupThreshold(r *stdhttp.Request) (any, error) {
	q, err := query(r)
	if err != nil {
		return nil, err
	}
	if httpkit.Query(r, "threshold") == "" {
		return nil, perr.WithField(perr.Validationf("threshold is required"), "threshold")
	}
	t, err := httpkit.QueryFloat(r, "threshold", 0)
	if err != nil {
		return nil, err
	}
	return h.svc.LookupThreshold(r.Context(), q, t)
}

// @Summary Compare signal pairs
// @Tags Match
// @Accept json
// @Produce json
// @Param payload body object true "signal type to a pair of signals"
// @Success 200 {object} object "signal type to match and distance"
// @Failure 400 {object} net.ErrorBody "unknown type or malformed pair"
// @Router /m/compare [post]
func (h *handlers) compare(r *stdhttp.Request, in domain.CompareInput) (any, error) {
	return h.svc.Compare(r.Context(), in.Pairs)
}

// @Summary Stored and served index state
// @Tags Match
// @Produce json
// @Param signal_type query string false "Only this signal type"
// @Success 200 {object} object "signal type to status"
// @Router /m/index/status [get]
func (h *handlers) indexStatus(r *stdhttp.Request) (any, error) {
	return h.svc.IndexStatus(r.Context(), httpkit.Query(r, "signal_type"))
}
