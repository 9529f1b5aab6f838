// Package http provides http transport for the bank store
package http

import (
	"context"
	stdhttp "net/http"
	"sync"

	"hma/internal/core/hashing"
	"hma/internal/modkit/httpkit"
	perr "hma/internal/platform/errors"
	"hma/internal/services/banks/domain"
	svc "hma/internal/services/banks/service"
)

// ContentHasher hashes media for add content by url or upload
type ContentHasher interface {
	HashURL(ctx context.Context, contentType, rawURL string, only ...string) (map[string]string, error)
	HashBytes(ctx context.Context, contentType string, data []byte, only ...string) (map[string]string, error)
	MaxBytes() int64
}

var registerRules sync.Once

// Register mounts bank endpoints on the given router. h may be nil, which leaves
// only JSON signal bodies on add content
func Register(r httpkit.Router, s svc.Service, h ContentHasher) {
	registerRules.Do(func() {
		if err := httpkit.RegisterStringRule("bankname", domain.ValidName); err != nil {
			panic(err)
		}
	})
	hs := &handlers{svc: s, hasher: h}

	httpkit.Get(r, "/banks", hs.listBanks)
	httpkit.PostJSON[domain.CreateBankInput](r, "/banks", hs.createBank)
	httpkit.Get(r, "/bank/{name}", hs.getBank)
	httpkit.PutJSON[domain.UpdateBankInput](r, "/bank/{name}", hs.updateBank)
	httpkit.Delete(r, "/bank/{name}", hs.deleteBank)

	httpkit.Post(r, "/bank/{name}/content", hs.addContent)
	httpkit.Get(r, "/bank/{name}/content", hs.listContent)
	httpkit.Get(r, "/bank/{name}/content/{id}", hs.getContent)
	httpkit.PutJSON[domain.UpdateMemberInput](r, "/bank/{name}/content/{id}", hs.updateContent)
	httpkit.Delete(r, "/bank/{name}/content/{id}", hs.removeContent)
	httpkit.PutJSON[domain.OpinionInput](r, "/bank/{name}/content/{id}/opinion", hs.opinion)

	httpkit.Get(r, "/signal_types", hs.signalTypes)
	httpkit.PutJSON[domain.SignalTypeRatioInput](r, "/signal_type/{name}", hs.setSignalType)
	httpkit.Get(r, "/content_types", hs.contentTypes)
}

type handlers struct {
	svc    svc.Service
	hasher ContentHasher
}

// @Summary List banks
// @Tags Banks
// @Produce json
// @Success 200 {array} domain.Bank "ok"
// @Router /c/banks [get]
func (h *handlers) listBanks(r *stdhttp.Request) (any, error) {
	return h.svc.ListBanks(r.Context())
}

// @Summary Create a bank
// @Tags Banks
// @Accept json
// @Produce json
// @Param payload body domain.CreateBankInput true "Bank"
// @Success 201 {object} domain.Bank "created"
// @Failure 400 {object} net.ErrorBody "invalid name"
// @Failure 409 {object} net.ErrorBody "already exists"
// @Router /c/banks [post]
func (h *handlers) createBank(r *stdhttp.Request, in domain.CreateBankInput) (any, error) {
	b, err := h.svc.CreateBank(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Created(b), nil
}

// @Summary Get a bank
// @Tags Banks
// @Produce json
// @Param name path string true "Bank name"
// @Success 200 {object} domain.Bank "ok"
// @Failure 404 {object} net.ErrorBody "not found"
// @Router /c/bank/{name} [get]
func (h *handlers) getBank(r *stdhttp.Request) (any, error) {
	return h.svc.GetBank(r.Context(), httpkit.Param(r, "name"))
}

// @Summary Rename a bank or change its matching ratio
// @Tags Banks
// @Accept json
// @Produce json
// @Param name path string true "Bank name"
// @Param payload body domain.UpdateBankInput true "Changes"
// @Success 200 {object} domain.Bank "ok"
// @Router /c/bank/{name} [put]
func (h *handlers) updateBank(r *stdhttp.Request, in domain.UpdateBankInput) (any, error) {
	return h.svc.UpdateBank(r.Context(), httpkit.Param(r, "name"), in)
}

// @Summary Delete a bank and its content
// @Tags Banks
// @Produce json
// @Param name path string true "Bank name"
// @Success 200 {object} domain.Deleted "ok, also when the bank does not exist"
// @Failure 409 {object} net.ErrorBody "bank is an exchange import bank"
// @Router /c/bank/{name} [delete]
func (h *handlers) deleteBank(r *stdhttp.Request) (any, error) {
	return h.svc.DeleteBank(r.Context(), httpkit.Param(r, "name"))
}

// @Summary Add content to a bank
// @Description Hash media from ?url=&content_type=, hash a multipart "file" upload,
// @Description or store a JSON body of already computed signals
// @Tags Content
// @Accept json,mpfd
// @Produce json
// @Param name path string true "Bank name"
// @Param url query string false "Media url"
// @Param content_type query string false "Content type, guessed from the url or file name when omitted"
// @Param payload body domain.AddContentInput false "Signals"
// @Success 200 {object} domain.AddContentResult "ok"
// @Router /c/bank/{name}/content [post]
func (h *handlers) addContent(r *stdhttp.Request) (any, error) {
	ctx := r.Context()
	bank := httpkit.Param(r, "name")

	var in domain.AddContentInput
	switch {
	case httpkit.Query(r, "url") != "":
		if h.hasher == nil {
			return nil, perr.NotSupportedf("hashing is not enabled on this server")
		}
		url := httpkit.Query(r, "url")
		in.ContentType = contentType(r, url)
		sigs, err := h.hasher.HashURL(ctx, in.ContentType, url)
		if err != nil {
			return nil, err
		}
		in.Signals = sigs
		in.OriginalContentURI = url
	case hashing.IsMultipart(r):
		if h.hasher == nil {
			return nil, perr.NotSupportedf("hashing is not enabled on this server")
		}
		data, name, err := hashing.ReadUpload(r, "file", h.hasher.MaxBytes())
		if err != nil {
			return nil, err
		}
		in.ContentType = r.FormValue("content_type")
		if in.ContentType == "" {
			in.ContentType = contentType(r, name)
		}
		if in.Signals, err = h.hasher.HashBytes(ctx, in.ContentType, data); err != nil {
			return nil, err
		}
		in.Notes = r.FormValue("notes")
	default:
		var err error
		if in, err = httpkit.Decode[domain.AddContentInput](r); err != nil {
			return nil, err
		}
	}
	return h.svc.AddContent(ctx, bank, in)
}

func contentType(r *stdhttp.Request, name string) string {
	if ct := httpkit.Query(r, "content_type"); ct != "" {
		return ct
	}
	return hashing.GuessContentType(name)
}

// @Summary List bank content, newest first
// @Tags Content
// @Produce json
// @Param name path string true "Bank name"
// @Param page query int false "Page, 1 based"
// @Param page_size query int false "Page size"
// @Success 200 {object} object "items and page"
// @Router /c/bank/{name}/content [get]
func (h *handlers) listContent(r *stdhttp.Request) (any, error) {
	page, err := httpkit.QueryInt(r, "page", 1)
	if err != nil {
		return nil, err
	}
	size, err := httpkit.QueryInt(r, "page_size", 50)
	if err != nil {
		return nil, err
	}
	p, err := h.svc.ListMembers(r.Context(), httpkit.Param(r, "name"), page, size)
	if err != nil {
		return nil, err
	}
	return httpkit.List(p.Items, p.Total, max(page, 1), size), nil
}

// @Summary Get bank content
// @Tags Content
// @Produce json
// @Param name path string true "Bank name"
// @Param id path int true "Content id"
// @Success 200 {object} domain.Member "ok"
// @Router /c/bank/{name}/content/{id} [get]
func (h *handlers) getContent(r *stdhttp.Request) (any, error) {
	id, err := httpkit.ParamInt64(r, "id")
	if err != nil {
		return nil, err
	}
	return h.svc.GetMember(r.Context(), httpkit.Param(r, "name"), id)
}

// @Summary Update bank content
// @Description disable_until_ts of -1 disables forever; values past the horizon year give 400
// @Tags Content
// @Accept json
// @Produce json
// @Param name path string true "Bank name"
// @Param id path int true "Content id"
// @Param payload body domain.UpdateMemberInput true "Changes"
// @Success 200 {object} domain.Member "ok"
// @Router /c/bank/{name}/content/{id} [put]
func (h *handlers) updateContent(r *stdhttp.Request, in domain.UpdateMemberInput) (any, error) {
	id, err := httpkit.ParamInt64(r, "id")
	if err != nil {
		return nil, err
	}
	return h.svc.UpdateMember(r.Context(), httpkit.Param(r, "name"), id, in)
}

// @Summary Remove bank content
// @Tags Content
// @Produce json
// @Param name path string true "Bank name"
// @Param id path int true "Content id"
// @Success 200 {object} domain.Deleted "ok"
// @Router /c/bank/{name}/content/{id} [delete]
func (h *handlers) removeContent(r *stdhttp.Request) (any, error) {
	id, err := httpkit.ParamInt64(r, "id")
	if err != nil {
		return nil, err
	}
	return h.svc.RemoveContent(r.Context(), httpkit.Param(r, "name"), id)
}

// @Summary Record an opinion on bank content
// @Tags Content
// @Accept json
// @Produce json
// @Param name path string true "Bank name"
// @Param id path int true "Content id"
// @Param payload body domain.OpinionInput true "Opinion"
// @Success 200 {object} domain.Member "ok"
// @Router /c/bank/{name}/content/{id}/opinion [put]
func (h *handlers) opinion(r *stdhttp.Request, in domain.OpinionInput) (any, error) {
	id, err := httpkit.ParamInt64(r, "id")
	if err != nil {
		return nil, err
	}
	return h.svc.SetOpinion(r.Context(), httpkit.Param(r, "name"), id, in)
}

// @Summary List signal types and their enabled ratio
// @Tags Types
// @Produce json
// @Success 200 {array} domain.SignalTypeInfo "ok"
// @Router /c/signal_types [get]
func (h *handlers) signalTypes(r *stdhttp.Request) (any, error) {
	return h.svc.SignalTypes(r.Context())
}

// @Summary Set a signal type's enabled ratio
// @Tags Types
// @Accept json
// @Produce json
// @Param name path string true "Signal type"
// @Param payload body domain.SignalTypeRatioInput true "Ratio"
// @Success 200 {object} domain.SignalTypeInfo "ok"
// @Router /c/signal_type/{name} [put]
func (h *handlers) setSignalType(r *stdhttp.Request, in domain.SignalTypeRatioInput) (any, error) {
	return h.svc.SetSignalTypeRatio(r.Context(), httpkit.Param(r, "name"), in)
}

// @Summary List content types
// @Tags Types
// @Produce json
// @Success 200 {array} domain.ContentTypeInfo "ok"
// @Router /c/content_types [get]
func (h *handlers) contentTypes(r *stdhttp.Request) (any, error) {
	return h.svc.ContentTypes(r.Context())
}
