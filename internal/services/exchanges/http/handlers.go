// Package http provides http transport for exchange configuration
package http

import (
	stdhttp "net/http"
	"sync"

	"hma/internal/modkit/httpkit"
	banksdom "hma/internal/services/banks/domain"
	"hma/internal/services/exchanges/domain"
)

var registerRules sync.Once

// Register mounts exchange endpoints on the given router
func Register(r httpkit.Router, s domain.ServicePort) {
	registerRules.Do(func() {
		if err := httpkit.RegisterStringRule("bankname", banksdom.ValidName); err != nil {
			panic(err)
		}
	})
	hs := &handlers{svc: s}

	httpkit.Get(r, "/exchanges", hs.list)
	httpkit.PostJSON[domain.CreateInput](r, "/exchanges", hs.create)
	httpkit.Get(r, "/exchanges/apis", hs.apis)
	httpkit.Get(r, "/exchanges/api/{api}", hs.api)
	httpkit.PostJSON[domain.CredentialsInput](r, "/exchanges/api/{api}", hs.setCredentials)
	httpkit.Delete(r, "/exchanges/api/{api}", hs.unsetCredentials)

	httpkit.Get(r, "/exchange/{name}", hs.get)
	httpkit.PutJSON[domain.UpdateInput](r, "/exchange/{name}", hs.update)
	httpkit.Delete(r, "/exchange/{name}", hs.delete)
	httpkit.Get(r, "/exchange/{name}/status", hs.status)
	httpkit.Get(r, "/exchange/{name}/data/{fetch_id}", hs.data)
}

type handlers struct {
	svc domain.ServicePort
}

// @Summary List exchanges
// @Tags Exchanges
// @Produce json
// @Success 200 {array} domain.Exchange "ok"
// @Router /c/exchanges [get]
func (h *handlers) list(r *stdhttp.Request) (any, error) {
	return h.svc.List(r.Context())
}

// @Summary Create an exchange
// @Description Creates the exchange and its import bank of the same name
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param payload body domain.CreateInput true "Exchange"
// @Success 201 {object} domain.Exchange "created"
// @Failure 400 {object} net.ErrorBody "invalid name, api or typed config"
// @Failure 409 {object} net.ErrorBody "already exists"
// @Router /c/exchanges [post]
func (h *handlers) create(r *stdhttp.Request, in domain.CreateInput) (any, error) {
	x, err := h.svc.Create(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Created(x), nil
}

// @Summary Get an exchange
// @Tags Exchanges
// @Produce json
// @Param name path string true "Exchange name"
// @Success 200 {object} domain.Exchange "ok"
// @Failure 404 {object} net.ErrorBody "not found"
// @Router /c/exchange/{name} [get]
func (h *handlers) get(r *stdhttp.Request) (any, error) {
	return h.svc.Get(r.Context(), httpkit.Param(r, "name"))
}

// @Summary Change exchange flags
// @Description Enabling fetching clears a permanent fetch failure
// @Tags Exchanges
// @Accept json
// @Produce json
// @Param name path string true "Exchange name"
// @Param payload body domain.UpdateInput true "Changes"
// @Success 200 {object} domain.Exchange "ok"
// @Router /c/exchange/{name} [put]
func (h *handlers) update(r *stdhttp.Request, in domain.UpdateInput) (any, error) {
	return h.svc.Update(r.Context(), httpkit.Param(r, "name"), in)
}

// @Summary Delete an exchange with its import bank and fetched data
// @Tags Exchanges
// @Produce json
// @Param name path string true "Exchange name"
// @Success 200 {object} domain.Deleted "ok, also when the exchange does not exist"
// @Router /c/exchange/{name} [delete]
func (h *handlers) delete(r *stdhttp.Request) (any, error) {
	return h.svc.Delete(r.Context(), httpkit.Param(r, "name"))
}

// @Summary Fetch status of an exchange
// @Tags Exchanges
// @Produce json
// @Param name path string true "Exchange name"
// @Success 200 {object} domain.StatusView "ok"
// @Router /c/exchange/{name}/status [get]
func (h *handlers) status(r *stdhttp.Request) (any, error) {
	return h.svc.Status(r.Context(), httpkit.Param(r, "name"))
}

// @Summary One fetched record
// @Tags Exchanges
// @Produce json
// @Param name path string true "Exchange name"
// @Param fetch_id path string true "Id of the record on the exchange"
// @Success 200 {object} domain.Data "ok"
// @Failure 404 {object} net.ErrorBody "not found"
// @Router /c/exchange/{name}/data/{fetch_id} [get]
func (h *handlers) data(r *stdhttp.Request) (any, error) {
	return h.svc.Data(r.Context(), httpkit.Param(r, "name"), httpkit.Param(r, "fetch_id"))
}

// @Summary List installed exchange apis
// @Tags Exchange APIs
// @Produce json
// @Success 200 {array} domain.APIInfo "ok"
// @Router /c/exchanges/apis [get]
func (h *handlers) apis(r *stdhttp.Request) (any, error) {
	return h.svc.APIs(r.Context())
}

// @Summary Describe an exchange api
// @Tags Exchange APIs
// @Produce json
// @Param api path string true "Api name"
// @Success 200 {object} domain.APIInfo "ok"
// @Failure 404 {object} net.ErrorBody "not installed"
// @Router /c/exchanges/api/{api} [get]
func (h *handlers) api(r *stdhttp.Request) (any, error) {
	return h.svc.API(r.Context(), httpkit.Param(r, "api"))
}

// @Summary Set default credentials of an exchange api
// @Tags Exchange APIs
// @Accept json
// @Produce json
// @Param api path string true "Api name"
// @Param payload body domain.CredentialsInput true "Credentials"
// @Success 200 {object} domain.APIInfo "ok"
// @Failure 400 {object} net.ErrorBody "api takes no credentials or they are malformed"
// @Router /c/exchanges/api/{api} [post]
func (h *handlers) setCredentials(r *stdhttp.Request, in domain.CredentialsInput) (any, error) {
	return h.svc.SetCredentials(r.Context(), httpkit.Param(r, "api"), in.CredentialJSON)
}

// @Summary Drop stored credentials of an exchange api
// @Tags Exchange APIs
// @Produce json
// @Param api path string true "Api name"
// @Success 200 {object} domain.APIInfo "ok"
// @Router /c/exchanges/api/{api} [delete]
func (h *handlers) unsetCredentials(r *stdhttp.Request) (any, error) {
	return h.svc.UnsetCredentials(r.Context(), httpkit.Param(r, "api"))
}
