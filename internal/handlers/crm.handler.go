package handlers

import (
	"context"
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
)

type CRMService interface {
	Resources() []string
	List(ctx context.Context, resource string) ([]json.RawMessage, error)
	Get(ctx context.Context, resource, id string) (json.RawMessage, error)
	Create(ctx context.Context, resource string, body json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, resource, id string, body json.RawMessage) (json.RawMessage, error)
	Delete(ctx context.Context, resource, id string) error
}

// CRMHandler exposes the backend collections under /crm with their
// envelopes already unwrapped.
type CRMHandler struct {
	svc CRMService
}

func NewCRMHandler(svc CRMService) *CRMHandler {
	return &CRMHandler{svc: svc}
}

func RegisterCRMRoutes(g *router.Group, h *CRMHandler) {
	g.GET("/crm", h.Resources)
	g.GET("/crm/{resource}", h.List)
	g.POST("/crm/{resource}", h.Create)
	g.GET("/crm/{resource}/{id}", h.Get)
	g.PUT("/crm/{resource}/{id}", h.Update)
	g.DELETE("/crm/{resource}/{id}", h.Delete)
}

func (h *CRMHandler) Resources(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, map[string][]string{"resources": h.svc.Resources()})
}

func (h *CRMHandler) List(ctx *xhttp.RequestCtx) {
	items, err := h.svc.List(ctx, param(ctx, "resource"))
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	writeJSON(ctx, xhttp.StatusOK, items)
}

func (h *CRMHandler) Get(ctx *xhttp.RequestCtx) {
	item, err := h.svc.Get(ctx, param(ctx, "resource"), param(ctx, "id"))
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, item)
}

func (h *CRMHandler) Create(ctx *xhttp.RequestCtx) {
	body, err := rawBody(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	item, err := h.svc.Create(ctx, param(ctx, "resource"), body)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeRaw(ctx, xhttp.StatusCreated, item)
}

func (h *CRMHandler) Update(ctx *xhttp.RequestCtx) {
	body, err := rawBody(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	item, err := h.svc.Update(ctx, param(ctx, "resource"), param(ctx, "id"), body)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeRaw(ctx, xhttp.StatusOK, item)
}

func (h *CRMHandler) Delete(ctx *xhttp.RequestCtx) {
	if err := h.svc.Delete(ctx, param(ctx, "resource"), param(ctx, "id")); err != nil {
		writeErr(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

func rawBody(ctx *xhttp.RequestCtx) (json.RawMessage, error) {
	body := ctx.PostBody()
	if len(body) == 0 || !json.Valid(body) {
		return nil, errs.Validation("request body must be a JSON document")
	}
	// PostBody is reused once the handler returns
	return append(json.RawMessage(nil), body...), nil
}

// writeRaw answers 204 when the backend returned nothing.
func writeRaw(ctx *xhttp.RequestCtx, status int, item json.RawMessage) {
	if len(item) == 0 {
		ctx.SetStatusCode(xhttp.StatusNoContent)
		return
	}
	writeJSON(ctx, status, item)
}
