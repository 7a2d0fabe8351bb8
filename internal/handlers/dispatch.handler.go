package handlers

import (
	"context"
	"strings"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
)

type DispatchService interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchReport, error)
	Get(ctx context.Context, id string) (*model.DispatchReport, error)
	List(ctx context.Context, f model.DispatchFilter) ([]*model.DispatchReport, int64, error)
	Stats(ctx context.Context, f model.DispatchFilter) (*model.DispatchStats, error)
}

type JobService interface {
	Enqueue(ctx context.Context, req model.DispatchRequest) (*model.JobStatus, error)
	Status(ctx context.Context, id string) (*model.JobStatus, error)
}

type DispatchHandler struct {
	svc       DispatchService
	jobs      JobService
	validator *RequestValidator
}

func NewDispatchHandler(svc DispatchService, jobs JobService, v *RequestValidator) *DispatchHandler {
	return &DispatchHandler{svc: svc, jobs: jobs, validator: v}
}

func RegisterDispatchRoutes(g *router.Group, h *DispatchHandler) {
	g.POST("/dispatch", h.Dispatch)
	g.POST("/dispatch/async", h.DispatchAsync)
	g.GET("/dispatch/jobs/{id}", h.JobStatus)
	g.GET("/dispatches", h.ListDispatches)
	g.GET("/dispatches/stats", h.Stats)
	g.GET("/dispatches/{id}", h.GetDispatch)
}

type inlineContact struct {
	ID         int64  `json:"id"`
	Prenom     string `json:"prenom"`
	Nom        string `json:"nom"`
	Email      string `json:"email"`
	Telephone  string `json:"telephone"`
	Fonction   string `json:"fonction"`
	Entreprise string `json:"entreprise"`
}

type dispatchRequest struct {
	Channel    string          `json:"channel" validate:"required,oneof=email sms"`
	ContactIDs []int64         `json:"contactIds" validate:"omitempty,dive,gt=0"`
	Contacts   []inlineContact `json:"contacts"`
	Subject    string          `json:"subject" validate:"max=255"`
	Message    string          `json:"message" validate:"required"`
}

func (r dispatchRequest) toModel() model.DispatchRequest {
	req := model.DispatchRequest{
		Channel:    model.ParseChannel(r.Channel),
		ContactIDs: r.ContactIDs,
		Template:   model.Message{Subject: r.Subject, Body: r.Message},
	}
	for _, c := range r.Contacts {
		req.Contacts = append(req.Contacts, model.Contact{
			ID:         c.ID,
			Prenom:     c.Prenom,
			Nom:        c.Nom,
			Email:      c.Email,
			Telephone:  c.Telephone,
			Fonction:   c.Fonction,
			Entreprise: c.Entreprise,
		})
	}
	return req
}

func (h *DispatchHandler) decode(ctx *xhttp.RequestCtx) (model.DispatchRequest, error) {
	var req dispatchRequest
	if err := readJSON(ctx, &req); err != nil {
		return model.DispatchRequest{}, err
	}
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	if err := h.validator.Validate(req); err != nil {
		return model.DispatchRequest{}, err
	}
	return req.toModel(), nil
}

// Dispatch sends synchronously. Partial failures still answer 200, the
// report tells which recipients failed.
func (h *DispatchHandler) Dispatch(ctx *xhttp.RequestCtx) {
	req, err := h.decode(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	report, err := h.svc.Dispatch(ctx, req)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, report)
}

func (h *DispatchHandler) DispatchAsync(ctx *xhttp.RequestCtx) {
	if h.jobs == nil {
		writeError(ctx, xhttp.StatusServiceUnavailable, "asynchronous dispatch is disabled")
		return
	}
	req, err := h.decode(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	st, err := h.jobs.Enqueue(ctx, req)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	ctx.Response.Header.Set("Location", "/api/v1/dispatch/jobs/"+st.ID)
	writeJSON(ctx, xhttp.StatusAccepted, st)
}

func (h *DispatchHandler) JobStatus(ctx *xhttp.RequestCtx) {
	if h.jobs == nil {
		writeError(ctx, xhttp.StatusServiceUnavailable, "asynchronous dispatch is disabled")
		return
	}
	st, err := h.jobs.Status(ctx, param(ctx, "id"))
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, st)
}

func (h *DispatchHandler) GetDispatch(ctx *xhttp.RequestCtx) {
	report, err := h.svc.Get(ctx, param(ctx, "id"))
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, report)
}

type listResponse struct {
	Items []*model.DispatchReport `json:"items"`
	Total int64                   `json:"total"`
}

func (h *DispatchHandler) ListDispatches(ctx *xhttp.RequestCtx) {
	f, err := dispatchFilter(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if items == nil {
		items = []*model.DispatchReport{}
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse{Items: items, Total: total})
}

func (h *DispatchHandler) Stats(ctx *xhttp.RequestCtx) {
	f, err := dispatchFilter(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	stats, err := h.svc.Stats(ctx, f)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

func dispatchFilter(ctx *xhttp.RequestCtx) (model.DispatchFilter, error) {
	var f model.DispatchFilter
	if v := query(ctx, "channel"); v != "" {
		f.Channel = model.ParseChannel(v)
		if !f.Channel.Valid() {
			return f, errs.Validation("unknown channel %q", v)
		}
	}
	if v := query(ctx, "from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return f, errs.Validation("invalid from date %q", v)
		}
		f.From = &t
	}
	if v := query(ctx, "to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return f, errs.Validation("invalid to date %q", v)
		}
		f.To = &t
	}
	f.Limit = queryInt(ctx, "limit")
	f.Offset = max(queryInt(ctx, "offset"), 0)
	return f, nil
}
