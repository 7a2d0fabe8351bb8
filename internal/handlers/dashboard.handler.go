package handlers

import (
	"bytes"
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/dashboard"
	"github.com/nimasrn/crm-dispatch/internal/model"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
)

type DashboardService interface {
	Refresh(ctx context.Context) (*model.DashboardSummary, error)
}

type DashboardHandler struct {
	svc DashboardService
	loc *time.Location
	now func() time.Time
}

// NewDashboardHandler renders exported dates in loc, time.Local when nil.
func NewDashboardHandler(svc DashboardService, loc *time.Location) *DashboardHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DashboardHandler{svc: svc, loc: loc, now: time.Now}
}

func RegisterDashboardRoutes(g *router.Group, h *DashboardHandler) {
	g.GET("/dashboard", h.Summary)
	g.GET("/dashboard/export", h.Export)
}

func (h *DashboardHandler) Summary(ctx *xhttp.RequestCtx) {
	s, err := h.svc.Refresh(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, s)
}

func (h *DashboardHandler) Export(ctx *xhttp.RequestCtx) {
	s, err := h.svc.Refresh(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	var buf bytes.Buffer
	if err := dashboard.ExportCSV(&buf, s, h.loc); err != nil {
		writeErr(ctx, err)
		return
	}
	writeCSV(ctx, "dashboard-"+h.now().In(h.loc).Format(time.DateOnly)+".csv", buf.Bytes())
}
