package handlers

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/history"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/internal/services"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
)

type HistoryService interface {
	List(ctx context.Context, f model.HistoryFilter) (*services.HistoryPage, error)
	Export(ctx context.Context, f model.HistoryFilter) ([]model.EmailHistoryEntry, error)
	Delete(ctx context.Context, id int64) error
}

type HistoryHandler struct {
	svc HistoryService
}

func NewHistoryHandler(svc HistoryService) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

func RegisterHistoryRoutes(g *router.Group, h *HistoryHandler) {
	g.GET("/emails/history", h.List)
	g.GET("/emails/history/export", h.Export)
	g.DELETE("/emails/history/{id}", h.Delete)
}

func (h *HistoryHandler) List(ctx *xhttp.RequestCtx) {
	f, err := historyFilter(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	page, err := h.svc.List(ctx, f)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if page.Entries == nil {
		page.Entries = []model.EmailHistoryEntry{}
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

func (h *HistoryHandler) Export(ctx *xhttp.RequestCtx) {
	f, err := historyFilter(ctx)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	entries, err := h.svc.Export(ctx, f)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	var buf bytes.Buffer
	if err := history.ExportCSV(&buf, entries); err != nil {
		writeErr(ctx, err)
		return
	}
	writeCSV(ctx, "historique-emails-"+time.Now().Format(time.DateOnly)+".csv", buf.Bytes())
}

func (h *HistoryHandler) Delete(ctx *xhttp.RequestCtx) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		writeErr(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

func historyFilter(ctx *xhttp.RequestCtx) (model.HistoryFilter, error) {
	f := model.HistoryFilter{
		Search: query(ctx, "search"),
		Period: model.HistoryPeriod(query(ctx, "period")),
	}
	switch f.Period {
	case "":
		f.Period = model.PeriodAll
	case model.PeriodAll, model.PeriodToday, model.PeriodWeek, model.PeriodMonth, model.PeriodThreeMonths:
	default:
		return f, errs.Validation("unknown period %q", f.Period)
	}
	if v := query(ctx, "contactId"); v != "" && v != "all" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errs.Validation("invalid contactId %q", v)
		}
		f.ContactID = id
	}
	return f, nil
}
