package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/services"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
)

type MeetingService interface {
	Schedule(ctx context.Context, req services.MeetingRequest) (*services.Meeting, error)
}

type MeetingHandler struct {
	svc       MeetingService
	validator *RequestValidator
}

func NewMeetingHandler(svc MeetingService, v *RequestValidator) *MeetingHandler {
	return &MeetingHandler{svc: svc, validator: v}
}

func RegisterMeetingRoutes(g *router.Group, h *MeetingHandler) {
	g.POST("/meetings", h.Schedule)
}

// meetingRequest takes the date and the time of day as the scheduling form
// sends them.
type meetingRequest struct {
	Title      string  `json:"title" validate:"required,max=255"`
	Date       string  `json:"date" validate:"required"`
	Time       string  `json:"time"`
	ContactIDs []int64 `json:"contactIds" validate:"omitempty,dive,gt=0"`
	Notify     bool    `json:"notify"`
}

func (r meetingRequest) when() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, r.Date); err == nil {
		return t, nil
	}
	clock := r.Time
	if clock == "" {
		clock = "09:00"
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", r.Date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}, errs.Validation("invalid meeting date %q", r.Date+" "+r.Time)
	}
	return t, nil
}

func (h *MeetingHandler) Schedule(ctx *xhttp.RequestCtx) {
	var req meetingRequest
	if err := readJSON(ctx, &req); err != nil {
		writeErr(ctx, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		writeErr(ctx, err)
		return
	}
	when, err := req.when()
	if err != nil {
		writeErr(ctx, err)
		return
	}
	m, err := h.svc.Schedule(ctx, services.MeetingRequest{
		Title:      req.Title,
		When:       when,
		ContactIDs: req.ContactIDs,
		Notify:     req.Notify,
	})
	if err != nil {
		writeErr(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, m)
}
