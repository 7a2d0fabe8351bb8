package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/crm-dispatch/internal/services"
	xhttp "github.com/nimasrn/crm-dispatch/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) *services.HealthReport
}

type HealthHandler struct {
	healthService HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(healthService HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// GetHealth answers 200 while degraded, the checks name what is down.
func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, h.healthService.Check(ctx))
}
