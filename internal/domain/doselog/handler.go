package doselog

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dose log routes. Devices call them without a
// token; access is gated on the device being active.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/dose-log", h.RecordDose)
	api.GET("/dose-log", h.ListDoses)
}

func (h *Handler) RecordDose(c echo.Context) error {
	var req EventRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	if _, err := h.svc.Record(c.Request().Context(), req); err != nil {
		return apperr.ToHTTP(err, "Failed to record dose")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) ListDoses(c echo.Context) error {
	events, err := h.svc.History(c.Request().Context(), c.QueryParam("deviceId"), pagination.DoseHistory.FromContext(c))
	if err != nil {
		return apperr.ToHTTP(err, "Failed to fetch dose history")
	}
	return c.JSON(http.StatusOK, events)
}
