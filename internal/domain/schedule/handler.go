package schedule

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

// maxBodyBytes bounds a schedule update body.
const maxBodyBytes = 64 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the schedule write route on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/dose-time", h.UpdateSchedule)
}

// RegisterPublicRoutes mounts the schedule read route devices poll.
func (h *Handler) RegisterPublicRoutes(api *echo.Group) {
	api.GET("/dose-time", h.GetSchedule)
}

func (h *Handler) GetSchedule(c echo.Context) error {
	sched, err := h.svc.Get(c.Request().Context(), c.QueryParam("deviceId"))
	if err != nil {
		return apperr.ToHTTP(err, "Failed to fetch dose times")
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) UpdateSchedule(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return apperr.BadBody(err)
	}
	if len(body) > maxBodyBytes {
		return apperr.ErrBodyTooLarge
	}
	patch, err := ParsePatch(body)
	if err != nil {
		return apperr.ToHTTP(err, "Invalid request body")
	}

	ctx := c.Request().Context()
	sched, err := h.svc.Update(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), patch)
	if err != nil {
		return apperr.ToHTTP(err, "Failed to update dose times")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": sched})
}
