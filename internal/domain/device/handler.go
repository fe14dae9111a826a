package device

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/apperr"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the device administration routes on an
// authenticated group. Only caregivers reach the handlers.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/device", auth.RequireRole(auth.RoleCaregiver))
	g.POST("/link", h.Link)
	g.POST("/unlink", h.Unlink)
	g.POST("/disable", h.Disable)
	g.POST("/enable", h.Enable)
}

// RegisterPublicRoutes mounts the routes devices call without a token.
func (h *Handler) RegisterPublicRoutes(api *echo.Group) {
	api.POST("/device/heartbeat", h.Heartbeat)
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) Link(c echo.Context) error {
	var req LinkRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	ctx := c.Request().Context()
	v, err := h.svc.Link(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), req)
	if err != nil {
		return apperr.ToHTTP(err, "Failed to link device")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "patient": v})
}

func (h *Handler) Unlink(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	ctx := c.Request().Context()
	if err := h.svc.Unlink(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), req); err != nil {
		return apperr.ToHTTP(err, "Failed to unlink device")
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Device unlinked successfully"})
}

func (h *Handler) Disable(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	ctx := c.Request().Context()
	if err := h.svc.Disable(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), req); err != nil {
		return apperr.ToHTTP(err, "Failed to disable device")
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Device disabled successfully"})
}

func (h *Handler) Enable(c echo.Context) error {
	var req PatientRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	ctx := c.Request().Context()
	if err := h.svc.Enable(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), req); err != nil {
		return apperr.ToHTTP(err, "Failed to enable device")
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Device enabled successfully"})
}

func (h *Handler) Heartbeat(c echo.Context) error {
	var req HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	if err := h.svc.Heartbeat(c.Request().Context(), req.DeviceID); err != nil {
		return apperr.ToHTTP(err, "Failed to process heartbeat")
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "Heartbeat received"})
}
