package patient

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

// RegisterRoutes mounts the patient routes on a group that already runs the
// authentication gate.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patient")
	g.GET("", h.ListPatients)
	g.POST("", h.CreatePatient)
	g.GET("/:id", h.GetPatient)
	g.PUT("/:id", h.UpdatePatient)
	g.DELETE("/:id", h.DeletePatient)
}

func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	views, err := h.svc.List(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err, "Failed to fetch patients")
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	ctx := c.Request().Context()
	v, err := h.svc.Create(ctx, auth.UserIDFromContext(ctx), auth.RoleFromContext(ctx), req)
	if err != nil {
		return apperr.ToHTTP(err, "Failed to create patient")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetPatient(c echo.Context) error {
	ctx := c.Request().Context()
	v, err := h.svc.Get(ctx, c.Param("id"), auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.ToHTTP(err, "Failed to fetch patient")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	ctx := c.Request().Context()
	v, err := h.svc.Update(ctx, c.Param("id"), auth.UserIDFromContext(ctx), req)
	if err != nil {
		return apperr.ToHTTP(err, "Failed to update patient")
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, c.Param("id"), auth.UserIDFromContext(ctx)); err != nil {
		return apperr.ToHTTP(err, "Failed to delete patient")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}
