package user

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public account routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
}

func (h *Handler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	if _, err := h.svc.Signup(c.Request().Context(), req); err != nil {
		return apperr.ToHTTP(err, "Signup failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BadBody(err)
	}
	resp, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err, "Login failed")
	}
	return c.JSON(http.StatusOK, resp)
}
