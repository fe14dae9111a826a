package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	RolePatient   = "patient"
	RoleCaregiver = "caregiver"
)

// ValidRole reports whether r is an assignable account role.
func ValidRole(r string) bool {
	return r == RolePatient || r == RoleCaregiver
}

// RequireRole rejects requests whose authenticated role differs from role.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if RoleFromContext(c.Request().Context()) != role {
				return echo.NewHTTPError(http.StatusForbidden, "Access denied")
			}
			return next(c)
		}
	}
}
