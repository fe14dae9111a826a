package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		required string
		wantCode int
	}{
		{"caregiver allowed", RoleCaregiver, RoleCaregiver, http.StatusOK},
		{"patient denied", RolePatient, RoleCaregiver, http.StatusForbidden},
		{"anonymous denied", "", RoleCaregiver, http.StatusForbidden},
		{"patient route", RolePatient, RolePatient, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.role != "" {
				req = req.WithContext(WithUser(req.Context(), "user-1", tt.role))
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			}

			err := RequireRole(tt.required)(handler)(c)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertHTTPError(t, err, tt.wantCode, "Access denied")
		})
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RolePatient, RoleCaregiver} {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	for _, r := range []string{"", "admin", "Caregiver"} {
		if ValidRole(r) {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}
