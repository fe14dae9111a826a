package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims(userID, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Role:   role,
	}
}

func runMiddleware(t *testing.T, header string) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen echo.Context
	handler := func(c echo.Context) error {
		seen = c
		return c.String(http.StatusOK, "ok")
	}

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c)
	return seen, err
}

func assertHTTPError(t *testing.T, err error, code int, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
	if httpErr.Message != msg {
		t.Errorf("expected message %q, got %v", msg, httpErr.Message)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, "")
	assertHTTPError(t, err, http.StatusUnauthorized, "Unauthorized")
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, tt.header)
			assertHTTPError(t, err, http.StatusUnauthorized, "Unauthorized")
		})
	}
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	expired := validClaims("user-1", RoleCaregiver)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong key", createTestToken(t, validClaims("user-1", RoleCaregiver), []byte("other-key"))},
		{"expired", createTestToken(t, expired, testSigningKey)},
		{"no subject", createTestToken(t, validClaims("", RoleCaregiver), testSigningKey)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, "Bearer "+tt.token)
			assertHTTPError(t, err, http.StatusUnauthorized, "Invalid token")
		})
	}
}

func TestJWTMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims("user-1", RoleCaregiver))
	tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = runMiddleware(t, "Bearer "+tokenStr)
	assertHTTPError(t, err, http.StatusUnauthorized, "Invalid token")
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-42", RoleCaregiver), testSigningKey)

	c, err := runMiddleware(t, "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := c.Request().Context()
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Errorf("expected user-42, got %s", got)
	}
	if got := RoleFromContext(ctx); got != RoleCaregiver {
		t.Errorf("expected caregiver, got %s", got)
	}
}

func TestJWTMiddleware_DefaultsRoleToPatient(t *testing.T) {
	tokenStr := createTestToken(t, validClaims("user-7", ""), testSigningKey)

	c, err := runMiddleware(t, "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := RoleFromContext(c.Request().Context()); got != RolePatient {
		t.Errorf("expected default role patient, got %s", got)
	}
}

func TestJWTMiddleware_FallsBackToSubject(t *testing.T) {
	claims := validClaims("", RolePatient)
	claims.Subject = "sub-user"
	tokenStr := createTestToken(t, claims, testSigningKey)

	c, err := runMiddleware(t, "Bearer "+tokenStr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := UserIDFromContext(c.Request().Context()); got != "sub-user" {
		t.Errorf("expected sub-user, got %s", got)
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if UserIDFromContext(req.Context()) != "" {
		t.Error("expected empty user id")
	}
	if RoleFromContext(req.Context()) != "" {
		t.Error("expected empty role")
	}
}
