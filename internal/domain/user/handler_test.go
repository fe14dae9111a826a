package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService(nil)
	return NewHandler(svc), echo.New()
}

func jsonContext(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSignupHandler(t *testing.T) {
	h, e := newTestHandler()
	c, rec := jsonContext(e, `{"name":"Ada","email":"ada@example.com","password":"pw"}`)
	if err := h.Signup(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSignupHandler_MissingFields(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, `{"email":"ada@example.com"}`)
	err := h.Signup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest || he.Message != "Missing fields" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLoginHandler(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, `{"name":"Ada","email":"ada@example.com","password":"pw"}`)
	if err := h.Signup(c); err != nil {
		t.Fatalf("signup: %v", err)
	}

	c, rec := jsonContext(e, `{"email":"ADA@example.com","password":"pw"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if tok, _ := body["token"].(string); tok == "" {
		t.Error("expected token")
	}
	if body["name"] != "Ada" || body["email"] != "ada@example.com" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	h, e := newTestHandler()
	c, _ := jsonContext(e, `{"name":"Ada","email":"ada@example.com","password":"pw"}`)
	h.Signup(c)

	c, _ = jsonContext(e, `{"email":"ada@example.com","password":"nope"}`)
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized || he.Message != "Invalid credentials" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api"))
	found := map[string]bool{}
	for _, r := range e.Routes() {
		found[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{"POST /api/auth/signup", "POST /api/auth/login"} {
		if !found[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}
