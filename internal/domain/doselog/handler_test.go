package doselog

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/apperr"
)

func newTestServer(svc *Service) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(zerolog.New(io.Discard))
	NewHandler(svc).RegisterRoutes(e.Group("/api"))
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body apperr.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body.Message
}

const takenBody = `{"deviceId":"dev-1","date":"2026-03-01","meal":"night","timing":"after","scheduledTime":"21:00","status":"taken"}`

func TestRecordDoseHandler(t *testing.T) {
	svc, repo, patients := newTestService()
	linkActive(patients, "dev-1")
	e := newTestServer(svc)

	rec := doRequest(e, http.MethodPost, "/api/dose-log", takenBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if len(repo.events) != 1 || repo.events[0].Meal != "night" {
		t.Errorf("unexpected stored events %+v", repo.events)
	}
}

func TestRecordDoseHandler_Errors(t *testing.T) {
	svc, _, _ := newTestService()
	e := newTestServer(svc)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{"malformed", `{"deviceId":`, http.StatusBadRequest, "Invalid request body"},
		{"bad status", strings.Replace(takenBody, "taken", "late", 1), http.StatusBadRequest, "status must be taken/missed"},
		{"not linked", takenBody, http.StatusForbidden, MsgDeviceNotLinked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/api/dose-log", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			if msg := decodeMessage(t, rec); msg != tt.wantMsg {
				t.Errorf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestListDosesHandler(t *testing.T) {
	svc, repo, patients := newTestService()
	linkActive(patients, "dev-1")
	e := newTestServer(svc)

	doRequest(e, http.MethodPost, "/api/dose-log", takenBody)
	rec := doRequest(e, http.MethodGet, "/api/dose-log?deviceId=dev-1&limit=9999", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var events []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(events) != 1 || events[0]["scheduledTime"] != "21:00" || events[0]["status"] != "taken" {
		t.Errorf("unexpected events %v", events)
	}
	if _, ok := events[0]["timestamp"]; !ok {
		t.Error("expected timestamp in response")
	}
	if repo.lastLimit != 500 {
		t.Errorf("expected limit capped at 500, got %d", repo.lastLimit)
	}
}

func TestListDosesHandler_Errors(t *testing.T) {
	svc, _, _ := newTestService()
	e := newTestServer(svc)

	rec := doRequest(e, http.MethodGet, "/api/dose-log", "")
	if rec.Code != http.StatusBadRequest || decodeMessage(t, rec) != "deviceId is required" {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(e, http.MethodGet, "/api/dose-log?deviceId=dev-1", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
