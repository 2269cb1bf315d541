package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medportal/portal/internal/platform/auth"
)

var testIssuer = auth.NewTokenIssuer([]byte("test-secret-key-for-unit-tests-only"), time.Hour)

func newTestServer(t *testing.T) (*echo.Echo, *fixture) {
	f := newFixture(t)
	e := echo.New()
	NewHandler(f.svc).RegisterRoutes(e.Group("/api"), auth.JWTMiddleware(testIssuer, nil))
	return e, f
}

func tokenFor(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	tok, _, err := testIssuer.Issue(subject, role)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func doJSON(e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_BookConfirmCancelFlow(t *testing.T) {
	e, f := newTestServer(t)
	patientTok := tokenFor(t, f.patient.String(), auth.RolePatient)
	doctorTok := tokenFor(t, f.doctor.ID.String(), auth.RoleDoctor)

	body := `{"doctor":"` + f.doctor.ID.String() + `","patientName":"Ana","appointmentDate":"2026-03-10","timeSlot":"11:00"}`
	rec := doJSON(e, http.MethodPost, "/api/appointments/book", body, patientTok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != "Pending" || a.ConsultationFee != 750 {
		t.Fatalf("unexpected appointment %+v", a)
	}

	rec = doJSON(e, http.MethodGet, "/api/appointments/my-appointments", "", patientTok)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"actions":["cancel"]`) {
		t.Fatalf("my-appointments: got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodPatch, "/api/appointments/"+a.ID.String()+"/status", `{"status":"Completed"}`, doctorTok)
	if rec.Code != http.StatusConflict {
		t.Fatalf("illegal transition: expected 409, got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodPatch, "/api/appointments/"+a.ID.String()+"/status", `{"status":"Confirmed"}`, doctorTok)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(e, http.MethodDelete, "/api/appointments/cancel/"+a.ID.String(), "", patientTok)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel after confirm: expected 409, got %d", rec.Code)
	}

	rec = doJSON(e, http.MethodGet, "/api/appointments/"+a.ID.String()+"/history", "", doctorTok)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	var hist []StatusChange
	json.Unmarshal(rec.Body.Bytes(), &hist)
	if len(hist) != 2 {
		t.Errorf("expected 2 history rows, got %d", len(hist))
	}
}

func TestHandler_RoleGuards(t *testing.T) {
	e, f := newTestServer(t)
	doctorTok := tokenFor(t, f.doctor.ID.String(), auth.RoleDoctor)
	patientTok := tokenFor(t, f.patient.String(), auth.RolePatient)
	labTok := tokenFor(t, f.patient.String(), auth.RoleLab)

	rec := doJSON(e, http.MethodPost, "/api/appointments/book", `{}`, doctorTok)
	if rec.Code != http.StatusForbidden {
		t.Errorf("doctor booking: expected 403, got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodGet, "/api/appointments/doctor/"+f.doctor.ID.String(), "", patientTok)
	if rec.Code != http.StatusForbidden {
		t.Errorf("patient listing doctor: expected 403, got %d", rec.Code)
	}
	rec = doJSON(e, http.MethodGet, "/api/appointments/my-appointments", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}
	a := f.book(t)
	rec = doJSON(e, http.MethodGet, "/api/appointments/"+a.ID.String(), "", labTok)
	if rec.Code != http.StatusForbidden {
		t.Errorf("lab reading appointment: expected 403, got %d", rec.Code)
	}
}

func TestHandler_ValidationMessage(t *testing.T) {
	e, f := newTestServer(t)
	patientTok := tokenFor(t, f.patient.String(), auth.RolePatient)

	rec := doJSON(e, http.MethodPost, "/api/appointments/book", `{"patientName":"Ana","appointmentDate":"2026-03-10"}`, patientTok)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "doctor is required" {
		t.Errorf("unexpected message %q", body["message"])
	}

	rec = doJSON(e, http.MethodGet, "/api/appointments/not-a-uuid", "", patientTok)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}
