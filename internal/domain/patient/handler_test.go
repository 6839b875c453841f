package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/docreg/docreg/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

// withScope stamps the request context the way the JWT middleware does.
func withScope(req *http.Request, doctorID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), auth.ScopeIDKey, doctorID.String())
	ctx = context.WithValue(ctx, auth.UserIDKey, doctorID.String())
	return req.WithContext(ctx)
}

func postJSON(e *echo.Echo, rec *httptest.ResponseRecorder, doctorID uuid.UUID, body string) echo.Context {
	req := withScope(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), doctorID)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, rec)
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	rec := httptest.NewRecorder()
	c := postJSON(e, rec, doc, `{"full_name":"John Smith","phone":"555-1234","date_of_birth":"1980-04-12"}`)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.DoctorID != doc {
		t.Error("expected the record to carry the request scope")
	}
}

func TestHandler_CreatePatient_Duplicate(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	seedPatient(t, h.svc, doc, "John Smith", "555-1234")

	rec := httptest.NewRecorder()
	c := postJSON(e, rec, doc, `{"full_name":"JOHN SMITH","phone":" 555-1234 "}`)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "duplicate_patient" {
		t.Errorf("expected duplicate_patient, got %v", resp["error"])
	}
	if resp["existing"] == nil {
		t.Error("expected the existing record in the conflict body")
	}
}

func TestHandler_CreatePatient_MissingScope(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"full_name":"John Smith"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err == nil {
		t.Error("expected error when no doctor scope is available")
	}
}

func TestHandler_CreatePatient_BadDate(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := postJSON(e, rec, uuid.New(), `{"full_name":"John Smith","date_of_birth":"12-04-1980"}`)

	if err := h.CreatePatient(c); err == nil {
		t.Error("expected error for a malformed date")
	}
}

func TestHandler_ResolvePatient(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	seedPatient(t, h.svc, doc, "John Smith", "555-1234")

	rec := httptest.NewRecorder()
	c := postJSON(e, rec, doc, `{"full_name":"john smith","phone":"555-1234"}`)
	if err := h.ResolvePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var v Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if v.Outcome != MatchBlock {
		t.Errorf("expected block, got %s", v.Outcome)
	}

	rec = httptest.NewRecorder()
	c = postJSON(e, rec, doc, `{"full_name":"Someone Else"}`)
	if err := h.ResolvePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if v.Outcome != MatchNone {
		t.Errorf("expected none, got %s", v.Outcome)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	p := seedPatient(t, h.svc, doc, "John Smith", "")

	req := withScope(httptest.NewRequest(http.MethodGet, "/", nil), doc)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	req := withScope(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.GetPatient(c); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestHandler_GetPatient_OtherScopeNotFound(t *testing.T) {
	h, e := newTestHandler()
	p := seedPatient(t, h.svc, uuid.New(), "John Smith", "")

	req := withScope(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPatient(c); err == nil {
		t.Error("expected not found for another doctor's record")
	}
}

func TestHandler_UpdatePatient(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	p := seedPatient(t, h.svc, doc, "John Smith", "555-1234")

	body := `{"full_name":"John Smith","phone":"555-0000"}`
	req := withScope(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), doc)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.UpdatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var got Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Phone == nil || *got.Phone != "555-0000" {
		t.Error("expected the phone to be updated")
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	p := seedPatient(t, h.svc, doc, "John Smith", "")

	req := withScope(httptest.NewRequest(http.MethodDelete, "/", nil), doc)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	doc := uuid.New()
	seedPatient(t, h.svc, doc, "John Smith", "555-1234")
	seedPatient(t, h.svc, doc, "Mary Johnson", "555-5555")
	seedPatient(t, h.svc, uuid.New(), "Elsewhere Person", "")

	req := withScope(httptest.NewRequest(http.MethodGet, "/?limit=20", nil), doc)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []*Patient `json:"data"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 2 || len(resp.Data) != 2 {
		t.Errorf("expected the doctor's two records, got %d", resp.Total)
	}
}
