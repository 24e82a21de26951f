package disposition

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrisk/triage/internal/platform/auth"
)

func newHandlerContext(t *testing.T, f *fixture, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithActor(req.Context(), clinician()))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.caseID.String())
	return c, rec
}

func TestHandler_Evaluate(t *testing.T) {
	f := newFixture(t)
	f.addResponse(t, "risk", `{"suicidal_intent_now": false}`)
	h := NewHandler(f.svc)

	c, rec := newHandlerContext(t, f, http.MethodPost, "")
	if err := h.Evaluate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_Evaluate_MalformedAnswers(t *testing.T) {
	f := newFixture(t)
	f.addResponse(t, "risk", `{"suicidal_intent_now": {"nested": true}}`)
	h := NewHandler(f.svc)

	c, _ := newHandlerContext(t, f, http.MethodPost, "")
	err := h.Evaluate(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_Evaluate_NoActor(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(f.caseID.String())

	err := h.Evaluate(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Confirm(t *testing.T) {
	f := newFixture(t)
	f.addResponse(t, "risk", `{"suicidal_intent_now": false}`)
	if _, err := f.svc.ExtractAndEvaluate(context.Background(), f.caseID, clinician()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	h := NewHandler(f.svc)

	c, rec := newHandlerContext(t, f, http.MethodPost, `{"clinical_notes":"reviewed with patient"}`)
	if err := h.Confirm(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_Confirm_NoDraft(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	c, _ := newHandlerContext(t, f, http.MethodPost, "")
	err := h.Confirm(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Override_ShortRationale(t *testing.T) {
	f := newFixture(t)
	f.addResponse(t, "risk", `{"suicidal_intent_now": false}`)
	if _, err := f.svc.ExtractAndEvaluate(context.Background(), f.caseID, clinician()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	h := NewHandler(f.svc)

	body := `{"tier":"AMBER","pathway":"PSYCHIATRY_ASSESSMENT","rationale":"short"}`
	c, _ := newHandlerContext(t, f, http.MethodPost, body)
	err := h.Override(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Override(t *testing.T) {
	f := newFixture(t)
	f.addResponse(t, "risk", `{"suicidal_intent_now": false}`)
	if _, err := f.svc.ExtractAndEvaluate(context.Background(), f.caseID, clinician()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	h := NewHandler(f.svc)

	body := `{"tier":"AMBER","pathway":"PSYCHIATRY_ASSESSMENT","rationale":"clinical picture warrants specialist review"}`
	c, rec := newHandlerContext(t, f, http.MethodPost, body)
	if err := h.Override(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_Confirm_LockedCase(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	if !f.svc.locks.TryAcquire(f.caseID) {
		t.Fatal("setup: could not take the case lock")
	}
	defer f.svc.locks.Release(f.caseID)

	c, _ := newHandlerContext(t, f, http.MethodPost, "")
	err := h.Confirm(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_GetDecision_InvalidID(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetDecision(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_GetDecision_NotFound(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetDecision(c)
	herr, ok := err.(*echo.HTTPError)
	if !ok || herr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
