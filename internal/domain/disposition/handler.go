package disposition

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrisk/triage/internal/domain/facts"
	"github.com/clinrisk/triage/internal/domain/ruleset"
	"github.com/clinrisk/triage/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinician := auth.RequireRole("clinician")

	api.POST("/cases/:id/evaluate", h.Evaluate, clinician)
	api.POST("/cases/:id/confirm", h.Confirm, clinician)
	api.POST("/cases/:id/override", h.Override, clinician)
	api.POST("/cases/:id/escalate", h.Escalate, clinician)
	api.GET("/cases/:id/decision", h.GetDecision, clinician)
	api.GET("/cases/:id/disposition", h.GetDisposition, clinician)
}

// httpError maps the error taxonomy onto status codes: malformed facts
// 422, bad input 400, races 409.
func httpError(err error) *echo.HTTPError {
	var extErr *facts.ExtractionError
	if errors.As(err, &extErr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, extErr.Error())
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
	}
	var conflict *ConcurrencyConflict
	if errors.As(err, &conflict) {
		return echo.NewHTTPError(http.StatusConflict, conflict.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func caseParam(c echo.Context) (uuid.UUID, auth.Actor, *echo.HTTPError) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, auth.Actor{}, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, auth.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "no actor")
	}
	return id, actor, nil
}

func (h *Handler) Evaluate(c echo.Context) error {
	id, actor, herr := caseParam(c)
	if herr != nil {
		return herr
	}
	d, err := h.svc.ExtractAndEvaluate(c.Request().Context(), id, actor)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Confirm(c echo.Context) error {
	id, actor, herr := caseParam(c)
	if herr != nil {
		return herr
	}
	var req struct {
		ClinicalNotes *string `json:"clinical_notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Confirm(c.Request().Context(), id, actor, req.ClinicalNotes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Override(c echo.Context) error {
	id, actor, herr := caseParam(c)
	if herr != nil {
		return herr
	}
	var req struct {
		Tier          ruleset.Tier    `json:"tier"`
		Pathway       ruleset.Pathway `json:"pathway"`
		Rationale     string          `json:"rationale"`
		ClinicalNotes *string         `json:"clinical_notes"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Override(c.Request().Context(), id, actor,
		req.Tier, req.Pathway, req.Rationale, req.ClinicalNotes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Escalate(c echo.Context) error {
	id, actor, herr := caseParam(c)
	if herr != nil {
		return herr
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	next, err := h.svc.Escalate(c.Request().Context(), id, actor, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, next)
}

func (h *Handler) GetDecision(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDecision(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GetDisposition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.GetDisposition(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
