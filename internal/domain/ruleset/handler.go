package ruleset

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinrisk/triage/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := auth.RequireRole("rules-admin")

	api.GET("/rulesets", h.List, auth.RequireRole("clinician", "rules-admin"))
	api.GET("/rulesets/active", h.GetActive, auth.RequireRole("clinician", "rules-admin"))
	api.GET("/rulesets/:id/:version", h.GetByVersion, auth.RequireRole("clinician", "rules-admin"))
	api.POST("/rulesets", h.Load, admin)
	api.POST("/rulesets/:id/:version/activate", h.Activate, admin)
}

// Load accepts the raw ruleset document as the request body so the
// content hash covers exactly what the submitter sent.
func (h *Handler) Load(c echo.Context) error {
	src, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no actor")
	}
	rs, err := h.svc.Load(c.Request().Context(), src, actor)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rs)
}

func (h *Handler) Activate(c echo.Context) error {
	id := c.Param("id")
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no actor")
	}
	if err := h.svc.Activate(c.Request().Context(), id, version, actor); err != nil {
		var selfErr *SelfApprovalError
		if errors.As(err, &selfErr) {
			return echo.NewHTTPError(http.StatusForbidden, selfErr.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetActive(c echo.Context) error {
	rs, err := h.svc.GetActive(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, rs)
}

func (h *Handler) GetByVersion(c echo.Context) error {
	id := c.Param("id")
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid version")
	}
	rs, err := h.svc.GetByVersion(c.Request().Context(), id, version)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "ruleset not found")
	}
	return c.JSON(http.StatusOK, rs)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
