package queue

import (
	"net/http"

	"github.com/labstack/echo/v4"

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
	api.GET("/queue", h.GetQueue, clinician)
	api.GET("/queue/stats", h.GetStats, clinician)
}

func (h *Handler) GetQueue(c echo.Context) error {
	f := Filter{
		Tier:   ruleset.Tier(c.QueryParam("tier")),
		Status: SLAStatus(c.QueryParam("sla_status")),
	}
	if f.Tier != "" && !ruleset.ValidTier(f.Tier) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tier")
	}
	if f.Status != "" && !ValidSLAStatus(f.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid sla_status")
	}
	entries, err := h.svc.Queue(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.GetStats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
