package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinrisk/triage/internal/platform/auth"
	"github.com/clinrisk/triage/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("clinician", "auditor")

	g := api.Group("", role)
	g.GET("/cases/:id/audit", h.CaseTrail)
	g.GET("/audit/verify", h.Verify)
	g.GET("/audit/export", h.Export)
}

func (h *Handler) CaseTrail(c echo.Context) error {
	events, err := h.ledger.Trail(c.Request().Context(), "case", c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	p := pagination.FromContext(c)
	total := len(events)
	page := events
	if p.Offset >= total {
		page = nil
	} else {
		end := p.Offset + p.Limit
		if end > total {
			end = total
		}
		page = events[p.Offset:end]
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(page, total, p.Limit, p.Offset))
}

func (h *Handler) Verify(c echo.Context) error {
	partition := c.QueryParam("partition")
	if partition == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "partition is required")
	}
	fromSeq, err := strconv.ParseInt(c.QueryParam("from"), 10, 64)
	if err != nil || fromSeq < 1 {
		fromSeq = 1
	}
	toSeq, err := strconv.ParseInt(c.QueryParam("to"), 10, 64)
	if err != nil || toSeq < fromSeq {
		toSeq = int64(1<<62 - 1)
	}

	if err := h.ledger.VerifyRange(c.Request().Context(), partition, fromSeq, toSeq); err != nil {
		if intErr, ok := err.(*IntegrityError); ok {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"verified":    false,
				"partition":   intErr.Partition,
				"diverged_at": intErr.SequenceNo,
			})
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"verified": true, "partition": partition})
}

func (h *Handler) Export(c echo.Context) error {
	from, err := time.Parse(time.RFC3339, c.QueryParam("from"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam("to"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339")
	}
	if to.Before(from) {
		return echo.NewHTTPError(http.StatusBadRequest, "to must not precede from")
	}

	bundle, err := h.ledger.Export(c.Request().Context(), from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, bundle)
}
