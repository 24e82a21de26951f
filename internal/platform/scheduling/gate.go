// Package scheduling is the booking collaborator's view of a sealed
// case. It consumes the disposition's self_book_allowed flag read-only;
// the flag is computed once, at finalization, and never re-derived here.
package scheduling

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrisk/triage/internal/domain/disposition"
	"github.com/clinrisk/triage/internal/platform/auth"
)

// dispositionSource is the slice of the disposition service the gate
// reads from.
type dispositionSource interface {
	GetDisposition(ctx context.Context, caseID uuid.UUID) (*disposition.Disposition, error)
}

// BookingGate answers whether a patient may self-book for a case.
type BookingGate struct {
	dispositions dispositionSource
}

func NewBookingGate(dispositions dispositionSource) *BookingGate {
	return &BookingGate{dispositions: dispositions}
}

// Eligibility is what the booking UI needs and nothing more.
type Eligibility struct {
	CaseID          uuid.UUID `json:"case_id"`
	SelfBookAllowed bool      `json:"self_book_allowed"`
	Pathway         string    `json:"pathway"`
}

// CheckSelfBook reports booking eligibility for a sealed case. A case
// without a disposition is not bookable.
func (g *BookingGate) CheckSelfBook(ctx context.Context, caseID uuid.UUID) (*Eligibility, error) {
	d, err := g.dispositions.GetDisposition(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		CaseID:          caseID,
		SelfBookAllowed: d.SelfBookAllowed,
		Pathway:         string(d.FinalPathway),
	}, nil
}

func (g *BookingGate) RegisterRoutes(api *echo.Group) {
	api.GET("/cases/:id/booking", g.GetEligibility,
		auth.RequireRole("clinician", "patient", "scheduler"))
}

func (g *BookingGate) GetEligibility(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := g.CheckSelfBook(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, e)
}
