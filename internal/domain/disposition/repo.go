package disposition

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists decisions and dispositions. Decision rows are
// insert-then-status-transition only; disposition rows are insert-only.
type Repository interface {
	InsertDecision(ctx context.Context, d *Decision) error
	GetDraft(ctx context.Context, caseID uuid.UUID) (*Decision, error)
	GetFinal(ctx context.Context, caseID uuid.UUID) (*Decision, error)
	SetDecisionStatus(ctx context.Context, id uuid.UUID, status string) error

	InsertDisposition(ctx context.Context, d *Disposition) error
	GetDisposition(ctx context.Context, caseID uuid.UUID) (*Disposition, error)

	// FlagStaleDrafts marks cases whose draft decision was computed under
	// an older version of the given ruleset, returning the affected case ids.
	FlagStaleDrafts(ctx context.Context, rulesetID string, activeVersion int) ([]uuid.UUID, error)
}
