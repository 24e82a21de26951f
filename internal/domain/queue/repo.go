package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinrisk/triage/internal/domain/ruleset"
)

// PendingCase is one row of the draft-pending join; SLA fields are
// derived in the service.
type PendingCase struct {
	CaseID       uuid.UUID
	PatientRef   string
	Tier         ruleset.Tier
	Pathway      ruleset.Pathway
	TriagedAt    time.Time
	RulesetStale bool
}

// Repository reads cases awaiting human review.
type Repository interface {
	ListPending(ctx context.Context) ([]*PendingCase, error)
}
