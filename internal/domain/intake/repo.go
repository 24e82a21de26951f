package intake

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides access to cases and their intake material.
type Repository interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id uuid.UUID) (*Case, error)
	UpdateCaseStatus(ctx context.Context, id uuid.UUID, status string) error
	SetRulesetStale(ctx context.Context, id uuid.UUID, stale bool) error
	ListOpenCases(ctx context.Context) ([]*Case, error)

	AddResponse(ctx context.Context, r *QuestionnaireResponse) error
	ListResponses(ctx context.Context, caseID uuid.UUID) ([]*QuestionnaireResponse, error)

	AddScore(ctx context.Context, s *ClinicalScore) error
	ListScores(ctx context.Context, caseID uuid.UUID) ([]*ClinicalScore, error)
}
