package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Service records cases and their intake material. Assessment content comes
// from the questionnaire collaborator; this service only validates structure
// and versioning before storage.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var validInstruments = map[string]bool{
	"phq9":  true,
	"gad7":  true,
	"cssrs": true,
	"wsas":  true,
}

func (s *Service) OpenCase(ctx context.Context, patientRef string) (*Case, error) {
	if patientRef == "" {
		return nil, fmt.Errorf("patient_ref is required")
	}
	c := &Case{PatientRef: patientRef, Status: CaseStatusNoDraft}
	if err := s.repo.CreateCase(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return s.repo.GetCase(ctx, id)
}

func (s *Service) RecordResponse(ctx context.Context, r *QuestionnaireResponse) error {
	if r.Questionnaire == "" {
		return fmt.Errorf("questionnaire is required")
	}
	if r.QuestionnaireVersion <= 0 {
		return fmt.Errorf("questionnaire_version must be positive")
	}
	if len(r.Answers) == 0 {
		return fmt.Errorf("answers are required")
	}
	if !json.Valid(r.Answers) {
		return fmt.Errorf("answers must be valid JSON")
	}
	if _, err := s.repo.GetCase(ctx, r.CaseID); err != nil {
		return fmt.Errorf("case %s: %w", r.CaseID, err)
	}
	return s.repo.AddResponse(ctx, r)
}

func (s *Service) RecordScore(ctx context.Context, sc *ClinicalScore) error {
	if !validInstruments[sc.Instrument] {
		return fmt.Errorf("invalid instrument: %s", sc.Instrument)
	}
	if sc.AlgorithmVersion <= 0 {
		return fmt.Errorf("algorithm_version must be positive")
	}
	if sc.Total < 0 {
		return fmt.Errorf("total must be non-negative")
	}
	if _, err := s.repo.GetCase(ctx, sc.CaseID); err != nil {
		return fmt.Errorf("case %s: %w", sc.CaseID, err)
	}
	return s.repo.AddScore(ctx, sc)
}

func (s *Service) ListResponses(ctx context.Context, caseID uuid.UUID) ([]*QuestionnaireResponse, error) {
	return s.repo.ListResponses(ctx, caseID)
}

func (s *Service) ListScores(ctx context.Context, caseID uuid.UUID) ([]*ClinicalScore, error) {
	return s.repo.ListScores(ctx, caseID)
}
