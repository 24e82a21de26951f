package intake

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Case maps to the triage_case table. A case is one decision cycle for one
// patient assessment; escalation opens a fresh case linked via EscalatedFrom.
type Case struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientRef    string     `db:"patient_ref" json:"patient_ref"`
	Status        string     `db:"status" json:"status"`
	TriagedAt     time.Time  `db:"triaged_at" json:"triaged_at"`
	RulesetStale  bool       `db:"ruleset_stale" json:"ruleset_stale"`
	EscalatedFrom *uuid.UUID `db:"escalated_from" json:"escalated_from,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Case statuses. Tier/pathway state lives on decisions and dispositions; the
// case row only tracks where it sits in the draft/final lifecycle.
const (
	CaseStatusNoDraft      = "no_draft"
	CaseStatusDraftPending = "draft_pending"
	CaseStatusFinalized    = "finalized"
	CaseStatusEscalated    = "escalated"
)

// QuestionnaireResponse maps to the questionnaire_response table. Answers are
// stored as submitted; the fact extractor owns normalization. Each response
// is pinned to the questionnaire definition version it was answered against.
type QuestionnaireResponse struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	CaseID               uuid.UUID       `db:"case_id" json:"case_id"`
	Questionnaire        string          `db:"questionnaire" json:"questionnaire"`
	QuestionnaireVersion int             `db:"questionnaire_version" json:"questionnaire_version"`
	Answers              json.RawMessage `db:"answers" json:"answers"`
	SubmittedAt          time.Time       `db:"submitted_at" json:"submitted_at"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// ClinicalScore maps to the clinical_score table: a computed instrument total
// (PHQ-9, GAD-7, ...) pinned to the scoring algorithm version that produced it.
type ClinicalScore struct {
	ID               uuid.UUID `db:"id" json:"id"`
	CaseID           uuid.UUID `db:"case_id" json:"case_id"`
	Instrument       string    `db:"instrument" json:"instrument"`
	AlgorithmVersion int       `db:"algorithm_version" json:"algorithm_version"`
	Total            int       `db:"total" json:"total"`
	ComputedAt       time.Time `db:"computed_at" json:"computed_at"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
