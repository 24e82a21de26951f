package disposition

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinrisk/triage/internal/domain/ruleset"
)

// Decision status values. A draft is replaceable; final and superseded
// rows are immutable history.
const (
	DecisionStatusDraft      = "draft"
	DecisionStatusFinal      = "final"
	DecisionStatusSuperseded = "superseded"
)

// Decision maps to the decision table: the engine verdict pinned to a
// case and the exact ruleset version that produced it. The
// (ruleset_version, rules_fired, explanations) triple is never
// reconstructed from a newer ruleset.
type Decision struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	CaseID         uuid.UUID       `db:"case_id" json:"case_id"`
	Tier           ruleset.Tier    `db:"tier" json:"tier"`
	Pathway        ruleset.Pathway `db:"pathway" json:"pathway"`
	RulesFired     []string        `db:"rules_fired" json:"rules_fired"`
	Explanations   []string        `db:"explanations" json:"explanations"`
	RulesetID      string          `db:"ruleset_id" json:"ruleset_id"`
	RulesetVersion int             `db:"ruleset_version" json:"ruleset_version"`
	Status         string          `db:"status" json:"status"`
	ComputedAt     time.Time       `db:"computed_at" json:"computed_at"`
}

// Disposition maps to the disposition table: the human-sealed outcome of
// a decision cycle. At most one per case; terminal once written.
type Disposition struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	CaseID          uuid.UUID       `db:"case_id" json:"case_id"`
	DecisionID      uuid.UUID       `db:"decision_id" json:"decision_id"`
	IsOverride      bool            `db:"is_override" json:"is_override"`
	OriginalTier    ruleset.Tier    `db:"original_tier" json:"original_tier"`
	OriginalPathway ruleset.Pathway `db:"original_pathway" json:"original_pathway"`
	FinalTier       ruleset.Tier    `db:"final_tier" json:"final_tier"`
	FinalPathway    ruleset.Pathway `db:"final_pathway" json:"final_pathway"`
	Rationale       *string         `db:"rationale" json:"rationale,omitempty"`
	ClinicalNotes   *string         `db:"clinical_notes" json:"clinical_notes,omitempty"`
	SelfBookAllowed bool            `db:"self_book_allowed" json:"self_book_allowed"`
	FinalizedBy     string          `db:"finalized_by" json:"finalized_by"`
	FinalizedAt     time.Time       `db:"finalized_at" json:"finalized_at"`
}

// SelfBookAllowed is computed in exactly one place: here, from the
// final tier, at finalization.
func selfBookAllowed(t ruleset.Tier) bool {
	return t == ruleset.TierGreen || t == ruleset.TierBlue
}
