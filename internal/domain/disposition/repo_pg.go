package disposition

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinrisk/triage/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const decisionCols = `id, case_id, tier, pathway, rules_fired, explanations,
	ruleset_id, ruleset_version, status, computed_at`

func scanDecision(row pgx.Row) (*Decision, error) {
	var d Decision
	err := row.Scan(&d.ID, &d.CaseID, &d.Tier, &d.Pathway, &d.RulesFired,
		&d.Explanations, &d.RulesetID, &d.RulesetVersion, &d.Status, &d.ComputedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) InsertDecision(ctx context.Context, d *Decision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DecisionStatusDraft
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO decision
			(id, case_id, tier, pathway, rules_fired, explanations,
			 ruleset_id, ruleset_version, status, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.CaseID, d.Tier, d.Pathway, d.RulesFired, d.Explanations,
		d.RulesetID, d.RulesetVersion, d.Status, d.ComputedAt)
	return err
}

func (r *repoPG) GetDraft(ctx context.Context, caseID uuid.UUID) (*Decision, error) {
	d, err := scanDecision(r.conn(ctx).QueryRow(ctx,
		`SELECT `+decisionCols+` FROM decision WHERE case_id = $1 AND status = $2`,
		caseID, DecisionStatusDraft))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) GetFinal(ctx context.Context, caseID uuid.UUID) (*Decision, error) {
	d, err := scanDecision(r.conn(ctx).QueryRow(ctx,
		`SELECT `+decisionCols+` FROM decision WHERE case_id = $1 AND status = $2`,
		caseID, DecisionStatusFinal))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) SetDecisionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE decision SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) InsertDisposition(ctx context.Context, d *Disposition) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO disposition
			(id, case_id, decision_id, is_override, original_tier, original_pathway,
			 final_tier, final_pathway, rationale, clinical_notes, self_book_allowed,
			 finalized_by, finalized_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.ID, d.CaseID, d.DecisionID, d.IsOverride, d.OriginalTier, d.OriginalPathway,
		d.FinalTier, d.FinalPathway, d.Rationale, d.ClinicalNotes, d.SelfBookAllowed,
		d.FinalizedBy, d.FinalizedAt)
	return err
}

func (r *repoPG) GetDisposition(ctx context.Context, caseID uuid.UUID) (*Disposition, error) {
	var d Disposition
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, case_id, decision_id, is_override, original_tier, original_pathway,
		       final_tier, final_pathway, rationale, clinical_notes, self_book_allowed,
		       finalized_by, finalized_at
		FROM disposition WHERE case_id = $1`, caseID).
		Scan(&d.ID, &d.CaseID, &d.DecisionID, &d.IsOverride, &d.OriginalTier,
			&d.OriginalPathway, &d.FinalTier, &d.FinalPathway, &d.Rationale,
			&d.ClinicalNotes, &d.SelfBookAllowed, &d.FinalizedBy, &d.FinalizedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) FlagStaleDrafts(ctx context.Context, rulesetID string, activeVersion int) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE triage_case tc SET ruleset_stale = TRUE, updated_at = NOW()
		FROM decision d
		WHERE d.case_id = tc.id
		  AND d.status = $1
		  AND d.ruleset_id = $2
		  AND d.ruleset_version < $3
		RETURNING tc.id`,
		DecisionStatusDraft, rulesetID, activeVersion)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
