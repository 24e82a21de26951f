package intake

import (
	"context"
	"time"

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

const caseCols = `id, patient_ref, status, triaged_at, ruleset_stale, escalated_from, created_at, updated_at`

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	err := row.Scan(&c.ID, &c.PatientRef, &c.Status, &c.TriagedAt, &c.RulesetStale,
		&c.EscalatedFrom, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) CreateCase(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CaseStatusNoDraft
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO triage_case (id, patient_ref, status, escalated_from)
		VALUES ($1,$2,$3,$4)
		RETURNING triaged_at, created_at, updated_at`,
		c.ID, c.PatientRef, c.Status, c.EscalatedFrom).
		Scan(&c.TriagedAt, &c.CreatedAt, &c.UpdatedAt)
}

func (r *repoPG) GetCase(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseCols+` FROM triage_case WHERE id = $1`, id))
}

func (r *repoPG) UpdateCaseStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE triage_case SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) SetRulesetStale(ctx context.Context, id uuid.UUID, stale bool) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE triage_case SET ruleset_stale = $2, updated_at = NOW() WHERE id = $1`, id, stale)
	return err
}

func (r *repoPG) ListOpenCases(ctx context.Context) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseCols+` FROM triage_case WHERE status IN ($1, $2) ORDER BY triaged_at ASC`,
		CaseStatusNoDraft, CaseStatusDraftPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) AddResponse(ctx context.Context, resp *QuestionnaireResponse) error {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questionnaire_response
			(id, case_id, questionnaire, questionnaire_version, answers, submitted_at)
		VALUES ($1,$2,$3,$4,$5, COALESCE($6, NOW()))
		RETURNING submitted_at, created_at`,
		resp.ID, resp.CaseID, resp.Questionnaire, resp.QuestionnaireVersion,
		resp.Answers, nullTime(resp.SubmittedAt)).
		Scan(&resp.SubmittedAt, &resp.CreatedAt)
}

func (r *repoPG) ListResponses(ctx context.Context, caseID uuid.UUID) ([]*QuestionnaireResponse, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, questionnaire, questionnaire_version, answers, submitted_at, created_at
		FROM questionnaire_response WHERE case_id = $1
		ORDER BY submitted_at ASC, id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*QuestionnaireResponse
	for rows.Next() {
		var resp QuestionnaireResponse
		if err := rows.Scan(&resp.ID, &resp.CaseID, &resp.Questionnaire,
			&resp.QuestionnaireVersion, &resp.Answers, &resp.SubmittedAt, &resp.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &resp)
	}
	return items, rows.Err()
}

func (r *repoPG) AddScore(ctx context.Context, s *ClinicalScore) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_score (id, case_id, instrument, algorithm_version, total, computed_at)
		VALUES ($1,$2,$3,$4,$5, COALESCE($6, NOW()))
		RETURNING computed_at, created_at`,
		s.ID, s.CaseID, s.Instrument, s.AlgorithmVersion, s.Total, nullTime(s.ComputedAt)).
		Scan(&s.ComputedAt, &s.CreatedAt)
}

func (r *repoPG) ListScores(ctx context.Context, caseID uuid.UUID) ([]*ClinicalScore, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, case_id, instrument, algorithm_version, total, computed_at, created_at
		FROM clinical_score WHERE case_id = $1
		ORDER BY instrument ASC, computed_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClinicalScore
	for rows.Next() {
		var s ClinicalScore
		if err := rows.Scan(&s.ID, &s.CaseID, &s.Instrument, &s.AlgorithmVersion,
			&s.Total, &s.ComputedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
