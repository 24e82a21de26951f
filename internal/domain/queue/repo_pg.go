package queue

import (
	"context"

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

func (r *repoPG) ListPending(ctx context.Context) ([]*PendingCase, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT tc.id, tc.patient_ref, d.tier, d.pathway, tc.triaged_at, tc.ruleset_stale
		FROM triage_case tc
		JOIN decision d ON d.case_id = tc.id AND d.status = 'draft'
		WHERE tc.status = 'draft_pending'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PendingCase
	for rows.Next() {
		var p PendingCase
		if err := rows.Scan(&p.CaseID, &p.PatientRef, &p.Tier, &p.Pathway,
			&p.TriagedAt, &p.RulesetStale); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}
