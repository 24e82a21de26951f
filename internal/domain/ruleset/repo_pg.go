package ruleset

import (
	"context"
	"encoding/json"
	"errors"

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

// rulesetDoc is the JSONB payload; identity and provenance live in
// their own columns.
type rulesetDoc struct {
	Facts   []string `json:"facts"`
	Rules   []Rule   `json:"rules"`
	Default Outcome  `json:"default"`
}

func (r *repoPG) Insert(ctx context.Context, rs *Ruleset) error {
	doc, err := json.Marshal(rulesetDoc{Facts: rs.Facts, Rules: rs.Rules, Default: rs.Default})
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ruleset (id, version, submitted_by, content_hash, document)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING loaded_at`,
		rs.ID, rs.Version, rs.SubmittedBy, rs.ContentHash, doc).
		Scan(&rs.LoadedAt)
}

func scanRuleset(row pgx.Row) (*Ruleset, error) {
	var rs Ruleset
	var raw []byte
	if err := row.Scan(&rs.ID, &rs.Version, &rs.SubmittedBy, &rs.ContentHash,
		&raw, &rs.LoadedAt); err != nil {
		return nil, err
	}
	var doc rulesetDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	rs.Facts = doc.Facts
	rs.Rules = doc.Rules
	rs.Default = doc.Default
	return &rs, nil
}

const rulesetCols = `id, version, submitted_by, content_hash, document, loaded_at`

func (r *repoPG) Get(ctx context.Context, id string, version int) (*Ruleset, error) {
	return scanRuleset(r.conn(ctx).QueryRow(ctx,
		`SELECT `+rulesetCols+` FROM ruleset WHERE id = $1 AND version = $2`, id, version))
}

func (r *repoPG) List(ctx context.Context, id string) ([]*Ruleset, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+rulesetCols+` FROM ruleset WHERE id = $1 ORDER BY version ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRulesets(rows)
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Ruleset, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+rulesetCols+` FROM ruleset ORDER BY id ASC, version ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRulesets(rows)
}

func collectRulesets(rows pgx.Rows) ([]*Ruleset, error) {
	var items []*Ruleset
	for rows.Next() {
		rs, err := scanRuleset(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rs)
	}
	return items, rows.Err()
}

func (r *repoPG) GetActivePointer(ctx context.Context) (*ActivePointer, error) {
	var p ActivePointer
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT ruleset_id, ruleset_version, approved_by, activated_at
		FROM ruleset_active WHERE singleton`).
		Scan(&p.RulesetID, &p.RulesetVersion, &p.ApprovedBy, &p.ActivatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) SetActivePointer(ctx context.Context, p *ActivePointer) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO ruleset_active (singleton, ruleset_id, ruleset_version, approved_by)
		VALUES (TRUE, $1, $2, $3)
		ON CONFLICT (singleton) DO UPDATE SET
			ruleset_id = EXCLUDED.ruleset_id,
			ruleset_version = EXCLUDED.ruleset_version,
			approved_by = EXCLUDED.approved_by,
			activated_at = NOW()
		RETURNING activated_at`,
		p.RulesetID, p.RulesetVersion, p.ApprovedBy).
		Scan(&p.ActivatedAt)
}
