package audit

import (
	"context"
	"errors"
	"time"

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

const eventCols = `partition_key, sequence_no, prev_hash, hash, actor_id, actor_type,
	action, entity_type, entity_id, metadata, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.PartitionKey, &e.SequenceNo, &e.PrevHash, &e.Hash,
		&e.ActorID, &e.ActorType, &e.Action, &e.EntityType, &e.EntityID,
		&e.Metadata, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) collect(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) Insert(ctx context.Context, e *Event) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (partition_key, sequence_no, prev_hash, hash,
			actor_id, actor_type, action, entity_type, entity_id, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.PartitionKey, e.SequenceNo, e.PrevHash, e.Hash,
		e.ActorID, e.ActorType, e.Action, e.EntityType, e.EntityID,
		e.Metadata, e.CreatedAt)
	return err
}

func (r *repoPG) LastInPartition(ctx context.Context, partition string) (*Event, error) {
	e, err := scanEvent(r.conn(ctx).QueryRow(ctx, `
		SELECT `+eventCols+` FROM audit_event
		WHERE partition_key = $1
		ORDER BY sequence_no DESC LIMIT 1`, partition))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) Range(ctx context.Context, partition string, fromSeq, toSeq int64) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM audit_event
		WHERE partition_key = $1 AND sequence_no BETWEEN $2 AND $3
		ORDER BY sequence_no ASC`, partition, fromSeq, toSeq)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) ListByEntity(ctx context.Context, entityType, entityID string) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM audit_event
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC, sequence_no ASC`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *repoPG) ListByTime(ctx context.Context, from, to time.Time) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM audit_event
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY partition_key ASC, sequence_no ASC`, from, to)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}
