package audit

import (
	"context"
	"time"
)

// Repository stores ledger events. Implementations only insert and read;
// update and delete have no place in an append-only ledger.
type Repository interface {
	Insert(ctx context.Context, e *Event) error
	LastInPartition(ctx context.Context, partition string) (*Event, error)
	Range(ctx context.Context, partition string, fromSeq, toSeq int64) ([]*Event, error)
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*Event, error)
	ListByTime(ctx context.Context, from, to time.Time) ([]*Event, error)
}
