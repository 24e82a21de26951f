package ruleset

import "context"

// Repository persists ruleset versions and the active pointer row.
// Version rows are insert-only; the pointer is the only mutable record.
type Repository interface {
	Insert(ctx context.Context, rs *Ruleset) error
	Get(ctx context.Context, id string, version int) (*Ruleset, error)
	List(ctx context.Context, id string) ([]*Ruleset, error)
	ListAll(ctx context.Context) ([]*Ruleset, error)

	GetActivePointer(ctx context.Context) (*ActivePointer, error)
	SetActivePointer(ctx context.Context, p *ActivePointer) error
}
