package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinrisk/triage/internal/platform/notification"
)

// IntegrityError reports a divergence in the hash chain. It is fatal for the
// affected partition: surfaced to an operator, never auto-repaired.
type IntegrityError struct {
	Partition  string
	SequenceNo int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("audit chain integrity failure in partition %s at sequence %d",
		e.Partition, e.SequenceNo)
}

// TxRunner wraps fn in a database transaction. A nil runner executes fn
// directly, which keeps unit tests free of transaction plumbing.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

// Ledger appends hash-chained events and verifies chain integrity. Appends
// within one partition are strictly serialized: prev_hash must be read and
// the new event written as one ordered step, so each partition has a single
// writer guarded by its own mutex, and the read-insert pair runs in one
// transaction so a concurrent writer on another instance fails cleanly on
// the (partition_key, sequence_no) key instead of forking the chain.
type Ledger struct {
	repo     Repository
	notifier notification.Notifier
	inTx     TxRunner

	mu         sync.Mutex
	partitions map[string]*sync.Mutex
	now        func() time.Time
}

func NewLedger(repo Repository, notifier notification.Notifier, inTx TxRunner) *Ledger {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	}
	return &Ledger{
		repo:       repo,
		notifier:   notifier,
		inTx:       inTx,
		partitions: make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

func (l *Ledger) partitionLock(partition string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.partitions[partition]
	if !ok {
		m = &sync.Mutex{}
		l.partitions[partition] = m
	}
	return m
}

// Append chains and stores a new event, returning its sequence number. The
// partition key defaults to the current day bucket when unset.
func (l *Ledger) Append(ctx context.Context, e *Event) (int64, error) {
	if e.Action == "" || e.EntityType == "" || e.EntityID == "" {
		return 0, fmt.Errorf("audit event requires action, entity_type, and entity_id")
	}
	if e.ActorID == "" {
		return 0, fmt.Errorf("audit event requires an actor")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	if e.PartitionKey == "" {
		e.PartitionKey = PartitionFor(e.CreatedAt)
	}

	lock := l.partitionLock(e.PartitionKey)
	lock.Lock()
	defer lock.Unlock()

	err := l.inTx(ctx, func(ctx context.Context) error {
		last, err := l.repo.LastInPartition(ctx, e.PartitionKey)
		if err != nil {
			return fmt.Errorf("read partition head: %w", err)
		}

		if last == nil {
			e.SequenceNo = 1
			e.PrevHash = GenesisHash
		} else {
			e.SequenceNo = last.SequenceNo + 1
			e.PrevHash = last.Hash
		}
		e.Hash = ComputeHash(e.PrevHash, e)

		if err := l.repo.Insert(ctx, e); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return e.SequenceNo, nil
}

// VerifyRange recomputes the hash chain for [fromSeq, toSeq] in a partition.
// It returns an IntegrityError identifying the first divergent sequence
// number, after raising a critical operator alert.
func (l *Ledger) VerifyRange(ctx context.Context, partition string, fromSeq, toSeq int64) error {
	events, err := l.repo.Range(ctx, partition, fromSeq, toSeq)
	if err != nil {
		return fmt.Errorf("load range: %w", err)
	}

	var prevHash string
	for i, e := range events {
		if i == 0 {
			prevHash = e.PrevHash
			if e.SequenceNo == 1 && prevHash != GenesisHash {
				return l.integrityFailure(ctx, partition, e.SequenceNo)
			}
		} else {
			if e.PrevHash != prevHash {
				return l.integrityFailure(ctx, partition, e.SequenceNo)
			}
		}
		if ComputeHash(e.PrevHash, e) != e.Hash {
			return l.integrityFailure(ctx, partition, e.SequenceNo)
		}
		prevHash = e.Hash
	}
	return nil
}

func (l *Ledger) integrityFailure(ctx context.Context, partition string, seq int64) error {
	err := &IntegrityError{Partition: partition, SequenceNo: seq}
	if l.notifier != nil {
		_ = l.notifier.Notify(ctx, notification.Alert{
			Kind:       notification.KindIntegrityFailure,
			Severity:   notification.SeverityCritical,
			Summary:    err.Error(),
			EntityType: "audit_partition",
			EntityID:   partition,
			Metadata:   map[string]string{"sequence_no": fmt.Sprintf("%d", seq)},
		})
	}
	return err
}

// Trail returns every event recorded for an entity, oldest first.
func (l *Ledger) Trail(ctx context.Context, entityType, entityID string) ([]*Event, error) {
	return l.repo.ListByEntity(ctx, entityType, entityID)
}

// Export returns an evidence bundle for the given time range. Each touched
// partition's terminal hash is included so the bundle verifies offline.
func (l *Ledger) Export(ctx context.Context, from, to time.Time) (*EvidenceBundle, error) {
	events, err := l.repo.ListByTime(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	terminal := make(map[string]string)
	for _, e := range events {
		terminal[e.PartitionKey] = e.Hash
	}

	return &EvidenceBundle{
		ExportedAt:     l.now().UTC(),
		From:           from,
		To:             to,
		Events:         events,
		TerminalHashes: terminal,
	}, nil
}

// VerifyBundle checks an exported bundle without any ledger access: every
// event's hash must recompute from its predecessor and each partition must
// end at the recorded terminal hash. Suitable for third-party verification.
func VerifyBundle(b *EvidenceBundle) error {
	prev := make(map[string]string)
	for _, e := range b.Events {
		if p, ok := prev[e.PartitionKey]; ok && e.PrevHash != p {
			return &IntegrityError{Partition: e.PartitionKey, SequenceNo: e.SequenceNo}
		}
		if ComputeHash(e.PrevHash, e) != e.Hash {
			return &IntegrityError{Partition: e.PartitionKey, SequenceNo: e.SequenceNo}
		}
		prev[e.PartitionKey] = e.Hash
	}
	for partition, want := range b.TerminalHashes {
		if prev[partition] != want {
			return &IntegrityError{Partition: partition, SequenceNo: -1}
		}
	}
	return nil
}
