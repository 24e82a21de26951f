package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenesisHash is the prev_hash of the first event in every partition.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Actions recorded by the core. Collaborators reading the event stream key
// off these values, so they are part of the external contract.
const (
	ActionFactsExtracted     = "facts.extracted"
	ActionExtractionFailed   = "facts.extraction_failed"
	ActionDecisionComputed   = "decision.computed"
	ActionDraftSuperseded    = "decision.draft_superseded"
	ActionDraftConfirmed     = "disposition.confirmed"
	ActionDraftOverridden    = "disposition.overridden"
	ActionCaseEscalated      = "case.escalated"
	ActionRulesetLoaded      = "ruleset.loaded"
	ActionRulesetActivated   = "ruleset.activated"
	ActionDraftsFlaggedStale = "decision.flagged_stale"
)

// Event is one link in the hash-chained audit ledger. Events are created
// once and never mutated or deleted; the only undo is a compensating event.
type Event struct {
	PartitionKey string            `db:"partition_key" json:"partition_key"`
	SequenceNo   int64             `db:"sequence_no" json:"sequence_no"`
	PrevHash     string            `db:"prev_hash" json:"prev_hash"`
	Hash         string            `db:"hash" json:"hash"`
	ActorID      string            `db:"actor_id" json:"actor_id"`
	ActorType    string            `db:"actor_type" json:"actor_type"`
	Action       string            `db:"action" json:"action"`
	EntityType   string            `db:"entity_type" json:"entity_type"`
	EntityID     string            `db:"entity_id" json:"entity_id"`
	Metadata     map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

// canonicalPayload serializes the hashed event fields in a fixed order with
// sorted metadata keys, so the same event always hashes identically.
func canonicalPayload(e *Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%s|%s|%s|%s|%s|",
		e.PartitionKey, e.SequenceNo, e.ActorID, e.ActorType,
		e.Action, e.EntityType, e.EntityID)

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, e.Metadata[k])
	}

	fmt.Fprintf(&b, "|%s", e.CreatedAt.UTC().Format(time.RFC3339Nano))
	return b.String()
}

// ComputeHash derives an event's chain hash from its predecessor's hash and
// its own canonical serialization.
func ComputeHash(prevHash string, e *Event) string {
	sum := sha256.Sum256([]byte(prevHash + "|" + canonicalPayload(e)))
	return hex.EncodeToString(sum[:])
}

// PartitionFor returns the day-bucketed partition key used when the caller
// does not pin one explicitly. Day partitions bound append contention while
// keeping each chain short enough to verify cheaply.
func PartitionFor(t time.Time) string {
	return "ledger-" + t.UTC().Format("2006-01-02")
}

// EvidenceBundle is an exportable slice of the ledger a third party can
// verify offline: the events plus each partition's terminal hash.
type EvidenceBundle struct {
	ExportedAt     time.Time         `json:"exported_at"`
	From           time.Time         `json:"from"`
	To             time.Time         `json:"to"`
	Events         []*Event          `json:"events"`
	TerminalHashes map[string]string `json:"terminal_hashes"`
}
