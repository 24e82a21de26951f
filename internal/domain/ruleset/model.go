package ruleset

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/clinrisk/triage/internal/domain/facts"
)

// Tier is the closed risk stratification enum, RED most severe.
type Tier string

const (
	TierRed   Tier = "RED"
	TierAmber Tier = "AMBER"
	TierGreen Tier = "GREEN"
	TierBlue  Tier = "BLUE"
)

var validTiers = map[Tier]bool{
	TierRed:   true,
	TierAmber: true,
	TierGreen: true,
	TierBlue:  true,
}

// ValidTier reports whether t is a member of the closed tier enum.
func ValidTier(t Tier) bool { return validTiers[t] }

// Severity rank for queue ordering; RED highest.
func (t Tier) Rank() int {
	switch t {
	case TierRed:
		return 4
	case TierAmber:
		return 3
	case TierGreen:
		return 2
	case TierBlue:
		return 1
	}
	return 0
}

// Pathway is the closed care pathway enum.
type Pathway string

const (
	PathwayCrisisEscalation      Pathway = "CRISIS_ESCALATION"
	PathwayPsychiatryAssessment  Pathway = "PSYCHIATRY_ASSESSMENT"
	PathwayIntensiveTherapy      Pathway = "INTENSIVE_THERAPY"
	PathwayGuidedSelfHelp        Pathway = "GUIDED_SELF_HELP"
	PathwayWaitingListMonitoring Pathway = "WAITING_LIST_MONITORING"
)

var validPathways = map[Pathway]bool{
	PathwayCrisisEscalation:      true,
	PathwayPsychiatryAssessment:  true,
	PathwayIntensiveTherapy:      true,
	PathwayGuidedSelfHelp:        true,
	PathwayWaitingListMonitoring: true,
}

// ValidPathway reports whether p is a member of the closed pathway enum.
func ValidPathway(p Pathway) bool { return validPathways[p] }

var validOps = map[string]bool{
	"==": true, "!=": true, ">=": true, "<=": true, ">": true, "<": true,
}

var validFlagSeverities = map[string]bool{
	"info": true, "warning": true, "critical": true,
}

// Flag is a typed annotation attached to an outcome, surfaced alongside
// the tier for downstream consumers.
type Flag struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
}

// Outcome is what a matched rule (or the default) assigns to the case.
type Outcome struct {
	Tier        Tier    `json:"tier"`
	Pathway     Pathway `json:"pathway"`
	Flags       []Flag  `json:"flags,omitempty"`
	Explanation string  `json:"explanation"`
}

// Literal wraps facts.Value with JSON encoding for rule documents.
// Only scalar JSON values are legal literals.
type Literal struct {
	facts.Value
}

func (l *Literal) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		l.Value = facts.Bool(v)
	case float64:
		if v != float64(int64(v)) {
			return fmt.Errorf("literal %v: fractional numbers are not comparable facts", v)
		}
		l.Value = facts.Int(int64(v))
	case string:
		l.Value = facts.String(v)
	default:
		return fmt.Errorf("literal must be a bool, integer, or string, got %T", raw)
	}
	return nil
}

func (l Literal) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case facts.KindBool:
		return json.Marshal(l.B)
	case facts.KindInt:
		return json.Marshal(l.I)
	case facts.KindString:
		return json.Marshal(l.S)
	}
	return nil, fmt.Errorf("absent value cannot appear as a rule literal")
}

// Predicate is a node of the rule condition tree. Exactly one of the
// three forms is populated: All (conjunction), Any (disjunction), or a
// leaf comparison (Fact/Op/Value).
type Predicate struct {
	All   []Predicate `json:"all,omitempty"`
	Any   []Predicate `json:"any,omitempty"`
	Fact  string      `json:"fact,omitempty"`
	Op    string      `json:"op,omitempty"`
	Value *Literal    `json:"value,omitempty"`
}

// IsLeaf reports whether the node is a fact comparison.
func (p *Predicate) IsLeaf() bool { return len(p.All) == 0 && len(p.Any) == 0 }

// Rule pairs a condition with the outcome it assigns. Lower priority
// evaluates first.
type Rule struct {
	ID       string    `json:"id"`
	Priority int       `json:"priority"`
	When     Predicate `json:"when"`
	Outcome  Outcome   `json:"outcome"`
}

// Ruleset maps to the ruleset table. Document keeps the full parsed
// definition; rows are immutable once loaded.
type Ruleset struct {
	ID          string    `db:"id" json:"id"`
	Version     int       `db:"version" json:"version"`
	Facts       []string  `json:"facts"`
	Rules       []Rule    `json:"rules"`
	Default     Outcome   `json:"default"`
	SubmittedBy string    `db:"submitted_by" json:"submitted_by"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	LoadedAt    time.Time `db:"loaded_at" json:"loaded_at"`
}

// ActivePointer maps to the ruleset_active singleton row. Reads of the
// active ruleset always resolve through this record.
type ActivePointer struct {
	RulesetID      string    `db:"ruleset_id" json:"ruleset_id"`
	RulesetVersion int       `db:"ruleset_version" json:"ruleset_version"`
	ApprovedBy     string    `db:"approved_by" json:"approved_by"`
	ActivatedAt    time.Time `db:"activated_at" json:"activated_at"`
}
