package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinrisk/triage/internal/domain/ruleset"
)

// SLAStatus buckets remaining time against the tier's SLA duration.
type SLAStatus string

const (
	SLANormal   SLAStatus = "normal"
	SLAWarning  SLAStatus = "warning"
	SLACritical SLAStatus = "critical"
	SLABreached SLAStatus = "breached"
)

var validSLAStatuses = map[SLAStatus]bool{
	SLANormal:   true,
	SLAWarning:  true,
	SLACritical: true,
	SLABreached: true,
}

func ValidSLAStatus(s SLAStatus) bool {
	return validSLAStatuses[s]
}

func (s SLAStatus) rank() int {
	switch s {
	case SLABreached:
		return 3
	case SLACritical:
		return 2
	case SLAWarning:
		return 1
	}
	return 0
}

// SLAs maps each tier to its review window.
type SLAs map[ruleset.Tier]time.Duration

// DefaultSLAs returns the standard review windows.
func DefaultSLAs() SLAs {
	return SLAs{
		ruleset.TierRed:   30 * time.Minute,
		ruleset.TierAmber: 4 * time.Hour,
		ruleset.TierGreen: 5 * 24 * time.Hour,
		ruleset.TierBlue:  10 * 24 * time.Hour,
	}
}

// Entry is derived on read; nothing here is stored.
type Entry struct {
	CaseID       uuid.UUID       `json:"case_id"`
	PatientRef   string          `json:"patient_ref"`
	Tier         ruleset.Tier    `json:"tier"`
	Pathway      ruleset.Pathway `json:"pathway"`
	TriagedAt    time.Time       `json:"triaged_at"`
	AgeSeconds   int64           `json:"age_seconds"`
	SLADeadline  time.Time       `json:"sla_deadline"`
	SLAStatus    SLAStatus       `json:"sla_status"`
	RulesetStale bool            `json:"ruleset_stale"`
}

// TierStats aggregates one tier's slice of the queue.
type TierStats struct {
	Count    int        `json:"count"`
	Breached int        `json:"breached"`
	Oldest   *time.Time `json:"oldest,omitempty"`
}

// Stats is the whole-queue aggregate, recomputed per query.
type Stats struct {
	Total    int                        `json:"total"`
	Breached int                        `json:"breached"`
	ByTier   map[ruleset.Tier]TierStats `json:"by_tier"`
}
