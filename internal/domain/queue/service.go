package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinrisk/triage/internal/domain/ruleset"
	"github.com/clinrisk/triage/internal/platform/notification"
)

type Service struct {
	repo     Repository
	slas     SLAs
	notifier notification.Notifier
	now      func() time.Time

	// alertedMu guards alerted, the set of case ids already paged for an
	// SLA breach. A case re-pages only after leaving the breached set.
	alertedMu sync.Mutex
	alerted   map[uuid.UUID]bool
}

func NewService(repo Repository, slas SLAs, notifier notification.Notifier) *Service {
	if slas == nil {
		slas = DefaultSLAs()
	}
	return &Service{
		repo:     repo,
		slas:     slas,
		notifier: notifier,
		now:      time.Now,
		alerted:  make(map[uuid.UUID]bool),
	}
}

// Filter narrows the queue; zero value means everything.
type Filter struct {
	Tier   ruleset.Tier
	Status SLAStatus
}

// Queue derives entries for every draft-pending case, sorted by tier
// severity, then SLA urgency, then age. Nothing is persisted.
func (s *Service) Queue(ctx context.Context, f Filter) ([]*Entry, error) {
	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	entries := make([]*Entry, 0, len(pending))
	for _, p := range pending {
		e := s.entry(p, now)
		if f.Tier != "" && e.Tier != f.Tier {
			continue
		}
		if f.Status != "" && e.SLAStatus != f.Status {
			continue
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() > b.Tier.Rank()
		}
		if a.SLAStatus.rank() != b.SLAStatus.rank() {
			return a.SLAStatus.rank() > b.SLAStatus.rank()
		}
		return a.AgeSeconds > b.AgeSeconds
	})
	return entries, nil
}

func (s *Service) entry(p *PendingCase, now time.Time) *Entry {
	duration := s.slas[p.Tier]
	deadline := p.TriagedAt.Add(duration)
	return &Entry{
		CaseID:       p.CaseID,
		PatientRef:   p.PatientRef,
		Tier:         p.Tier,
		Pathway:      p.Pathway,
		TriagedAt:    p.TriagedAt,
		AgeSeconds:   int64(now.Sub(p.TriagedAt).Seconds()),
		SLADeadline:  deadline,
		SLAStatus:    bucket(now, deadline, duration),
		RulesetStale: p.RulesetStale,
	}
}

// bucket classifies by the remaining fraction of the SLA window.
func bucket(now, deadline time.Time, duration time.Duration) SLAStatus {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return SLABreached
	}
	frac := float64(remaining) / float64(duration)
	switch {
	case frac <= 0.10:
		return SLACritical
	case frac <= 0.25:
		return SLAWarning
	default:
		return SLANormal
	}
}

// GetStats recomputes the queue aggregates.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, err := s.Queue(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByTier: make(map[ruleset.Tier]TierStats)}
	for _, e := range entries {
		stats.Total++
		ts := stats.ByTier[e.Tier]
		ts.Count++
		if e.SLAStatus == SLABreached {
			stats.Breached++
			ts.Breached++
		}
		if ts.Oldest == nil || e.TriagedAt.Before(*ts.Oldest) {
			triaged := e.TriagedAt
			ts.Oldest = &triaged
		}
		stats.ByTier[e.Tier] = ts
	}
	return stats, nil
}

// CheckBreaches raises an operator alert for every newly breached entry and
// returns how many alerts were raised. Run periodically by the server loop;
// a case already alerted stays silent until it leaves the breached set.
func (s *Service) CheckBreaches(ctx context.Context) (int, error) {
	entries, err := s.Queue(ctx, Filter{Status: SLABreached})
	if err != nil {
		return 0, err
	}

	s.alertedMu.Lock()
	alerted := make(map[uuid.UUID]bool, len(entries))
	fresh := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if s.alerted[e.CaseID] {
			alerted[e.CaseID] = true
			continue
		}
		alerted[e.CaseID] = true
		fresh = append(fresh, e)
	}
	s.alerted = alerted
	s.alertedMu.Unlock()

	if s.notifier == nil {
		return len(fresh), nil
	}
	for _, e := range fresh {
		severity := notification.SeverityWarning
		if e.Tier == ruleset.TierRed {
			severity = notification.SeverityCritical
		}
		_ = s.notifier.Notify(ctx, notification.Alert{
			Kind:       notification.KindSLABreach,
			Severity:   severity,
			Summary:    fmt.Sprintf("case %s (%s) breached its review SLA", e.CaseID, e.Tier),
			EntityType: "case",
			EntityID:   e.CaseID.String(),
		})
	}
	return len(fresh), nil
}
