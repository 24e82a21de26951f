package ruleset

import (
	"context"
	"fmt"
	"strconv"

	"github.com/clinrisk/triage/internal/domain/audit"
	"github.com/clinrisk/triage/internal/platform/auth"
	"github.com/clinrisk/triage/internal/platform/notification"
)

// SelfApprovalError rejects a ruleset activation where the approver is
// the same actor that submitted it.
type SelfApprovalError struct {
	RulesetID string
	Version   int
	ActorID   string
}

func (e *SelfApprovalError) Error() string {
	return fmt.Sprintf("ruleset %s v%d: approver %s is the submitter, activation requires a second person",
		e.RulesetID, e.Version, e.ActorID)
}

// auditor is the slice of the ledger the ruleset lifecycle needs.
type auditor interface {
	Append(ctx context.Context, e *audit.Event) (int64, error)
}

// StaleFlagger marks in-flight draft decisions as computed under a
// superseded ruleset version. Drafts are never auto-recomputed.
type StaleFlagger interface {
	FlagStaleDrafts(ctx context.Context, rulesetID string, activeVersion int) (int, error)
}

type Service struct {
	repo     Repository
	ledger   auditor
	notifier notification.Notifier
	flagger  StaleFlagger
}

func NewService(repo Repository, ledger auditor, notifier notification.Notifier) *Service {
	return &Service{repo: repo, ledger: ledger, notifier: notifier}
}

// SetStaleFlagger wires the draft-flagging collaborator. Optional; set
// after construction to break the dependency cycle with dispositions.
func (s *Service) SetStaleFlagger(f StaleFlagger) { s.flagger = f }

// Load parses, validates, and stores a new ruleset version. The stored
// row records the submitter and content hash for later activation.
func (s *Service) Load(ctx context.Context, src []byte, actor auth.Actor) (*Ruleset, error) {
	rs, err := Parse(src, actor.ID)
	if err != nil {
		return nil, err
	}
	if existing, err := s.repo.Get(ctx, rs.ID, rs.Version); err == nil && existing != nil {
		return nil, fmt.Errorf("ruleset %s v%d already loaded", rs.ID, rs.Version)
	}
	if err := s.repo.Insert(ctx, rs); err != nil {
		return nil, fmt.Errorf("store ruleset %s v%d: %w", rs.ID, rs.Version, err)
	}

	_, err = s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionRulesetLoaded,
		EntityType: "ruleset",
		EntityID:   rulesetEntityID(rs.ID, rs.Version),
		Metadata:   map[string]string{"content_hash": rs.ContentHash},
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Activate moves the active pointer to (id, version). Two-person rule:
// the approver must differ from the recorded submitter.
func (s *Service) Activate(ctx context.Context, id string, version int, approver auth.Actor) error {
	rs, err := s.repo.Get(ctx, id, version)
	if err != nil {
		return fmt.Errorf("ruleset %s v%d not found: %w", id, version, err)
	}
	if rs.SubmittedBy == approver.ID {
		return &SelfApprovalError{RulesetID: id, Version: version, ActorID: approver.ID}
	}

	if err := s.repo.SetActivePointer(ctx, &ActivePointer{
		RulesetID:      id,
		RulesetVersion: version,
		ApprovedBy:     approver.ID,
	}); err != nil {
		return fmt.Errorf("activate ruleset %s v%d: %w", id, version, err)
	}

	_, err = s.ledger.Append(ctx, &audit.Event{
		ActorID:    approver.ID,
		ActorType:  string(approver.Type),
		Action:     audit.ActionRulesetActivated,
		EntityType: "ruleset",
		EntityID:   rulesetEntityID(id, version),
		Metadata: map[string]string{
			"submitted_by": rs.SubmittedBy,
			"approved_by":  approver.ID,
			"content_hash": rs.ContentHash,
		},
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, notification.Alert{
			Kind:       notification.KindRulesetChanged,
			Severity:   notification.SeverityInfo,
			Summary:    fmt.Sprintf("ruleset %s v%d is now active", id, version),
			EntityType: "ruleset",
			EntityID:   rulesetEntityID(id, version),
		})
	}

	if s.flagger != nil {
		flagged, err := s.flagger.FlagStaleDrafts(ctx, id, version)
		if err != nil {
			return fmt.Errorf("flag stale drafts after activating %s v%d: %w", id, version, err)
		}
		if flagged > 0 {
			if _, err := s.ledger.Append(ctx, &audit.Event{
				ActorID:    approver.ID,
				ActorType:  string(approver.Type),
				Action:     audit.ActionDraftsFlaggedStale,
				EntityType: "ruleset",
				EntityID:   rulesetEntityID(id, version),
				Metadata:   map[string]string{"draft_count": strconv.Itoa(flagged)},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetActive resolves the pointer row and returns the ruleset it names.
func (s *Service) GetActive(ctx context.Context) (*Ruleset, error) {
	p, err := s.repo.GetActivePointer(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("no active ruleset")
	}
	return s.repo.Get(ctx, p.RulesetID, p.RulesetVersion)
}

func (s *Service) GetByVersion(ctx context.Context, id string, version int) (*Ruleset, error) {
	return s.repo.Get(ctx, id, version)
}

func (s *Service) List(ctx context.Context, id string) ([]*Ruleset, error) {
	if id == "" {
		return s.repo.ListAll(ctx)
	}
	return s.repo.List(ctx, id)
}

func rulesetEntityID(id string, version int) string {
	return fmt.Sprintf("%s@v%d", id, version)
}
