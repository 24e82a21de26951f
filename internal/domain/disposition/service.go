package disposition

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinrisk/triage/internal/domain/audit"
	"github.com/clinrisk/triage/internal/domain/engine"
	"github.com/clinrisk/triage/internal/domain/facts"
	"github.com/clinrisk/triage/internal/domain/intake"
	"github.com/clinrisk/triage/internal/domain/ruleset"
	"github.com/clinrisk/triage/internal/platform/auth"
	"github.com/clinrisk/triage/internal/platform/notification"
)

// activeResolver is the slice of the ruleset service evaluation needs.
type activeResolver interface {
	GetActive(ctx context.Context) (*ruleset.Ruleset, error)
}

type auditor interface {
	Append(ctx context.Context, e *audit.Event) (int64, error)
}

// TxRunner wraps fn in a database transaction. A nil runner executes fn
// directly, which keeps unit tests free of transaction plumbing.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

type Service struct {
	repo     Repository
	cases    intake.Repository
	rulesets activeResolver
	ledger   auditor
	notifier notification.Notifier
	locks    *caseLocks
	inTx     TxRunner
	now      func() time.Time
}

func NewService(repo Repository, cases intake.Repository, rulesets activeResolver,
	ledger auditor, notifier notification.Notifier, inTx TxRunner) *Service {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		repo:     repo,
		cases:    cases,
		rulesets: rulesets,
		ledger:   ledger,
		notifier: notifier,
		locks:    newCaseLocks(),
		inTx:     inTx,
		now:      time.Now,
	}
}

// ExtractAndEvaluate loads the case's responses and scores, extracts
// facts, evaluates them against the active ruleset, and stores the
// result as the case's draft decision, superseding any previous draft.
func (s *Service) ExtractAndEvaluate(ctx context.Context, caseID uuid.UUID, actor auth.Actor) (*Decision, error) {
	if !s.locks.TryAcquire(caseID) {
		return nil, &ConcurrencyConflict{CaseID: caseID.String()}
	}
	defer s.locks.Release(caseID)

	c, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", caseID, err)
	}
	if c.Status == intake.CaseStatusFinalized || c.Status == intake.CaseStatusEscalated {
		return nil, &ValidationError{Field: "case", Reason: "already finalized; escalate to open a new cycle"}
	}

	responses, err := s.cases.ListResponses(ctx, caseID)
	if err != nil {
		return nil, err
	}
	scores, err := s.cases.ListScores(ctx, caseID)
	if err != nil {
		return nil, err
	}

	fs, err := facts.Extract(responses, scores)
	if err != nil {
		s.recordExtractionFailure(ctx, caseID, actor, err)
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionFactsExtracted,
		EntityType: "case",
		EntityID:   caseID.String(),
		Metadata:   map[string]string{"fact_count": strconv.Itoa(len(fs))},
	}); err != nil {
		return nil, err
	}

	rs, err := s.rulesets.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	verdict := engine.Evaluate(fs, rs)

	decision := &Decision{
		CaseID:         caseID,
		Tier:           verdict.Tier,
		Pathway:        verdict.Pathway,
		RulesFired:     verdict.RulesFired,
		Explanations:   verdict.Explanations,
		RulesetID:      verdict.RulesetID,
		RulesetVersion: verdict.RulesetVersion,
		Status:         DecisionStatusDraft,
		ComputedAt:     s.now().UTC(),
	}

	var superseded *Decision
	err = s.inTx(ctx, func(ctx context.Context) error {
		prev, err := s.repo.GetDraft(ctx, caseID)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := s.repo.SetDecisionStatus(ctx, prev.ID, DecisionStatusSuperseded); err != nil {
				return err
			}
			superseded = prev
		}
		if err := s.repo.InsertDecision(ctx, decision); err != nil {
			return err
		}
		if err := s.cases.UpdateCaseStatus(ctx, caseID, intake.CaseStatusDraftPending); err != nil {
			return err
		}
		return s.cases.SetRulesetStale(ctx, caseID, false)
	})
	if err != nil {
		return nil, fmt.Errorf("store draft decision for case %s: %w", caseID, err)
	}

	if superseded != nil {
		if _, err := s.ledger.Append(ctx, &audit.Event{
			ActorID:    actor.ID,
			ActorType:  string(actor.Type),
			Action:     audit.ActionDraftSuperseded,
			EntityType: "case",
			EntityID:   caseID.String(),
			Metadata:   map[string]string{"decision_id": superseded.ID.String()},
		}); err != nil {
			return nil, err
		}
	}
	if _, err := s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionDecisionComputed,
		EntityType: "case",
		EntityID:   caseID.String(),
		Metadata: map[string]string{
			"decision_id":     decision.ID.String(),
			"tier":            string(decision.Tier),
			"pathway":         string(decision.Pathway),
			"ruleset":         fmt.Sprintf("%s@v%d", decision.RulesetID, decision.RulesetVersion),
			"rules_fired":     strings.Join(decision.RulesFired, ","),
		},
	}); err != nil {
		return nil, err
	}

	if decision.Tier == ruleset.TierRed && s.notifier != nil {
		_ = s.notifier.Notify(ctx, notification.Alert{
			Kind:       notification.KindCrisisEscalation,
			Severity:   notification.SeverityCritical,
			Summary:    fmt.Sprintf("case %s triaged RED (%s)", caseID, decision.Pathway),
			EntityType: "case",
			EntityID:   caseID.String(),
		})
	}
	return decision, nil
}

// recordExtractionFailure leaves the case unevaluated but writes the
// failure record and raises an operator alert.
func (s *Service) recordExtractionFailure(ctx context.Context, caseID uuid.UUID, actor auth.Actor, cause error) {
	_, _ = s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionExtractionFailed,
		EntityType: "case",
		EntityID:   caseID.String(),
		Metadata:   map[string]string{"reason": cause.Error()},
	})
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, notification.Alert{
			Kind:       notification.KindExtractionFailure,
			Severity:   notification.SeverityWarning,
			Summary:    fmt.Sprintf("fact extraction failed for case %s: %v", caseID, cause),
			EntityType: "case",
			EntityID:   caseID.String(),
		})
	}
}

// Confirm seals the draft decision as the case's final disposition,
// unchanged. No rationale is recorded for a plain confirmation.
func (s *Service) Confirm(ctx context.Context, caseID uuid.UUID, actor auth.Actor, notes *string) (*Disposition, error) {
	if !s.locks.TryAcquire(caseID) {
		return nil, &ConcurrencyConflict{CaseID: caseID.String()}
	}
	defer s.locks.Release(caseID)

	draft, err := s.finalizableDraft(ctx, caseID)
	if err != nil {
		return nil, err
	}

	d := &Disposition{
		CaseID:          caseID,
		DecisionID:      draft.ID,
		IsOverride:      false,
		OriginalTier:    draft.Tier,
		OriginalPathway: draft.Pathway,
		FinalTier:       draft.Tier,
		FinalPathway:    draft.Pathway,
		ClinicalNotes:   notes,
		SelfBookAllowed: selfBookAllowed(draft.Tier),
		FinalizedBy:     actor.ID,
		FinalizedAt:     s.now().UTC(),
	}
	if err := s.finalize(ctx, draft, d); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionDraftConfirmed,
		EntityType: "case",
		EntityID:   caseID.String(),
		Metadata: map[string]string{
			"tier":              string(d.FinalTier),
			"pathway":           string(d.FinalPathway),
			"self_book_allowed": strconv.FormatBool(d.SelfBookAllowed),
		},
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// Override seals the case with a clinician-chosen tier and pathway in
// place of the draft's. Input is validated before any state changes.
func (s *Service) Override(ctx context.Context, caseID uuid.UUID, actor auth.Actor,
	newTier ruleset.Tier, newPathway ruleset.Pathway, rationale string, notes *string) (*Disposition, error) {

	if !ruleset.ValidTier(newTier) {
		return nil, &ValidationError{Field: "tier", Reason: fmt.Sprintf("%q is not a valid tier", newTier)}
	}
	if !ruleset.ValidPathway(newPathway) {
		return nil, &ValidationError{Field: "pathway", Reason: fmt.Sprintf("%q is not a valid pathway", newPathway)}
	}
	rationale = strings.TrimSpace(rationale)
	if utf8.RuneCountInString(rationale) < 10 {
		return nil, &ValidationError{Field: "rationale", Reason: "override rationale must be at least 10 characters"}
	}

	if !s.locks.TryAcquire(caseID) {
		return nil, &ConcurrencyConflict{CaseID: caseID.String()}
	}
	defer s.locks.Release(caseID)

	draft, err := s.finalizableDraft(ctx, caseID)
	if err != nil {
		return nil, err
	}

	d := &Disposition{
		CaseID:          caseID,
		DecisionID:      draft.ID,
		IsOverride:      true,
		OriginalTier:    draft.Tier,
		OriginalPathway: draft.Pathway,
		FinalTier:       newTier,
		FinalPathway:    newPathway,
		Rationale:       &rationale,
		ClinicalNotes:   notes,
		SelfBookAllowed: selfBookAllowed(newTier),
		FinalizedBy:     actor.ID,
		FinalizedAt:     s.now().UTC(),
	}
	if err := s.finalize(ctx, draft, d); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionDraftOverridden,
		EntityType: "case",
		EntityID:   caseID.String(),
		Metadata: map[string]string{
			"original_tier":     string(d.OriginalTier),
			"original_pathway":  string(d.OriginalPathway),
			"final_tier":        string(d.FinalTier),
			"final_pathway":     string(d.FinalPathway),
			"self_book_allowed": strconv.FormatBool(d.SelfBookAllowed),
		},
	}); err != nil {
		return nil, err
	}
	return d, nil
}

// finalizableDraft fetches the case's draft and rejects cases that are
// already sealed.
func (s *Service) finalizableDraft(ctx context.Context, caseID uuid.UUID) (*Decision, error) {
	existing, err := s.repo.GetDisposition(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &ValidationError{Field: "case", Reason: "disposition already sealed; escalate to open a new cycle"}
	}
	draft, err := s.repo.GetDraft(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, &ValidationError{Field: "case", Reason: "no draft decision to finalize"}
	}
	return draft, nil
}

func (s *Service) finalize(ctx context.Context, draft *Decision, d *Disposition) error {
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SetDecisionStatus(ctx, draft.ID, DecisionStatusFinal); err != nil {
			return err
		}
		if err := s.repo.InsertDisposition(ctx, d); err != nil {
			return err
		}
		return s.cases.UpdateCaseStatus(ctx, d.CaseID, intake.CaseStatusFinalized)
	})
	if err != nil {
		return fmt.Errorf("seal disposition for case %s: %w", d.CaseID, err)
	}
	return nil
}

// Escalate opens a fresh decision cycle linked to a sealed case. The
// sealed disposition is never modified.
func (s *Service) Escalate(ctx context.Context, caseID uuid.UUID, actor auth.Actor, reason string) (*intake.Case, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "escalation reason is required"}
	}

	if !s.locks.TryAcquire(caseID) {
		return nil, &ConcurrencyConflict{CaseID: caseID.String()}
	}
	defer s.locks.Release(caseID)

	c, err := s.cases.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", caseID, err)
	}
	if c.Status != intake.CaseStatusFinalized {
		return nil, &ValidationError{Field: "case", Reason: "only a finalized case can be escalated"}
	}

	next := &intake.Case{
		PatientRef:    c.PatientRef,
		Status:        intake.CaseStatusNoDraft,
		EscalatedFrom: &c.ID,
	}
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.cases.CreateCase(ctx, next); err != nil {
			return err
		}
		return s.cases.UpdateCaseStatus(ctx, caseID, intake.CaseStatusEscalated)
	})
	if err != nil {
		return nil, fmt.Errorf("escalate case %s: %w", caseID, err)
	}

	if _, err := s.ledger.Append(ctx, &audit.Event{
		ActorID:    actor.ID,
		ActorType:  string(actor.Type),
		Action:     audit.ActionCaseEscalated,
		EntityType: "case",
		EntityID:   caseID.String(),
		Metadata:   map[string]string{"new_case_id": next.ID.String(), "reason": reason},
	}); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		_ = s.notifier.Notify(ctx, notification.Alert{
			Kind:       notification.KindCrisisEscalation,
			Severity:   notification.SeverityWarning,
			Summary:    fmt.Sprintf("case %s escalated: %s", caseID, reason),
			EntityType: "case",
			EntityID:   caseID.String(),
		})
	}
	return next, nil
}

// FlagStaleDrafts implements ruleset.StaleFlagger: drafts computed under
// an older version are marked stale, never auto-recomputed.
func (s *Service) FlagStaleDrafts(ctx context.Context, rulesetID string, activeVersion int) (int, error) {
	ids, err := s.repo.FlagStaleDrafts(ctx, rulesetID, activeVersion)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// GetDecision returns the case's draft if one is pending, otherwise the
// final decision.
func (s *Service) GetDecision(ctx context.Context, caseID uuid.UUID) (*Decision, error) {
	if draft, err := s.repo.GetDraft(ctx, caseID); err != nil {
		return nil, err
	} else if draft != nil {
		return draft, nil
	}
	final, err := s.repo.GetFinal(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, fmt.Errorf("case %s has no decision", caseID)
	}
	return final, nil
}

func (s *Service) GetDisposition(ctx context.Context, caseID uuid.UUID) (*Disposition, error) {
	d, err := s.repo.GetDisposition(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("case %s has no disposition", caseID)
	}
	return d, nil
}
