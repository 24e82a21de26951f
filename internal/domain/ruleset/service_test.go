package ruleset

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/clinrisk/triage/internal/domain/audit"
	"github.com/clinrisk/triage/internal/platform/auth"
	"github.com/clinrisk/triage/internal/platform/notification"
)

type mockRepo struct {
	rulesets map[string]*Ruleset
	pointer  *ActivePointer
}

func newMockRepo() *mockRepo {
	return &mockRepo{rulesets: make(map[string]*Ruleset)}
}

func key(id string, version int) string { return fmt.Sprintf("%s@%d", id, version) }

func (m *mockRepo) Insert(_ context.Context, rs *Ruleset) error {
	rs.LoadedAt = time.Now()
	m.rulesets[key(rs.ID, rs.Version)] = rs
	return nil
}

func (m *mockRepo) Get(_ context.Context, id string, version int) (*Ruleset, error) {
	rs, ok := m.rulesets[key(id, version)]
	if !ok {
		return nil, errors.New("not found")
	}
	return rs, nil
}

func (m *mockRepo) List(_ context.Context, id string) ([]*Ruleset, error) {
	var out []*Ruleset
	for _, rs := range m.rulesets {
		if rs.ID == id {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (m *mockRepo) ListAll(_ context.Context) ([]*Ruleset, error) {
	var out []*Ruleset
	for _, rs := range m.rulesets {
		out = append(out, rs)
	}
	return out, nil
}

func (m *mockRepo) GetActivePointer(_ context.Context) (*ActivePointer, error) {
	return m.pointer, nil
}

func (m *mockRepo) SetActivePointer(_ context.Context, p *ActivePointer) error {
	p.ActivatedAt = time.Now()
	m.pointer = p
	return nil
}

type mockLedger struct{ events []*audit.Event }

func (m *mockLedger) Append(_ context.Context, e *audit.Event) (int64, error) {
	m.events = append(m.events, e)
	return int64(len(m.events)), nil
}

func (m *mockLedger) lastAction() string {
	if len(m.events) == 0 {
		return ""
	}
	return m.events[len(m.events)-1].Action
}

type mockFlagger struct {
	calls   int
	flagged int
}

func (m *mockFlagger) FlagStaleDrafts(_ context.Context, _ string, _ int) (int, error) {
	m.calls++
	return m.flagged, nil
}

func submitter() auth.Actor {
	return auth.Actor{ID: "clin-1", Name: "Dr. Reyes", Type: auth.ActorTypeClinician, Roles: []string{"rules-admin"}}
}

func approver() auth.Actor {
	return auth.Actor{ID: "clin-2", Name: "Dr. Okafor", Type: auth.ActorTypeClinician, Roles: []string{"rules-admin"}}
}

func TestLoad_StoresAndAudits(t *testing.T) {
	repo := newMockRepo()
	ledger := &mockLedger{}
	svc := NewService(repo, ledger, nil)

	rs, err := svc.Load(context.Background(), []byte(validDoc), submitter())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.rulesets[key(rs.ID, rs.Version)]; !ok {
		t.Error("ruleset not persisted")
	}
	if ledger.lastAction() != audit.ActionRulesetLoaded {
		t.Errorf("expected load audit event, got %q", ledger.lastAction())
	}
	if ledger.events[0].Metadata["content_hash"] != rs.ContentHash {
		t.Error("audit event must carry the content hash")
	}
}

func TestLoad_RejectsDuplicateVersion(t *testing.T) {
	svc := NewService(newMockRepo(), &mockLedger{}, nil)
	if _, err := svc.Load(context.Background(), []byte(validDoc), submitter()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := svc.Load(context.Background(), []byte(validDoc), submitter()); err == nil {
		t.Error("expected duplicate version rejection")
	}
}

func TestActivate_SelfApprovalBlocked(t *testing.T) {
	repo := newMockRepo()
	ledger := &mockLedger{}
	svc := NewService(repo, ledger, nil)
	if _, err := svc.Load(context.Background(), []byte(validDoc), submitter()); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := len(ledger.events)

	err := svc.Activate(context.Background(), "adult-referral", 1, submitter())
	var selfErr *SelfApprovalError
	if !errors.As(err, &selfErr) {
		t.Fatalf("expected SelfApprovalError, got %v", err)
	}
	if repo.pointer != nil {
		t.Error("self-approval must not move the active pointer")
	}
	if len(ledger.events) != before {
		t.Error("self-approval must not audit an activation")
	}
}

func TestActivate_SecondPerson(t *testing.T) {
	repo := newMockRepo()
	ledger := &mockLedger{}
	hub := notification.NewHub()
	flagger := &mockFlagger{flagged: 2}
	svc := NewService(repo, ledger, hub)
	svc.SetStaleFlagger(flagger)

	rs, err := svc.Load(context.Background(), []byte(validDoc), submitter())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := svc.Activate(context.Background(), rs.ID, rs.Version, approver()); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if repo.pointer == nil || repo.pointer.RulesetID != rs.ID || repo.pointer.RulesetVersion != rs.Version {
		t.Fatalf("pointer not set: %+v", repo.pointer)
	}
	if repo.pointer.ApprovedBy != "clin-2" {
		t.Errorf("expected approver recorded, got %s", repo.pointer.ApprovedBy)
	}

	var activated *audit.Event
	for _, e := range ledger.events {
		if e.Action == audit.ActionRulesetActivated {
			activated = e
		}
	}
	if activated == nil {
		t.Fatal("no activation audit event")
	}
	if activated.Metadata["submitted_by"] != "clin-1" ||
		activated.Metadata["approved_by"] != "clin-2" ||
		activated.Metadata["content_hash"] != rs.ContentHash {
		t.Errorf("activation metadata incomplete: %+v", activated.Metadata)
	}

	alerts := hub.History()
	if len(alerts) != 1 || alerts[0].Kind != notification.KindRulesetChanged {
		t.Errorf("expected rulesetChanged alert, got %+v", alerts)
	}
	if flagger.calls != 1 {
		t.Errorf("expected stale flagger invoked once, got %d", flagger.calls)
	}
	if ledger.lastAction() != audit.ActionDraftsFlaggedStale {
		t.Errorf("expected flagged-stale audit event, got %q", ledger.lastAction())
	}
}

func TestGetActive(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &mockLedger{}, nil)

	if _, err := svc.GetActive(context.Background()); err == nil {
		t.Error("expected error when no pointer exists")
	}

	rs, err := svc.Load(context.Background(), []byte(validDoc), submitter())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := svc.Activate(context.Background(), rs.ID, rs.Version, approver()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, err := svc.GetActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active.ID != rs.ID || active.Version != rs.Version {
		t.Errorf("resolved wrong ruleset: %s v%d", active.ID, active.Version)
	}
}
