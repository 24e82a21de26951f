package facts

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/clinrisk/triage/internal/domain/intake"
)

func response(q string, version int, answers string, at time.Time) *intake.QuestionnaireResponse {
	return &intake.QuestionnaireResponse{
		Questionnaire:        q,
		QuestionnaireVersion: version,
		Answers:              json.RawMessage(answers),
		SubmittedAt:          at,
	}
}

func TestExtract_TypedAnswers(t *testing.T) {
	now := time.Now()
	set, err := Extract([]*intake.QuestionnaireResponse{
		response("risk", 3, `{"suicidal_intent_now": true, "self_harm_days": 4, "sleep": "poor"}`, now),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := set.Get("risk.suicidal_intent_now"); !got.Equal(Bool(true)) {
		t.Errorf("expected bool true, got %v", got)
	}
	if got := set.Get("risk.self_harm_days"); !got.Equal(Int(4)) {
		t.Errorf("expected int 4, got %v", got)
	}
	if got := set.Get("risk.sleep"); !got.Equal(String("poor")) {
		t.Errorf("expected string 'poor', got %v", got)
	}
}

func TestExtract_Scores(t *testing.T) {
	set, err := Extract(nil, []*intake.ClinicalScore{
		{Instrument: "phq9", AlgorithmVersion: 2, Total: 17},
		{Instrument: "gad7", AlgorithmVersion: 1, Total: 9},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Get("scores.phq9.total"); !got.Equal(Int(17)) {
		t.Errorf("expected phq9 total 17, got %v", got)
	}
	if got := set.Get("scores.gad7.total"); !got.Equal(Int(9)) {
		t.Errorf("expected gad7 total 9, got %v", got)
	}
}

func TestExtract_NullAnswerStaysAbsent(t *testing.T) {
	set, err := Extract([]*intake.QuestionnaireResponse{
		response("risk", 1, `{"means_access": null}`, time.Now()),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Get("risk.means_access"); !got.IsAbsent() {
		t.Errorf("expected absent, got %v", got)
	}
}

func TestExtract_FractionalNumberIsMalformed(t *testing.T) {
	_, err := Extract([]*intake.QuestionnaireResponse{
		response("risk", 1, `{"self_harm_days": 2.5}`, time.Now()),
	}, nil)

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extErr.Fact != "risk.self_harm_days" {
		t.Errorf("expected offending fact name, got %q", extErr.Fact)
	}
}

func TestExtract_NestedAnswerIsMalformed(t *testing.T) {
	_, err := Extract([]*intake.QuestionnaireResponse{
		response("risk", 1, `{"history": {"attempts": 2}}`, time.Now()),
	}, nil)

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtract_NonObjectAnswersIsMalformed(t *testing.T) {
	_, err := Extract([]*intake.QuestionnaireResponse{
		response("risk", 1, `[1,2,3]`, time.Now()),
	}, nil)
	if err == nil {
		t.Fatal("expected error for non-object answers")
	}
}

func TestExtract_LatestResponseWinsPerFact(t *testing.T) {
	base := time.Now()
	set, err := Extract([]*intake.QuestionnaireResponse{
		response("risk", 2, `{"suicidal_intent_now": true}`, base.Add(time.Hour)),
		response("risk", 1, `{"suicidal_intent_now": false, "suicide_plan": false}`, base),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := set.Get("risk.suicidal_intent_now"); !got.Equal(Bool(true)) {
		t.Errorf("expected latest response to win, got %v", got)
	}
	if got := set.Get("risk.suicide_plan"); !got.Equal(Bool(false)) {
		t.Errorf("expected earlier fact to survive, got %v", got)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	now := time.Now()
	responses := []*intake.QuestionnaireResponse{
		response("risk", 3, `{"b": true, "a": 1, "c": "x"}`, now),
	}
	scores := []*intake.ClinicalScore{{Instrument: "phq9", AlgorithmVersion: 2, Total: 8}}

	first, err := Extract(responses, scores)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Extract(responses, scores)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("extraction not deterministic: %v vs %v", first, second)
	}
}

func TestValue_AbsentNeverEqual(t *testing.T) {
	if Absent().Equal(Absent()) {
		t.Error("absent must not equal absent")
	}
	if Absent().Equal(Bool(true)) || Bool(true).Equal(Absent()) {
		t.Error("absent must not equal a present value")
	}
}

func TestValue_KindMismatchNeverEqual(t *testing.T) {
	if Int(1).Equal(String("1")) {
		t.Error("int and string must not compare equal")
	}
	if Bool(true).Equal(Int(1)) {
		t.Error("bool and int must not compare equal")
	}
}

func TestSet_NamesSorted(t *testing.T) {
	set := Set{"b": Int(1), "a": Int(2), "c": Int(3)}
	got := set.Names()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
