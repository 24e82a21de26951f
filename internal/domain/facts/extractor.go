package facts

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/clinrisk/triage/internal/domain/intake"
)

// ExtractionError reports a structurally malformed input fact. The case stays
// unevaluated; the caller surfaces this rather than retrying.
type ExtractionError struct {
	Fact   string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract fact %q: %s", e.Fact, e.Reason)
}

// Extract normalizes a case's questionnaire responses and clinical scores
// into a fact set. It is a pure function of its inputs: identical responses
// and scores always produce an identical set. Answer facts are named
// "<questionnaire>.<answer key>"; score facts "scores.<instrument>.total".
// When a questionnaire was answered more than once, the latest response wins
// per fact (responses arrive ordered by submission time).
func Extract(responses []*intake.QuestionnaireResponse, scores []*intake.ClinicalScore) (Set, error) {
	set := make(Set)

	// Stable input order keeps extraction deterministic even if the caller
	// passes unsorted slices.
	ordered := make([]*intake.QuestionnaireResponse, len(responses))
	copy(ordered, responses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubmittedAt.Before(ordered[j].SubmittedAt)
	})

	for _, resp := range ordered {
		var answers map[string]json.RawMessage
		if err := json.Unmarshal(resp.Answers, &answers); err != nil {
			return nil, &ExtractionError{
				Fact:   resp.Questionnaire,
				Reason: fmt.Sprintf("answers are not a JSON object: %v", err),
			}
		}

		keys := make([]string, 0, len(answers))
		for k := range answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			name := resp.Questionnaire + "." + key
			value, err := coerce(name, answers[key])
			if err != nil {
				return nil, err
			}
			if value.IsAbsent() {
				continue
			}
			set[name] = value
		}
	}

	for _, sc := range scores {
		set["scores."+sc.Instrument+".total"] = Int(int64(sc.Total))
	}

	return set, nil
}

// coerce maps a raw JSON answer to a typed fact value. Booleans, integral
// numbers, and strings are accepted; null means the question was skipped and
// stays absent. Anything else is malformed input, not a defaultable value.
func coerce(name string, raw json.RawMessage) (Value, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Absent(), &ExtractionError{Fact: name, Reason: err.Error()}
	}

	switch t := v.(type) {
	case nil:
		return Absent(), nil
	case bool:
		return Bool(t), nil
	case float64:
		if t != math.Trunc(t) {
			return Absent(), &ExtractionError{
				Fact:   name,
				Reason: fmt.Sprintf("expected integer, got fractional number %v", t),
			}
		}
		return Int(int64(t)), nil
	case string:
		return String(t), nil
	default:
		return Absent(), &ExtractionError{
			Fact:   name,
			Reason: fmt.Sprintf("unsupported answer type %T", t),
		}
	}
}
