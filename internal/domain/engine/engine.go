// Package engine evaluates a fact set against a ruleset. Evaluation is
// a pure total function: identical inputs always produce an identical
// Decision, and the mandatory default outcome guarantees a result even
// when no rule matches.
package engine

import (
	"strings"

	"github.com/clinrisk/triage/internal/domain/facts"
	"github.com/clinrisk/triage/internal/domain/ruleset"
)

// Decision is the engine's verdict on a fact set. CaseID and timestamps
// are attached at persistence time; keeping them out of the engine keeps
// re-evaluation byte-identical.
type Decision struct {
	Tier           ruleset.Tier    `json:"tier"`
	Pathway        ruleset.Pathway `json:"pathway"`
	Flags          []ruleset.Flag  `json:"flags,omitempty"`
	RulesFired     []string        `json:"rules_fired"`
	Explanations   []string        `json:"explanations"`
	RulesetID      string          `json:"ruleset_id"`
	RulesetVersion int             `json:"ruleset_version"`
}

// Evaluate walks rules in ascending priority order and stops at the
// first rule whose predicate holds (first-match-wins). An absent fact
// makes any comparison involving it false, never an error. When no rule
// matches, the ruleset's default outcome applies with an empty
// rules_fired list.
func Evaluate(fs facts.Set, rs *ruleset.Ruleset) Decision {
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if holds(&r.When, fs) {
			return Decision{
				Tier:           r.Outcome.Tier,
				Pathway:        r.Outcome.Pathway,
				Flags:          r.Outcome.Flags,
				RulesFired:     []string{r.ID},
				Explanations:   []string{Render(r.Outcome.Explanation, fs)},
				RulesetID:      rs.ID,
				RulesetVersion: rs.Version,
			}
		}
	}
	return Decision{
		Tier:           rs.Default.Tier,
		Pathway:        rs.Default.Pathway,
		Flags:          rs.Default.Flags,
		RulesFired:     []string{},
		Explanations:   []string{Render(rs.Default.Explanation, fs)},
		RulesetID:      rs.ID,
		RulesetVersion: rs.Version,
	}
}

func holds(p *ruleset.Predicate, fs facts.Set) bool {
	switch {
	case len(p.All) > 0:
		for i := range p.All {
			if !holds(&p.All[i], fs) {
				return false
			}
		}
		return true
	case len(p.Any) > 0:
		for i := range p.Any {
			if holds(&p.Any[i], fs) {
				return true
			}
		}
		return false
	default:
		return compare(fs.Get(p.Fact), p.Op, p.Value.Value)
	}
}

// compare applies three-valued comparison semantics: absence on either
// side is false for every operator, as is a kind mismatch. Ordering
// operators are defined for integers only.
func compare(v facts.Value, op string, lit facts.Value) bool {
	if v.IsAbsent() || lit.IsAbsent() {
		return false
	}
	switch op {
	case "==":
		return v.Equal(lit)
	case "!=":
		return v.Kind == lit.Kind && !v.Equal(lit)
	case ">=", "<=", ">", "<":
		if v.Kind != facts.KindInt || lit.Kind != facts.KindInt {
			return false
		}
		switch op {
		case ">=":
			return v.I >= lit.I
		case "<=":
			return v.I <= lit.I
		case ">":
			return v.I > lit.I
		default:
			return v.I < lit.I
		}
	}
	return false
}

// Render fills {fact.name} placeholders in an explanation template with
// the fact's value; an absent fact renders as "absent".
func Render(template string, fs facts.Set) string {
	names := ruleset.TemplateFacts(template)
	if len(names) == 0 {
		return template
	}
	out := template
	for _, name := range names {
		out = strings.ReplaceAll(out, "{"+name+"}", fs.Get(name).String())
	}
	return out
}
