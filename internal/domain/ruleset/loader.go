package ruleset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// document is the on-disk / on-wire ruleset shape.
type document struct {
	ID      string   `json:"id"`
	Version int      `json:"version"`
	Facts   []string `json:"facts"`
	Rules   []Rule   `json:"rules"`
	Default *Outcome `json:"default"`
}

// Parse parses and structurally validates a ruleset document. The
// returned Ruleset carries the content hash of the canonical form so
// activation and audit can attest to exactly what was loaded.
func Parse(src []byte, submittedBy string) (*Ruleset, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}

	if doc.ID == "" {
		return nil, fmt.Errorf("ruleset id is required")
	}
	if doc.Version < 1 {
		return nil, fmt.Errorf("ruleset %s: version must be >= 1", doc.ID)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("ruleset %s: at least one rule is required", doc.ID)
	}
	if doc.Default == nil {
		return nil, fmt.Errorf("ruleset %s: default outcome is required", doc.ID)
	}

	declared := make(map[string]bool, len(doc.Facts))
	for _, name := range doc.Facts {
		if name == "" {
			return nil, fmt.Errorf("ruleset %s: empty fact name declared", doc.ID)
		}
		if declared[name] {
			return nil, fmt.Errorf("ruleset %s: fact %q declared twice", doc.ID, name)
		}
		declared[name] = true
	}

	seenIDs := make(map[string]bool, len(doc.Rules))
	seenPriorities := make(map[int]string, len(doc.Rules))
	for i := range doc.Rules {
		r := &doc.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("ruleset %s: rule at index %d has no id", doc.ID, i)
		}
		if seenIDs[r.ID] {
			return nil, fmt.Errorf("ruleset %s: duplicate rule id %q", doc.ID, r.ID)
		}
		seenIDs[r.ID] = true
		if prev, dup := seenPriorities[r.Priority]; dup {
			return nil, fmt.Errorf("ruleset %s: rules %q and %q share priority %d",
				doc.ID, prev, r.ID, r.Priority)
		}
		seenPriorities[r.Priority] = r.ID
		if err := validatePredicate(&r.When, declared); err != nil {
			return nil, fmt.Errorf("ruleset %s: rule %q: %w", doc.ID, r.ID, err)
		}
		if err := validateOutcome(&r.Outcome, declared); err != nil {
			return nil, fmt.Errorf("ruleset %s: rule %q: %w", doc.ID, r.ID, err)
		}
	}
	if err := validateOutcome(doc.Default, declared); err != nil {
		return nil, fmt.Errorf("ruleset %s: default outcome: %w", doc.ID, err)
	}

	// Rules are stored in evaluation order so downstream consumers never
	// re-sort.
	sort.SliceStable(doc.Rules, func(i, j int) bool {
		return doc.Rules[i].Priority < doc.Rules[j].Priority
	})

	hash, err := contentHash(src)
	if err != nil {
		return nil, err
	}

	return &Ruleset{
		ID:          doc.ID,
		Version:     doc.Version,
		Facts:       doc.Facts,
		Rules:       doc.Rules,
		Default:     *doc.Default,
		SubmittedBy: submittedBy,
		ContentHash: hash,
	}, nil
}

func validatePredicate(p *Predicate, declared map[string]bool) error {
	branches := 0
	if len(p.All) > 0 {
		branches++
	}
	if len(p.Any) > 0 {
		branches++
	}
	if p.Fact != "" || p.Op != "" || p.Value != nil {
		branches++
	}
	if branches != 1 {
		return fmt.Errorf("predicate node must be exactly one of all/any/comparison")
	}

	switch {
	case len(p.All) > 0:
		for i := range p.All {
			if err := validatePredicate(&p.All[i], declared); err != nil {
				return err
			}
		}
	case len(p.Any) > 0:
		for i := range p.Any {
			if err := validatePredicate(&p.Any[i], declared); err != nil {
				return err
			}
		}
	default:
		if p.Fact == "" {
			return fmt.Errorf("comparison is missing a fact name")
		}
		if !declared[p.Fact] {
			return fmt.Errorf("comparison references undeclared fact %q", p.Fact)
		}
		if !validOps[p.Op] {
			return fmt.Errorf("unknown operator %q for fact %q", p.Op, p.Fact)
		}
		if p.Value == nil {
			return fmt.Errorf("comparison on fact %q has no literal", p.Fact)
		}
	}
	return nil
}

func validateOutcome(o *Outcome, declared map[string]bool) error {
	if !ValidTier(o.Tier) {
		return fmt.Errorf("invalid tier %q", o.Tier)
	}
	if !ValidPathway(o.Pathway) {
		return fmt.Errorf("invalid pathway %q", o.Pathway)
	}
	for _, f := range o.Flags {
		if f.Code == "" {
			return fmt.Errorf("flag with empty code")
		}
		if !validFlagSeverities[f.Severity] {
			return fmt.Errorf("flag %q: invalid severity %q", f.Code, f.Severity)
		}
	}
	if o.Explanation == "" {
		return fmt.Errorf("explanation template is required")
	}
	for _, name := range TemplateFacts(o.Explanation) {
		if !declared[name] {
			return fmt.Errorf("explanation references undeclared fact %q", name)
		}
	}
	return nil
}

// TemplateFacts returns the {fact.name} placeholders in a template, in
// order of appearance.
func TemplateFacts(template string) []string {
	var names []string
	for {
		open := strings.IndexByte(template, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			return names
		}
		name := template[open+1 : open+end]
		if name != "" {
			names = append(names, name)
		}
		template = template[open+end+1:]
	}
}

// contentHash hashes the canonical (key-sorted, compact) JSON form so
// that formatting differences never produce distinct versions.
func contentHash(src []byte) (string, error) {
	var generic interface{}
	if err := json.Unmarshal(src, &generic); err != nil {
		return "", fmt.Errorf("canonicalize ruleset: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canonicalize ruleset: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
