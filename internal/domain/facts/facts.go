// Package facts normalizes raw questionnaire answers and computed clinical
// scores into the flat, typed fact set the rule engine evaluates. Absence is
// an explicit value here: a fact that was never answered never silently
// defaults to something a rule could match on.
package facts

import (
	"fmt"
	"sort"
)

// Kind discriminates the typed fact value union.
type Kind int

const (
	KindAbsent Kind = iota
	KindBool
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "absent"
	}
}

// Value is a typed fact value: boolean, integer, string enum, or absent.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	S    string
}

func Absent() Value          { return Value{Kind: KindAbsent} }
func Bool(b bool) Value      { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value      { return Value{Kind: KindInt, I: i} }
func String(s string) Value  { return Value{Kind: KindString, S: s} }

func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// Equal reports whether two values have the same kind and content. Absent
// never equals anything, including another absent value.
func (v Value) Equal(other Value) bool {
	if v.Kind == KindAbsent || other.Kind == KindAbsent {
		return false
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.B == other.B
	case KindInt:
		return v.I == other.I
	default:
		return v.S == other.S
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindString:
		return v.S
	default:
		return "absent"
	}
}

// Set maps dotted fact names (e.g. "risk.suicidal_intent_now",
// "scores.phq9.total") to typed values. Treat as immutable once extracted.
type Set map[string]Value

// Get returns the fact value, or an explicit Absent value when the fact was
// never extracted.
func (s Set) Get(name string) Value {
	if v, ok := s[name]; ok {
		return v
	}
	return Absent()
}

// Names returns all fact names in lexical order, for deterministic iteration.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
