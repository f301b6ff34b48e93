package cache

import (
	language "github.com/hanpama/graphcache/internal/language"
)

// MatchResult is the tri-state outcome of testing a fragment type condition
// against an object's effective type.
type MatchResult int

const (
	// MatchUnknown means the matcher cannot decide; the algorithms apply
	// the fragment conservatively and treat its fields as optional.
	MatchUnknown MatchResult = iota
	// Matched means the condition applies to the type.
	Matched
	// Unmatched means the condition provably does not apply; the fragment
	// subtree is skipped entirely.
	Unmatched
)

// FragmentMatcher decides typed-fragment applicability. typename is the
// effective type of the object or record under consideration ("" when
// unknown); condition is the fragment's type condition ("" for untyped
// fragments).
type FragmentMatcher interface {
	Match(typename, condition string) MatchResult
}

// HeuristicMatcher assumes a fragment matches unless it can be proven
// otherwise, which is never possible without type information: equal names
// match, anything else is unknown.
type HeuristicMatcher struct{}

func (HeuristicMatcher) Match(typename, condition string) MatchResult {
	if condition == "" || typename == condition {
		return Matched
	}
	return MatchUnknown
}

// SchemaMatcher decides applicability from a parsed schema's possible-types
// table, so fragments on interfaces and unions match their concrete member
// types and provably foreign conditions are skipped.
type SchemaMatcher struct {
	schema *language.Schema
}

func NewSchemaMatcher(schema *language.Schema) *SchemaMatcher {
	return &SchemaMatcher{schema: schema}
}

func (m *SchemaMatcher) Match(typename, condition string) MatchResult {
	if condition == "" || typename == condition {
		return Matched
	}
	if typename == "" {
		return MatchUnknown
	}
	if m.schema == nil || m.schema.Types[condition] == nil {
		return MatchUnknown
	}
	for _, def := range m.schema.PossibleTypes[condition] {
		if def.Name == typename {
			return Matched
		}
	}
	return Unmatched
}
