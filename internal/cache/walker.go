package cache

import (
	language "github.com/hanpama/graphcache/internal/language"
)

// fieldGroup is one response key's worth of selection: every occurrence of
// the field at this level, merged in query order. Repeated selections of the
// same response key concatenate their sub-selections rather than replacing
// each other.
type fieldGroup struct {
	ResponseName string
	StoreKey     string
	Arguments    map[string]any
	Fields       []*language.Field

	// direct is true when at least one occurrence was selected outside any
	// fragment. Fields reached only through fragments are optional: their
	// absence from data or store is never an error.
	direct bool
}

// groupedFields preserves field order from the original query.
type groupedFields struct {
	groups []*fieldGroup
	index  map[string]int
}

func newGroupedFields() *groupedFields {
	return &groupedFields{index: make(map[string]int)}
}

func (gf *groupedFields) add(responseName string, field *language.Field, direct bool) {
	if idx, exists := gf.index[responseName]; exists {
		g := gf.groups[idx]
		g.Fields = append(g.Fields, field)
		g.direct = g.direct || direct
		return
	}
	gf.index[responseName] = len(gf.groups)
	gf.groups = append(gf.groups, &fieldGroup{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
		direct:       direct,
	})
}

// walkEnv carries the per-operation inputs every expansion needs.
type walkEnv struct {
	variables map[string]any
	fragments language.FragmentDefinitionList
	matcher   FragmentMatcher
}

// collectFields expands one object level of a selection set into ordered
// field groups: aliases resolved, @skip/@include applied recursively,
// fragments inlined per the matcher's verdict on typename, repeated
// selections merged. Store keys are resolved against the variable bindings.
func collectFields(env walkEnv, typename string, selectionSet language.SelectionSet) (*groupedFields, error) {
	grouped := newGroupedFields()
	visitedFragments := make(map[string]bool)

	if err := collectFieldsImpl(env, typename, selectionSet, grouped, visitedFragments, false); err != nil {
		return nil, err
	}

	for _, g := range grouped.groups {
		args, err := resolveArguments(g.Fields[0].Arguments, env.variables)
		if err != nil {
			return nil, err
		}
		key, err := fieldStoreKey(g.Fields[0].Name, args)
		if err != nil {
			return nil, err
		}
		g.Arguments = args
		g.StoreKey = key
	}
	return grouped, nil
}

func collectFieldsImpl(
	env walkEnv,
	typename string,
	selectionSet language.SelectionSet,
	grouped *groupedFields,
	visitedFragments map[string]bool,
	inFragment bool,
) error {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			include, err := shouldIncludeNode(env, sel.Directives)
			if err != nil {
				return err
			}
			if !include {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			grouped.add(responseName, sel, !inFragment)

		case *language.InlineFragment:
			include, err := shouldIncludeNode(env, sel.Directives)
			if err != nil {
				return err
			}
			if !include {
				continue
			}
			if env.matcher.Match(typename, sel.TypeCondition) == Unmatched {
				continue
			}
			if err := collectFieldsImpl(env, typename, sel.SelectionSet, grouped, visitedFragments, true); err != nil {
				return err
			}

		case *language.FragmentSpread:
			include, err := shouldIncludeNode(env, sel.Directives)
			if err != nil {
				return err
			}
			if !include {
				continue
			}
			if visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			def := env.fragments.ForName(sel.Name)
			if def == nil {
				return &UnknownFragmentError{Name: sel.Name}
			}
			include, err = shouldIncludeNode(env, def.Directives)
			if err != nil {
				return err
			}
			if !include {
				continue
			}
			if env.matcher.Match(typename, def.TypeCondition) == Unmatched {
				continue
			}
			if err := collectFieldsImpl(env, typename, def.SelectionSet, grouped, visitedFragments, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// shouldIncludeNode evaluates @skip and @include, with literal or variable
// boolean arguments.
func shouldIncludeNode(env walkEnv, directives language.DirectiveList) (bool, error) {
	if skip := directives.ForName("skip"); skip != nil {
		v, err := directiveIfArgument(env, skip)
		if err != nil {
			return false, err
		}
		if v {
			return false, nil
		}
	}
	if include := directives.ForName("include"); include != nil {
		v, err := directiveIfArgument(env, include)
		if err != nil {
			return false, err
		}
		if !v {
			return false, nil
		}
	}
	return true, nil
}

func directiveIfArgument(env walkEnv, directive *language.Directive) (bool, error) {
	for _, arg := range directive.Arguments {
		if arg.Name != "if" {
			continue
		}
		v, err := resolveValue(arg.Value, env.variables)
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		return b, nil
	}
	return false, nil
}

// mergeSelectionSets concatenates the sub-selections of a field group, per
// GraphQL selection-merging semantics.
func mergeSelectionSets(fields []*language.Field) language.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var merged language.SelectionSet
	for _, f := range fields {
		merged = append(merged, f.SelectionSet...)
	}
	return merged
}
