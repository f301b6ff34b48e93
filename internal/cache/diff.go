package cache

import (
	language "github.com/hanpama/graphcache/internal/language"
)

// diffState accumulates one gap-analysis pass. Residual selections attach to
// the entity they should be refetched from; gaps under generated ids bubble
// up to the nearest stable ancestor because a synthesized id cannot be
// requested incrementally.
type diffState struct {
	cache        *Cache
	env          walkEnv
	src          recordSource
	throw        bool
	missing      []MissingSelection
	missingIndex map[EntityID]int
}

func (c *Cache) diff(req DiffRequest) (*DiffResult, error) {
	s := &diffState{
		cache:        c,
		env:          c.env(req.Variables, req.Fragments),
		src:          c.readSource(req.SkipUncommitted),
		throw:        req.ThrowOnMissing,
		missingIndex: make(map[EntityID]int),
	}
	result, residual, err := s.diffObject(req.ID, req.Selection, Path{})
	if err != nil {
		return nil, err
	}
	if len(residual) > 0 {
		s.addMissing(req.ID, residual)
	}
	return &DiffResult{
		Result:    result,
		IsMissing: len(s.missing) > 0,
		Missing:   s.missing,
	}, nil
}

func (s *diffState) addMissing(id EntityID, selection language.SelectionSet) {
	if idx, ok := s.missingIndex[id]; ok {
		s.missing[idx].Selection = append(s.missing[idx].Selection, selection...)
		return
	}
	s.missingIndex[id] = len(s.missing)
	s.missing = append(s.missing, MissingSelection{ID: id, Selection: selection})
}

// diffObject walks one object level, returning the present subset of the
// result and the residual selection this object still needs.
func (s *diffState) diffObject(id EntityID, selectionSet language.SelectionSet, path Path) (map[string]any, language.SelectionSet, error) {
	rec, ok := s.src.get(id)
	if !ok {
		if s.throw {
			return nil, nil, &PartialReadError{ID: id, Path: path}
		}
		return nil, selectionSet, nil
	}
	grouped, err := collectFields(s.env, rec.Typename(), selectionSet)
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string]any, len(grouped.groups))
	var residual language.SelectionSet

	for _, g := range grouped.groups {
		fieldPath := path.child(g.ResponseName)
		stored, present := rec.Get(g.StoreKey)
		if !present {
			if !g.direct {
				continue
			}
			if s.throw {
				return nil, nil, &PartialReadError{ID: id, Field: g.ResponseName, Path: fieldPath}
			}
			// Repeated occurrences of the field contribute their merged
			// sub-selections to the residual, same as they would to a read.
			field := g.Fields[0]
			residual = append(residual, &language.Field{
				Alias:        field.Alias,
				Name:         field.Name,
				Arguments:    field.Arguments,
				Directives:   field.Directives,
				SelectionSet: mergeSelectionSets(g.Fields),
			})
			continue
		}

		sub := mergeSelectionSets(g.Fields)
		val, hasValue, need, err := s.diffValue(stored, sub, fieldPath)
		if err != nil {
			return nil, nil, err
		}
		if need != nil {
			// Something below this field is incomplete and could not be
			// attached to a stable entity; re-request through this field.
			field := g.Fields[0]
			residual = append(residual, &language.Field{
				Alias:        field.Alias,
				Name:         field.Name,
				Arguments:    field.Arguments,
				Directives:   field.Directives,
				SelectionSet: need,
			})
		}
		if hasValue {
			out[g.ResponseName] = val
		}
	}
	return out, residual, nil
}

// diffValue returns the present portion of one stored position, whether any
// portion is present at all, and the selection still needed through the
// enclosing field (nil when the subtree is complete or its gaps were
// attached to stable entity ids).
func (s *diffState) diffValue(stored any, sub language.SelectionSet, path Path) (any, bool, language.SelectionSet, error) {
	if stored == nil {
		return nil, true, nil, nil
	}
	if len(sub) == 0 {
		return copyJSON(stored), true, nil, nil
	}
	switch v := stored.(type) {
	case Reference:
		res, residual, err := s.diffObject(v.ID, sub, path)
		if err != nil {
			return nil, false, nil, err
		}
		if len(residual) == 0 {
			return res, true, nil, nil
		}
		if v.Generated {
			return res, res != nil, residual, nil
		}
		s.addMissing(v.ID, residual)
		return res, res != nil, nil, nil

	case []any:
		out := make([]any, len(v))
		var need language.SelectionSet
		for i, item := range v {
			res, _, elemNeed, err := s.diffValue(item, sub, path.child(i))
			if err != nil {
				return nil, false, nil, err
			}
			out[i] = res
			if elemNeed != nil && need == nil {
				// A list cannot be refetched element-wise; one incomplete
				// element re-requests the whole field.
				need = sub
			}
		}
		return out, true, need, nil

	default:
		return copyJSON(stored), true, nil, nil
	}
}
