package cache

import (
	"errors"
	"reflect"

	language "github.com/hanpama/graphcache/internal/language"
)

// readState accumulates one denormalization pass.
type readState struct {
	cache  *Cache
	env    walkEnv
	src    recordSource
	prev   *ReadResult
	result *ReadResult
	stale  bool
}

func (c *Cache) denormalize(req ReadRequest) (*ReadResult, error) {
	s := &readState{
		cache:  c,
		env:    c.env(req.Variables, req.Fragments),
		src:    c.readSource(req.SkipUncommitted),
		prev:   req.Previous,
		result: &ReadResult{ids: make(map[string]EntityID)},
	}
	var prevData any
	if req.Previous != nil {
		prevData = req.Previous.Data
	}
	data, err := s.readObject(req.ID, req.Selection, prevData, Path{}, Path{})
	if err != nil {
		return nil, err
	}
	s.result.Data = data
	s.result.Stale = s.stale
	return s.result, nil
}

// readObject reconstructs one object from the record at id. When a previous
// subtree is supplied and nothing changed, the exact previous object is
// returned so consumers can rely on identity checks. prevPath is where the
// previous subtree lived in the previous result; it diverges from path when
// an enclosing list element was relocated by entity id.
func (s *readState) readObject(id EntityID, selectionSet language.SelectionSet, prev any, path, prevPath Path) (map[string]any, error) {
	rec, ok := s.src.get(id)
	if !ok {
		return nil, &PartialReadError{ID: id, Path: path}
	}
	grouped, err := collectFields(s.env, rec.Typename(), selectionSet)
	if err != nil {
		return nil, err
	}

	prevMap, _ := prev.(map[string]any)
	out := make(map[string]any, len(grouped.groups))
	allSame := prevMap != nil

	for _, g := range grouped.groups {
		fieldPath := path.child(g.ResponseName)
		var prevField any
		havePrev := false
		if prevMap != nil {
			prevField, havePrev = prevMap[g.ResponseName]
		}

		stored, present := rec.Get(g.StoreKey)
		var val any
		if !present {
			if !g.direct {
				continue
			}
			// Stale-over-partial: a previously returned value substitutes
			// for data the store no longer holds.
			if havePrev {
				s.stale = true
				out[g.ResponseName] = prevField
				continue
			}
			return nil, &PartialReadError{ID: id, Field: g.ResponseName, Path: fieldPath}
		}

		sub := mergeSelectionSets(g.Fields)
		val, err = s.readValue(stored, sub, prevField, fieldPath, prevPath.child(g.ResponseName))
		if err != nil {
			var partial *PartialReadError
			if errors.As(err, &partial) && havePrev {
				s.stale = true
				out[g.ResponseName] = prevField
				continue
			}
			return nil, err
		}
		out[g.ResponseName] = val
		if allSame && (!havePrev || !identical(val, prevField)) {
			allSame = false
		}
	}

	s.result.ids[path.String()] = id
	if allSame && len(out) == len(prevMap) {
		return prevMap, nil
	}
	return out, nil
}

func (s *readState) readValue(stored any, sub language.SelectionSet, prev any, path, prevPath Path) (any, error) {
	if stored == nil {
		return nil, nil
	}
	// Leaf values (including embedded JSON blobs and scalar lists) are
	// returned as copies so callers can never mutate the store, unless the
	// previous result already holds an equal value.
	if len(sub) == 0 {
		if prev != nil && reflect.DeepEqual(stored, prev) {
			return prev, nil
		}
		return copyJSON(stored), nil
	}
	switch v := stored.(type) {
	case Reference:
		return s.readObject(v.ID, sub, prev, path, prevPath)
	case []any:
		return s.readList(v, sub, prev, path, prevPath)
	default:
		// Shape-mismatch leftovers from the write path.
		if prev != nil && reflect.DeepEqual(stored, prev) {
			return prev, nil
		}
		return copyJSON(stored), nil
	}
}

// readList reads a stored reference list, matching previous elements by
// entity id first and by position second, so object identities survive
// reordering.
func (s *readState) readList(items []any, sub language.SelectionSet, prev any, path, prevPath Path) (any, error) {
	prevItems, _ := prev.([]any)

	// Index the previous elements by the entity id they were read from. The
	// lookup goes through prevPath, not path: the previous subtree may have
	// been relocated by an enclosing id match, and its elements' ids were
	// recorded where the subtree lived then.
	var prevIndexByID map[EntityID]int
	if s.prev != nil && len(prevItems) > 0 {
		prevIndexByID = make(map[EntityID]int, len(prevItems))
		for j := range prevItems {
			if id, ok := s.prev.EntityAt(prevPath.child(j).String()); ok {
				prevIndexByID[id] = j
			}
		}
	}

	out := make([]any, len(items))
	same := prevItems != nil && len(prevItems) == len(items)
	for i, item := range items {
		elemPath := path.child(i)
		var prevElem any
		prevElemPath := prevPath.child(i)
		if ref, ok := item.(Reference); ok {
			if j, ok := prevIndexByID[ref.ID]; ok {
				prevElem = prevItems[j]
				prevElemPath = prevPath.child(j)
			} else if i < len(prevItems) {
				prevElem = prevItems[i]
			}
		} else if i < len(prevItems) {
			prevElem = prevItems[i]
		}
		v, err := s.readValue(item, sub, prevElem, elemPath, prevElemPath)
		if err != nil {
			return nil, err
		}
		out[i] = v
		if same && !identical(v, prevItems[i]) {
			same = false
		}
	}
	if same {
		return prevItems, nil
	}
	return out, nil
}

// identical reports whether two result values are the same: object and list
// values by identity, leaf values by equality.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Kind() == reflect.Map && bv.Kind() == reflect.Map {
		return av.Pointer() == bv.Pointer()
	}
	if av.Kind() == reflect.Slice && bv.Kind() == reflect.Slice {
		return av.Pointer() == bv.Pointer() && av.Len() == bv.Len()
	}
	return reflect.DeepEqual(a, b)
}
