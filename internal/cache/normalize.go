package cache

import (
	"context"

	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	language "github.com/hanpama/graphcache/internal/language"
)

// writeState accumulates one normalization pass. Records are written into a
// private batch and applied only when the whole walk succeeds, so a failed
// write never leaves a partially applied branch behind.
type writeState struct {
	ctx    context.Context
	cache  *Cache
	env    walkEnv
	batch  map[EntityID]*Record
	result *WriteResult
	rootID EntityID
}

func (c *Cache) normalize(ctx context.Context, req WriteRequest) (*WriteResult, map[EntityID]*Record, error) {
	s := &writeState{
		ctx:    ctx,
		cache:  c,
		env:    c.env(req.Variables, req.Fragments),
		batch:  make(map[EntityID]*Record),
		result: &WriteResult{ids: make(map[string]EntityID)},
		rootID: req.ID,
	}
	data, err := s.writeObject(req.ID, req.Data, req.Selection, Path{})
	if err != nil {
		return nil, nil, err
	}
	s.result.Data = data
	return s.result, s.batch, nil
}

// writeObject flattens one object of the response payload into the record
// for id and returns the subtree of data the selection actually consumed.
func (s *writeState) writeObject(id EntityID, data map[string]any, selectionSet language.SelectionSet, path Path) (map[string]any, error) {
	typename, _ := data["__typename"].(string)
	grouped, err := collectFields(s.env, typename, selectionSet)
	if err != nil {
		return nil, err
	}

	rec := s.batch[id]
	if rec == nil {
		rec = newRecord()
		s.batch[id] = rec
	}

	out := make(map[string]any, len(grouped.groups))
	for _, g := range grouped.groups {
		value, present := data[g.ResponseName]
		if !present {
			// Fragments may reference fields the concrete object doesn't
			// have; directly selected fields are always required.
			if !g.direct {
				continue
			}
			return nil, &MissingFieldError{ID: id, Field: g.ResponseName, Path: path.child(g.ResponseName)}
		}
		sub := mergeSelectionSets(g.Fields)
		consumed, stored, err := s.writeValue(value, sub, childPathID(id, g.StoreKey), path.child(g.ResponseName))
		if err != nil {
			return nil, err
		}
		rec.Set(g.StoreKey, stored)
		out[g.ResponseName] = consumed
	}

	s.result.ids[path.String()] = id
	return out, nil
}

// writeValue converts one response position into its stored form. base is
// the synthesized id this position would receive if the value turns out to
// be an object without stable identity.
func (s *writeState) writeValue(value any, sub language.SelectionSet, base EntityID, path Path) (consumed, stored any, err error) {
	// A null value is stored as a null link; "absent" was already rejected
	// by the caller.
	if value == nil {
		return nil, nil, nil
	}

	// No sub-selection: a leaf. Composites without a selection are kept as
	// opaque embedded JSON, never traversed.
	if len(sub) == 0 {
		return value, copyJSON(value), nil
	}

	switch v := value.(type) {
	case []any:
		consumedList := make([]any, len(v))
		storedList := make([]any, len(v))
		for i, item := range v {
			c, st, err := s.writeValue(item, sub, indexedPathID(base, i), path.child(i))
			if err != nil {
				return nil, nil, err
			}
			consumedList[i] = c
			storedList[i] = st
		}
		return consumedList, storedList, nil

	case map[string]any:
		id, generated := s.entityIDOf(v, base)
		child, err := s.writeObject(id, v, sub, path)
		if err != nil {
			return nil, nil, err
		}
		return child, Reference{ID: id, Generated: generated}, nil

	default:
		// Scalar under a selection: the data disagrees with the query
		// shape. Non-fatal; keep the value as a leaf and report it.
		eventbus.Publish(s.ctx, events.ShapeMismatch{
			ID:   string(s.rootID),
			Path: path.String(),
		})
		return value, value, nil
	}
}

// entityIDOf resolves an object's entity id through the identity resolver,
// falling back to the synthesized path id.
func (s *writeState) entityIDOf(object map[string]any, base EntityID) (EntityID, bool) {
	if id, ok := s.cache.identity.IdentityOf(object); ok && id != "" {
		return id, false
	}
	return base, true
}
