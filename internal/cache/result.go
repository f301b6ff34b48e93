package cache

import (
	"fmt"
	"strings"

	language "github.com/hanpama/graphcache/internal/language"
)

// Path locates a position in a result tree: string elements are response
// keys, int elements are list indexes.
type Path []any

func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		}
	}
	return b.String()
}

func (p Path) child(elem any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// WriteResult reports the portion of the input data a write actually
// consumed, with every object traceable back to its entity id through the
// path table.
type WriteResult struct {
	Data map[string]any

	ids map[string]EntityID
}

// EntityAt returns the entity id of the object written at the given result
// path (Path.String form; "" for the root object).
func (r *WriteResult) EntityAt(path string) (EntityID, bool) {
	id, ok := r.ids[path]
	return id, ok
}

// ReadResult is a denormalized result tree. Stale reports that some subtree
// was substituted from the previous result because the store no longer held
// it; callers typically react by refetching.
type ReadResult struct {
	Data  map[string]any
	Stale bool

	ids map[string]EntityID
}

// EntityAt returns the entity id of the object read at the given result
// path (Path.String form; "" for the root object).
func (r *ReadResult) EntityAt(path string) (EntityID, bool) {
	if r == nil {
		return "", false
	}
	id, ok := r.ids[path]
	return id, ok
}

// MissingSelection is one entity's residual selection: the fields still
// needed from that entity, grouped so multiple gaps coalesce into a single
// syntactically valid selection set.
type MissingSelection struct {
	ID        EntityID
	Selection language.SelectionSet
}

// DiffResult reports which parts of a desired selection the store can and
// cannot satisfy. Result holds the present subset; Missing holds per-entity
// residual selections a network layer can turn into follow-up requests.
type DiffResult struct {
	Result    map[string]any
	IsMissing bool
	Missing   []MissingSelection
}
