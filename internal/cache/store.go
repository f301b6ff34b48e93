package cache

import (
	"fmt"
	"sort"
)

// EntityID is the stable string key identifying one logical object across
// writes and reads. Caller-supplied ids are free-form; synthesized ids carry
// a "$" prefix so the two can never collide.
type EntityID string

// Well-known root ids for document-level operations.
const (
	RootQueryID        EntityID = "ROOT_QUERY"
	RootMutationID     EntityID = "ROOT_MUTATION"
	RootSubscriptionID EntityID = "ROOT_SUBSCRIPTION"
)

// Reference is a typed pointer-by-id from one record to another. It is a
// weak link: the store owns the target record, so cyclic references are safe.
// Generated marks ids synthesized from the write path rather than supplied
// by the identity resolver; the differ cannot refetch those incrementally.
type Reference struct {
	ID        EntityID
	Generated bool
}

// Record holds one entity's locally known fields, keyed by store key.
// Values are leaf scalars (including embedded JSON blobs), References, nil,
// or arbitrarily nested lists of those.
type Record struct {
	fields map[string]any
}

func newRecord() *Record {
	return &Record{fields: make(map[string]any)}
}

func (r *Record) Get(storeKey string) (any, bool) {
	v, ok := r.fields[storeKey]
	return v, ok
}

// Set stores v under storeKey, replacing any existing value. Merging is
// last-write-wins at store-key granularity; blobs are never deep-merged.
func (r *Record) Set(storeKey string, v any) {
	r.fields[storeKey] = v
}

func (r *Record) Len() int { return len(r.fields) }

// Keys returns the record's store keys in sorted order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Typename returns the stored __typename scalar, if any.
func (r *Record) Typename() string {
	if v, ok := r.fields["__typename"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (r *Record) clone() *Record {
	out := newRecord()
	for k, v := range r.fields {
		out.fields[k] = v
	}
	return out
}

func (r *Record) mergeFrom(other *Record) {
	for k, v := range other.fields {
		r.fields[k] = v
	}
}

// recordSource is a read view over records. The committed Store implements
// it directly; Transactions implement it with fallthrough to their base.
type recordSource interface {
	get(id EntityID) (*Record, bool)
}

// Store is the committed flat mapping from entity id to record. It is
// mutated only by applying normalized write batches and by explicit
// eviction; callers are responsible for serializing access (the cache has no
// internal locking, matching its single-threaded execution model).
type Store struct {
	records map[EntityID]*Record
}

func NewStore() *Store {
	return &Store{records: make(map[EntityID]*Record)}
}

func (s *Store) get(id EntityID) (*Record, bool) {
	r, ok := s.records[id]
	return r, ok
}

// Get returns the record for id, if present.
func (s *Store) Get(id EntityID) (*Record, bool) { return s.get(id) }

func (s *Store) Len() int { return len(s.records) }

// IDs returns all record ids in sorted order.
func (s *Store) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// apply merges a normalized write batch into the store: new ids create
// records, existing records union in the batch keys (last write wins).
func (s *Store) apply(batch map[EntityID]*Record) {
	for id, rec := range batch {
		if existing, ok := s.records[id]; ok {
			existing.mergeFrom(rec)
		} else {
			s.records[id] = rec.clone()
		}
	}
}

// Evict removes the record for id, reporting whether it existed.
func (s *Store) Evict(id EntityID) bool {
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

// EvictField removes a single store key from a record, reporting whether it
// existed. Useful for targeted invalidation without dropping the entity.
func (s *Store) EvictField(id EntityID, storeKey string) bool {
	rec, ok := s.records[id]
	if !ok {
		return false
	}
	if _, ok := rec.fields[storeKey]; !ok {
		return false
	}
	delete(rec.fields, storeKey)
	return true
}

// GC removes every record unreachable from the given roots and returns the
// evicted ids in sorted order. The walk is worklist-based with a visited set
// so cyclic references terminate.
func (s *Store) GC(roots ...EntityID) []EntityID {
	reachable := make(map[EntityID]struct{}, len(s.records))
	work := make([]EntityID, 0, len(roots))
	for _, id := range roots {
		work = append(work, id)
	}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if _, seen := reachable[id]; seen {
			continue
		}
		reachable[id] = struct{}{}
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		for _, v := range rec.fields {
			work = appendReferencedIDs(work, v)
		}
	}

	var evicted []EntityID
	for id := range s.records {
		if _, ok := reachable[id]; !ok {
			evicted = append(evicted, id)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	for _, id := range evicted {
		delete(s.records, id)
	}
	return evicted
}

func appendReferencedIDs(work []EntityID, v any) []EntityID {
	switch t := v.(type) {
	case Reference:
		work = append(work, t.ID)
	case []any:
		for _, item := range t {
			work = appendReferencedIDs(work, item)
		}
	}
	return work
}

// Snapshot is the JSON-safe rendition of a store: records become plain maps
// and references become {"__ref": id} objects.
type Snapshot = map[string]map[string]any

const (
	refKey       = "__ref"
	generatedKey = "__generated"
)

// Extract renders the store as a deep-copied, JSON-serializable snapshot.
func (s *Store) Extract() Snapshot {
	out := make(Snapshot, len(s.records))
	for id, rec := range s.records {
		fields := make(map[string]any, len(rec.fields))
		for k, v := range rec.fields {
			fields[k] = encodeStoreValue(v)
		}
		out[string(id)] = fields
	}
	return out
}

// Restore replaces the store's contents with a previously extracted
// snapshot. Unrecognized shapes are kept as opaque leaves.
func (s *Store) Restore(snapshot Snapshot) error {
	records := make(map[EntityID]*Record, len(snapshot))
	for id, fields := range snapshot {
		rec := newRecord()
		for k, v := range fields {
			dv, err := decodeStoreValue(v)
			if err != nil {
				return fmt.Errorf("restore record %q field %q: %w", id, k, err)
			}
			rec.fields[k] = dv
		}
		records[EntityID(id)] = rec
	}
	s.records = records
	return nil
}

func encodeStoreValue(v any) any {
	switch t := v.(type) {
	case Reference:
		m := map[string]any{refKey: string(t.ID)}
		if t.Generated {
			m[generatedKey] = true
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = encodeStoreValue(item)
		}
		return out
	default:
		return copyJSON(v)
	}
}

func decodeStoreValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if rawID, ok := t[refKey]; ok {
			id, ok := rawID.(string)
			if !ok {
				return nil, fmt.Errorf("reference id must be a string, got %T", rawID)
			}
			gen, _ := t[generatedKey].(bool)
			return Reference{ID: EntityID(id), Generated: gen}, nil
		}
		return copyJSON(t), nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			dv, err := decodeStoreValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	default:
		return v, nil
	}
}

// copyJSON deep-copies JSON-shaped values (maps, slices, scalars) so store
// contents never alias caller-owned data.
func copyJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = copyJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyJSON(item)
		}
		return out
	default:
		return v
	}
}
