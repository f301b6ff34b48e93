package cache

import (
	"context"
	"time"

	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
)

// Transaction is one uncommitted write layer for optimistic updates. Writes
// stay in the layer; lookups fall through to the layer below it (ultimately
// the committed store). Layers stack in creation order and must be committed
// or rolled back strictly in reverse of that order.
type Transaction struct {
	cache  *Cache
	base   recordSource
	local  map[EntityID]*Record
	closed bool
}

// Begin opens a new overlay on top of the current stack. Reads through the
// cache observe it until it is committed or rolled back.
func (c *Cache) Begin() *Transaction {
	tx := &Transaction{
		cache: c,
		base:  c.readSource(false),
		local: make(map[EntityID]*Record),
	}
	c.overlays = append(c.overlays, tx)
	return tx
}

func (t *Transaction) get(id EntityID) (*Record, bool) {
	if rec, ok := t.local[id]; ok {
		return rec, true
	}
	return t.base.get(id)
}

// Write normalizes data into this layer only; the committed store and lower
// layers are untouched until Commit.
func (t *Transaction) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if t.closed {
		return nil, ErrOverlayClosed
	}
	start := time.Now()
	eventbus.Publish(ctx, events.WriteStart{ID: string(req.ID), Optimistic: true})

	result, batch, err := t.cache.normalize(ctx, req)
	if err == nil {
		mergeBatch(t.local, t.base, batch)
	}

	eventbus.Publish(ctx, events.WriteFinish{
		ID:         string(req.ID),
		Records:    len(batch),
		Optimistic: true,
		Err:        err,
		Duration:   time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Commit merges this layer into whatever is below it: the next overlay down,
// or the committed store. Only the top layer may commit.
func (t *Transaction) Commit() error {
	if t.closed {
		return ErrOverlayClosed
	}
	if !t.cache.isTop(t) {
		return ErrOverlayOrder
	}
	t.cache.pop()
	t.closed = true
	if n := len(t.cache.overlays); n > 0 {
		below := t.cache.overlays[n-1]
		mergeBatch(below.local, below.base, t.local)
		return nil
	}
	t.cache.store.apply(t.local)
	return nil
}

// Rollback discards this layer. Only the top layer may roll back; rolling
// back a lower layer while a higher one still stacks on it is a caller
// error.
func (t *Transaction) Rollback() error {
	if t.closed {
		return ErrOverlayClosed
	}
	if !t.cache.isTop(t) {
		return ErrOverlayOrder
	}
	t.cache.pop()
	t.closed = true
	t.local = nil
	return nil
}

func (c *Cache) isTop(t *Transaction) bool {
	n := len(c.overlays)
	return n > 0 && c.overlays[n-1] == t
}

func (c *Cache) pop() {
	c.overlays = c.overlays[:len(c.overlays)-1]
}

// mergeBatch unions batch into dst copy-on-write: a record already present
// in dst is merged in place, a record only in base is cloned before the
// merge so the base layer is never mutated through an overlay.
func mergeBatch(dst map[EntityID]*Record, base recordSource, batch map[EntityID]*Record) {
	for id, rec := range batch {
		if existing, ok := dst[id]; ok {
			existing.mergeFrom(rec)
			continue
		}
		if under, ok := base.get(id); ok {
			cloned := under.clone()
			cloned.mergeFrom(rec)
			dst[id] = cloned
			continue
		}
		dst[id] = rec.clone()
	}
}
