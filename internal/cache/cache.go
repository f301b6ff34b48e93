package cache

import (
	"context"
	"fmt"
	"time"

	eventbus "github.com/hanpama/graphcache/internal/eventbus"
	events "github.com/hanpama/graphcache/internal/events"
	language "github.com/hanpama/graphcache/internal/language"
)

// Cache is a normalized GraphQL result cache: writes flatten response trees
// into the store, reads reconstruct result trees from it, diffs report what
// the store cannot satisfy. All operations are synchronous in-memory tree
// walks; the embedding application serializes calls into one cache.
type Cache struct {
	store    *Store
	identity IdentityResolver
	matcher  FragmentMatcher
	overlays []*Transaction
}

type Option func(*Cache)

// WithIdentityResolver replaces the default TypenameID identity function.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(c *Cache) { c.identity = r }
}

// WithFragmentMatcher replaces the default heuristic fragment matcher.
func WithFragmentMatcher(m FragmentMatcher) Option {
	return func(c *Cache) { c.matcher = m }
}

// WithStore starts the cache over an existing store, e.g. one restored from
// a snapshot.
func WithStore(s *Store) Option {
	return func(c *Cache) { c.store = s }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		store:    NewStore(),
		identity: TypenameID{},
		matcher:  HeuristicMatcher{},
	}
	for _, f := range opts {
		f(c)
	}
	return c
}

// Store exposes the committed store for snapshotting, eviction and GC.
func (c *Cache) Store() *Store { return c.store }

// readSource returns the effective record view: the top overlay when
// uncommitted layers exist and are not skipped, else the committed store.
func (c *Cache) readSource(skipUncommitted bool) recordSource {
	if skipUncommitted || len(c.overlays) == 0 {
		return c.store
	}
	return c.overlays[len(c.overlays)-1]
}

func (c *Cache) env(variables map[string]any, fragments language.FragmentDefinitionList) walkEnv {
	return walkEnv{variables: variables, fragments: fragments, matcher: c.matcher}
}

// WriteRequest carries one normalization call: the payload for the entity at
// ID, shaped by Selection under the given fragments and variable bindings.
type WriteRequest struct {
	ID        EntityID
	Data      map[string]any
	Selection language.SelectionSet
	Fragments language.FragmentDefinitionList
	Variables map[string]any
}

// Write normalizes data into flat records and applies them to the committed
// store. The batch is applied only when the whole walk succeeds, so a failed
// write leaves the store untouched.
func (c *Cache) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.WriteStart{ID: string(req.ID)})

	result, batch, err := c.normalize(ctx, req)
	if err == nil {
		c.store.apply(batch)
	}

	eventbus.Publish(ctx, events.WriteFinish{
		ID:       string(req.ID),
		Records:  len(batch),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReadRequest carries one denormalization call. Previous, when set, enables
// referential-equality preservation and stale-over-partial fallback.
// SkipUncommitted bypasses all optimistic overlays.
type ReadRequest struct {
	ID              EntityID
	Selection       language.SelectionSet
	Fragments       language.FragmentDefinitionList
	Variables       map[string]any
	Previous        *ReadResult
	SkipUncommitted bool
}

// Read reconstructs a result tree for the selection from the store,
// optionally through the uncommitted overlay stack.
func (c *Cache) Read(ctx context.Context, req ReadRequest) (*ReadResult, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.ReadStart{ID: string(req.ID)})

	result, err := c.denormalize(req)

	fin := events.ReadFinish{ID: string(req.ID), Err: err, Duration: time.Since(start)}
	if result != nil {
		fin.Stale = result.Stale
	}
	eventbus.Publish(ctx, fin)
	return result, err
}

// DiffRequest carries one gap-analysis call. Under ThrowOnMissing the first
// gap is returned as a PartialReadError instead of being collected.
type DiffRequest struct {
	ID              EntityID
	Selection       language.SelectionSet
	Fragments       language.FragmentDefinitionList
	Variables       map[string]any
	ThrowOnMissing  bool
	SkipUncommitted bool
}

// Diff walks the selection against the store and reports the present subset
// together with per-entity residual selections for everything absent.
func (c *Cache) Diff(ctx context.Context, req DiffRequest) (*DiffResult, error) {
	start := time.Now()
	eventbus.Publish(ctx, events.DiffStart{ID: string(req.ID)})

	result, err := c.diff(req)

	fin := events.DiffFinish{ID: string(req.ID), Err: err, Duration: time.Since(start)}
	if result != nil {
		fin.IsMissing = result.IsMissing
		fin.MissingSets = len(result.Missing)
	}
	eventbus.Publish(ctx, fin)
	return result, err
}

// RootForOperation maps an operation type to its conventional root id.
func RootForOperation(op language.Operation) EntityID {
	switch op {
	case language.Mutation:
		return RootMutationID
	case language.Subscription:
		return RootSubscriptionID
	default:
		return RootQueryID
	}
}

func operationFor(doc *language.QueryDocument, name string) (*language.OperationDefinition, error) {
	op := doc.Operations.ForName(name)
	if op == nil && name == "" && len(doc.Operations) == 1 {
		op = doc.Operations[0]
	}
	if op == nil {
		if name == "" {
			return nil, fmt.Errorf("document has no unambiguous operation")
		}
		return nil, fmt.Errorf("operation %q not found", name)
	}
	return op, nil
}

// WriteQuery writes an operation's response payload under the conventional
// root id for its operation type.
func (c *Cache) WriteQuery(ctx context.Context, doc *language.QueryDocument, operationName string, variables, data map[string]any) (*WriteResult, error) {
	op, err := operationFor(doc, operationName)
	if err != nil {
		return nil, err
	}
	return c.Write(ctx, WriteRequest{
		ID:        RootForOperation(op.Operation),
		Data:      data,
		Selection: op.SelectionSet,
		Fragments: doc.Fragments,
		Variables: variables,
	})
}

// ReadQuery reads an operation's result tree from the conventional root id.
func (c *Cache) ReadQuery(ctx context.Context, doc *language.QueryDocument, operationName string, variables map[string]any) (*ReadResult, error) {
	op, err := operationFor(doc, operationName)
	if err != nil {
		return nil, err
	}
	return c.Read(ctx, ReadRequest{
		ID:        RootForOperation(op.Operation),
		Selection: op.SelectionSet,
		Fragments: doc.Fragments,
		Variables: variables,
	})
}

// DiffQuery diffs an operation against the store from the conventional root.
func (c *Cache) DiffQuery(ctx context.Context, doc *language.QueryDocument, operationName string, variables map[string]any) (*DiffResult, error) {
	op, err := operationFor(doc, operationName)
	if err != nil {
		return nil, err
	}
	return c.Diff(ctx, DiffRequest{
		ID:        RootForOperation(op.Operation),
		Selection: op.SelectionSet,
		Fragments: doc.Fragments,
		Variables: variables,
	})
}
