// Package cache implements a normalized GraphQL result cache: hierarchical
// query results are flattened into a flat store of records keyed by entity
// identity, and arbitrary query shapes are reconstructed back out of that
// store on demand.
//
// # Data model
//
// The Store maps entity ids to Records. A Record maps store keys (field name
// plus canonical-JSON arguments) to leaf values, References, nil, or nested
// lists of those. A Reference is a weak pointer-by-id, so records may link
// cyclically without leaking; the store is the sole owner of every record.
//
// Entity ids come from a pluggable IdentityResolver. Objects without stable
// identity get a synthesized "$parent.field[index]" id, which keeps them
// individually addressable and makes repeated writes of the same path merge.
//
// # Operations
//
//   - Write expands the selection alongside the response payload and
//     produces flat records. The batch is applied atomically: a missing
//     required field aborts the write with MissingFieldError and the store
//     is untouched. Fields reachable only through fragments are optional.
//   - Read expands the selection against the store and rebuilds the result
//     tree. With a previous result supplied, unchanged subtrees are returned
//     with their previous identity (array elements matched by entity id
//     first, position second), and subtrees the store no longer holds are
//     substituted from the previous result with the Stale flag set instead
//     of failing.
//   - Diff runs the same walk but collects gaps: the present subset of the
//     result plus per-entity residual selections that a network layer can
//     turn directly into follow-up requests.
//
// Optimistic updates go through Transactions: stacked copy-on-write layers
// over the committed store, committed or rolled back in reverse creation
// order.
//
// All operations are synchronous, non-blocking tree walks with no internal
// locking; the embedding application serializes calls into one cache. Read
// and diff recursion is bounded by the selection tree, so cyclic references
// in the store cannot recurse unboundedly.
package cache
