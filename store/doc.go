// Package store provides an embeddable entity-relationship layer on top of
// a bbolt database file.
//
// Warren is designed for applications that need typed records with
// automatically generated primary keys, hierarchical parent/child
// ownership, and referential-integrity-preserving deletion, all without a
// relational database server. One database file holds any number of
// independently declared stores; every multi-step operation runs in a
// single transaction spanning all of them.
//
// # Key Features
//
//   - Auto-increment keys per store, or scoped per parent key
//   - Parent/child ownership expressed directly in key prefixes
//   - Sibling stores sharing the same key value
//   - Explicit relations between any two entities, indexed from both sides
//   - Cascading deletes with per-link policy (Cascade, Error, BreakLink)
//   - Atomic all-or-nothing delete across every affected store
//
// # Entities
//
// All entities implement the [Entity] interface with pointer receivers:
//
//	type Entity interface {
//	    StoreName() string
//	    Key() Key
//	    SetKey(Key)
//	}
//
// Keys are built from [Int], [String], and [Tuple]; a child's key is
// Tuple{parentKey, Int(seq)}. Payloads are the entity structs themselves,
// JSON-encoded.
//
// # Registration
//
// Each entity type registers a [Descriptor] naming its store and the
// sibling and child links it participates in, with a [DeletionBehaviour]
// per link. Registration is idempotent and never resets existing data.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotRegistered] - store used before registration
//   - [ErrNotFound] - lookup or delete target absent
//   - [ErrIntegrity] - an Error-behaviour link blocked a delete; the
//     concrete value is an [*IntegrityError] naming the blocking record
//   - [ErrSerialization] - payload encode/decode failure
//
// Storage-engine failures are wrapped with operation context; a lock
// timeout from the engine is retryable, everything else indicates a
// schema or usage error.
package store
