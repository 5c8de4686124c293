package store

import (
	"github.com/jacentio/warren/internal/keycodec"
)

// Key identifies an entity within its store: an integer, a string, or an
// ordered tuple of keys. A child entity's key is Tuple{parentKey, Int(seq)}.
type Key = keycodec.Key

// Int is an integer key component.
type Int = keycodec.Int

// String is a string key component.
type String = keycodec.String

// Tuple is an ordered sequence of key components.
type Tuple = keycodec.Tuple

// Entity is the base interface for all storable types. The full struct is
// the payload; implement with pointer receivers so SetKey can assign
// generated keys.
type Entity interface {
	// StoreName returns the store holding this entity type.
	StoreName() string

	// Key returns the entity's current key.
	Key() Key

	// SetKey assigns a generated key to the entity.
	SetKey(Key)
}

// DeletionBehaviour governs the effect of deleting a linked entity.
type DeletionBehaviour uint8

const (
	// Cascade propagates the delete to the linked record.
	Cascade DeletionBehaviour = iota

	// Error aborts the whole delete while the linked record exists.
	Error

	// BreakLink removes only the link itself. On sibling and child links
	// this is a no-op; the linked record is always left untouched.
	BreakLink
)

// String returns a human-readable behaviour name.
func (b DeletionBehaviour) String() string {
	switch b {
	case Cascade:
		return "cascade"
	case Error:
		return "error"
	case BreakLink:
		return "break-link"
	default:
		return "unknown"
	}
}

// Link declares a linked store and the behaviour applied to its records
// when an entity on the declaring side is deleted.
type Link struct {
	// Store is the linked store's name.
	Store string

	// OnDelete is the behaviour applied on delete of an entity on the
	// declaring side.
	OnDelete DeletionBehaviour
}

// Descriptor captures the static metadata for one entity type: its store
// name, sibling links (stores sharing the same key value), and child links
// (stores whose keys are prefixed by this store's keys).
type Descriptor struct {
	// Store is the store name; exactly one store per entity type.
	Store string

	// Siblings are peer stores keyed by the same key value.
	Siblings []Link

	// Children are owned stores whose keys carry this store's key as a
	// prefix.
	Children []Link
}
