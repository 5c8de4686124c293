package store

import (
	"errors"
	"fmt"

	"github.com/jacentio/warren/internal/keycodec"
)

var (
	// ErrNotRegistered is returned when a store is used before Register.
	ErrNotRegistered = errors.New("warren: store not registered")

	// ErrNotFound is returned when a lookup or delete target is absent.
	ErrNotFound = errors.New("warren: entity not found")

	// ErrIntegrity is returned when an Error-behaviour link blocked a
	// delete. Match with errors.Is; the concrete value is an
	// *IntegrityError identifying the blocking record.
	ErrIntegrity = errors.New("warren: delete blocked by live link")

	// ErrReservedName is returned when a descriptor uses a store name
	// reserved for internal bookkeeping.
	ErrReservedName = errors.New("warren: reserved store name")

	// ErrSerialization is returned when a payload fails to encode or
	// decode.
	ErrSerialization = errors.New("warren: payload serialization failed")

	// ErrKeyEncoding is returned when stored key bytes cannot be
	// decoded.
	ErrKeyEncoding = keycodec.ErrCorrupt
)

// IntegrityError reports the live linked record that blocked a delete.
// No mutation has occurred when it is returned.
type IntegrityError struct {
	// Store is the store holding the blocking record.
	Store string

	// Key is the blocking record's key.
	Key Key
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("warren: delete blocked by live link to %s %v", e.Store, e.Key)
}

// Is reports a match against ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
