package store

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/keycodec"
)

// nextSequence mints the next auto-increment value for a scope: a store,
// or a store narrowed to one parent's encoded key for child stores. The
// counter lives in its own bucket and is read and advanced inside the
// caller's write transaction, so the allocation commits or rolls back with
// the write that consumes it and contending writers are serialized by the
// engine. Values are monotonic per scope and never reused, even after the
// record holding the latest value is deleted.
func nextSequence(tx *bolt.Tx, storeName string, parent []byte) (int64, error) {
	seq := tx.Bucket([]byte(internalBucket)).Bucket([]byte(seqBucket))
	scope := scopeKey(storeName, parent)

	var n uint64
	if v := seq.Get(scope); v != nil {
		if len(v) != 8 {
			return 0, fmt.Errorf("warren: corrupt sequence for %s", storeName)
		}
		n = binary.BigEndian.Uint64(v)
	}

	var next [8]byte
	binary.BigEndian.PutUint64(next[:], n+1)
	if err := seq.Put(scope, next[:]); err != nil {
		return 0, err
	}
	return int64(n), nil
}

// scopeKey builds the counter key for a scope. The store name is encoded
// with the key codec so it is self-delimiting: one store's scope keys can
// never collide with another's, whatever the parent bytes look like.
func scopeKey(storeName string, parent []byte) []byte {
	return append(keycodec.Encode(keycodec.String(storeName)), parent...)
}
