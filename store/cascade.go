package store

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/keycodec"
)

// recordRef identifies one record during a cascade walk.
type recordRef struct {
	store string
	key   []byte
}

// Delete removes a record and everything its links say must go with it:
// Cascade siblings, Cascade children (transitively, by key prefix), and
// Cascade relation peers. A live Error link anywhere in the walk aborts
// the whole operation with an *IntegrityError and no mutation. BreakLink
// relations lose only the relation record. The entire walk runs in one
// transaction, so the outcome is all-or-nothing.
func (s *Store) Delete(ctx context.Context, storeName string, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kb := keycodec.Encode(key)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, storeName)
		}
		if b.Get(kb) == nil {
			return fmt.Errorf("%w: %s %v", ErrNotFound, storeName, key)
		}
		return s.deleteWalk(tx, recordRef{storeName, kb})
	})
	if err != nil {
		return wrapStorage("delete", storeName, err)
	}

	s.logger.Debug("deleted", "store", storeName, "key", key)
	return nil
}

// deleteWalk processes the cascade closure of root as a work list. The
// visited set guards against revisiting a record reachable through
// multiple paths or cycles, and bounds the walk regardless of link depth.
// Each record runs its full check phase before any of its own mutations;
// transaction rollback restores every store if a later record blocks.
func (s *Store) deleteWalk(tx *bolt.Tx, root recordRef) error {
	visited := make(map[string]struct{})
	queue := []recordRef{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		seen := cur.store + "\x00" + string(cur.key)
		if _, ok := visited[seen]; ok {
			continue
		}
		visited[seen] = struct{}{}

		desc, _ := s.registry.Descriptor(cur.store)
		edges, err := relationsOfTx(tx, cur.store, cur.key)
		if err != nil {
			return err
		}

		if err := s.checkBlocked(tx, cur, desc, edges); err != nil {
			return err
		}

		next, err := s.applyLinks(tx, cur, desc, edges)
		if err != nil {
			return err
		}
		queue = append(queue, next...)

		b := tx.Bucket([]byte(cur.store))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, cur.store)
		}
		if err := b.Delete(cur.key); err != nil {
			return err
		}
	}
	return nil
}

// checkBlocked runs the check phase for one record: any Error-behaviour
// sibling, child, or relation link with a live linked record aborts the
// delete.
func (s *Store) checkBlocked(tx *bolt.Tx, cur recordRef, desc Descriptor, edges []relEdge) error {
	for _, l := range desc.Siblings {
		if l.OnDelete != Error {
			continue
		}
		sb := tx.Bucket([]byte(l.Store))
		if sb == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, l.Store)
		}
		if sb.Get(cur.key) != nil {
			return blockedBy(l.Store, cur.key)
		}
	}

	for _, l := range desc.Children {
		if l.OnDelete != Error {
			continue
		}
		cb := tx.Bucket([]byte(l.Store))
		if cb == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, l.Store)
		}
		c := cb.Cursor()
		if k, _ := c.Seek(cur.key); k != nil && hasPrefix(k, cur.key) {
			return blockedBy(l.Store, k)
		}
	}

	for _, e := range edges {
		if e.onSelfDelete != Error {
			continue
		}
		ob := tx.Bucket([]byte(e.otherStore))
		if ob != nil && ob.Get(e.otherKey) != nil {
			return blockedBy(e.otherStore, e.otherKey)
		}
	}
	return nil
}

// applyLinks runs the apply phase for one record and returns the records
// it enqueues. Relation records never outlive their endpoints: whatever
// the behaviour, the relation's index entries are removed once this side
// goes.
func (s *Store) applyLinks(tx *bolt.Tx, cur recordRef, desc Descriptor, edges []relEdge) ([]recordRef, error) {
	var next []recordRef

	for _, l := range desc.Siblings {
		if l.OnDelete != Cascade {
			continue
		}
		sb := tx.Bucket([]byte(l.Store))
		if sb == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, l.Store)
		}
		if sb.Get(cur.key) != nil {
			next = append(next, recordRef{l.Store, cur.key})
		}
	}

	for _, l := range desc.Children {
		if l.OnDelete != Cascade {
			continue
		}
		cb := tx.Bucket([]byte(l.Store))
		if cb == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, l.Store)
		}
		err := forEachPrefix(cb, cur.key, func(k, _ []byte) error {
			next = append(next, recordRef{l.Store, append([]byte(nil), k...)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	for _, e := range edges {
		if e.onSelfDelete == Cascade {
			next = append(next, recordRef{e.otherStore, e.otherKey})
		}
		if err := deleteRelation(tx, e.rel); err != nil {
			return nil, err
		}
	}

	return next, nil
}

func blockedBy(storeName string, key []byte) error {
	k, err := keycodec.Decode(key)
	if err != nil {
		return fmt.Errorf("warren: %s key: %w", storeName, err)
	}
	return &IntegrityError{Store: storeName, Key: k}
}
