package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/keycodec"
)

// Relation is an explicit link between two entities of any stores,
// independent of key containment. It carries one deletion behaviour per
// direction: OnDeleteA is applied to B when A is deleted, OnDeleteB to A
// when B is deleted.
type Relation struct {
	ID        uuid.UUID         `json:"id"`
	StoreA    string            `json:"store_a"`
	KeyA      []byte            `json:"key_a"`
	StoreB    string            `json:"store_b"`
	KeyB      []byte            `json:"key_b"`
	OnDeleteA DeletionBehaviour `json:"on_delete_a"`
	OnDeleteB DeletionBehaviour `json:"on_delete_b"`
	Metadata  json.RawMessage   `json:"metadata,omitempty"`
}

// RelationEnd describes one relation as seen from a given entity.
type RelationEnd struct {
	// ID is the relation identifier, usable with RemoveRelation.
	ID uuid.UUID

	// Store and Key identify the entity at the other end.
	Store string
	Key   Key

	// OnSelfDelete is applied to the other entity when this side is
	// deleted; OnOtherDelete is applied to this side when the other
	// entity is deleted.
	OnSelfDelete  DeletionBehaviour
	OnOtherDelete DeletionBehaviour

	// Metadata is the opaque payload attached at creation, if any.
	Metadata json.RawMessage
}

// CreateRelation links two existing entities. onDeleteA governs the fate
// of b when a is deleted; onDeleteB the fate of a when b is deleted.
// metadata may be nil; otherwise it is serialized and stored with the
// relation. The forward record, the reverse index entry, and the id entry
// are written in one transaction.
func (s *Store) CreateRelation(ctx context.Context, a, b Entity, onDeleteA, onDeleteB DeletionBehaviour, metadata any) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	rel := Relation{
		ID:        uuid.New(),
		StoreA:    a.StoreName(),
		KeyA:      keycodec.Encode(a.Key()),
		StoreB:    b.StoreName(),
		KeyB:      keycodec.Encode(b.Key()),
		OnDeleteA: onDeleteA,
		OnDeleteB: onDeleteB,
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: relation metadata: %w", ErrSerialization, err)
		}
		rel.Metadata = raw
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, end := range []struct {
			store string
			key   []byte
		}{
			{rel.StoreA, rel.KeyA},
			{rel.StoreB, rel.KeyB},
		} {
			eb := tx.Bucket([]byte(end.store))
			if eb == nil {
				return fmt.Errorf("%w: %s", ErrNotRegistered, end.store)
			}
			if eb.Get(end.key) == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, end.store)
			}
		}
		return putRelation(tx, rel)
	})
	if err != nil {
		return uuid.Nil, wrapStorage("create relation", rel.StoreA, err)
	}

	s.logger.Debug("created relation",
		"id", rel.ID,
		"a", rel.StoreA,
		"b", rel.StoreB,
		"onDeleteA", onDeleteA,
		"onDeleteB", onDeleteB,
	)
	return rel.ID, nil
}

// RelationsOf returns every relation touching an entity, from either
// direction, in index order.
func (s *Store) RelationsOf(ctx context.Context, storeName string, key Key) ([]RelationEnd, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ends []RelationEnd
	err := s.db.View(func(tx *bolt.Tx) error {
		edges, err := relationsOfTx(tx, storeName, keycodec.Encode(key))
		if err != nil {
			return err
		}
		for _, e := range edges {
			otherKey, err := keycodec.Decode(e.otherKey)
			if err != nil {
				return fmt.Errorf("warren: relation key: %w", err)
			}
			ends = append(ends, RelationEnd{
				ID:            e.rel.ID,
				Store:         e.otherStore,
				Key:           otherKey,
				OnSelfDelete:  e.onSelfDelete,
				OnOtherDelete: e.onOtherDelete,
				Metadata:      e.rel.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage("relations of", storeName, err)
	}
	return ends, nil
}

// RemoveRelation deletes a relation's forward, reverse, and id entries in
// one transaction. The linked entities are untouched.
func (s *Store) RemoveRelation(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		idb := relBucket(tx, relIDBucket)
		raw := idb.Get(id[:])
		if raw == nil {
			return fmt.Errorf("%w: relation %s", ErrNotFound, id)
		}
		var rel Relation
		if err := json.Unmarshal(raw, &rel); err != nil {
			return fmt.Errorf("%w: relation record: %w", ErrSerialization, err)
		}
		return deleteRelation(tx, rel)
	})
	if err != nil {
		return wrapStorage("remove relation", id.String(), err)
	}
	return nil
}

// relEdge is a relation as discovered during a transaction, with the
// behaviours already oriented to the queried side.
type relEdge struct {
	rel           Relation
	otherStore    string
	otherKey      []byte
	onSelfDelete  DeletionBehaviour
	onOtherDelete DeletionBehaviour
}

// endpoint builds the index prefix for one entity: the self-delimiting
// store name encoding followed by the key bytes.
func endpoint(storeName string, key []byte) []byte {
	return append(keycodec.Encode(keycodec.String(storeName)), key...)
}

func relBucket(tx *bolt.Tx, name string) *bolt.Bucket {
	return tx.Bucket([]byte(internalBucket)).Bucket([]byte(name))
}

// putRelation writes all three index entries for a relation.
func putRelation(tx *bolt.Tx, rel Relation) error {
	raw, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("%w: relation record: %w", ErrSerialization, err)
	}

	fwdKey, revKey := relationIndexKeys(rel)
	if err := relBucket(tx, relFwdBucket).Put(fwdKey, raw); err != nil {
		return err
	}
	if err := relBucket(tx, relRevBucket).Put(revKey, raw); err != nil {
		return err
	}
	return relBucket(tx, relIDBucket).Put(rel.ID[:], raw)
}

// deleteRelation removes all three index entries for a relation.
func deleteRelation(tx *bolt.Tx, rel Relation) error {
	fwdKey, revKey := relationIndexKeys(rel)
	if err := relBucket(tx, relFwdBucket).Delete(fwdKey); err != nil {
		return err
	}
	if err := relBucket(tx, relRevBucket).Delete(revKey); err != nil {
		return err
	}
	return relBucket(tx, relIDBucket).Delete(rel.ID[:])
}

// relationIndexKeys derives the forward and reverse index keys. The id
// suffix keeps entries unique when the same pair is related more than
// once.
func relationIndexKeys(rel Relation) (fwd, rev []byte) {
	endA := endpoint(rel.StoreA, rel.KeyA)
	endB := endpoint(rel.StoreB, rel.KeyB)
	fwd = append(append(append([]byte(nil), endA...), endB...), rel.ID[:]...)
	rev = append(append(append([]byte(nil), endB...), endA...), rel.ID[:]...)
	return fwd, rev
}

// relationsOfTx scans both indexes for relations touching (storeName,
// key) and orients each edge to that side. The prefix scan can overshoot
// onto entries whose key bytes merely extend the queried ones, so each
// record's own endpoint is checked before the edge is kept.
func relationsOfTx(tx *bolt.Tx, storeName string, key []byte) ([]relEdge, error) {
	self := endpoint(storeName, key)
	var edges []relEdge

	collect := func(bucketName string, selfIsA bool) error {
		return forEachPrefix(relBucket(tx, bucketName), self, func(_, v []byte) error {
			var rel Relation
			if err := json.Unmarshal(v, &rel); err != nil {
				return fmt.Errorf("%w: relation record: %w", ErrSerialization, err)
			}
			if selfIsA {
				if rel.StoreA != storeName || !bytes.Equal(rel.KeyA, key) {
					return nil
				}
			} else {
				if rel.StoreB != storeName || !bytes.Equal(rel.KeyB, key) {
					return nil
				}
			}
			e := relEdge{rel: rel}
			if selfIsA {
				e.otherStore = rel.StoreB
				e.otherKey = rel.KeyB
				e.onSelfDelete = rel.OnDeleteA
				e.onOtherDelete = rel.OnDeleteB
			} else {
				e.otherStore = rel.StoreA
				e.otherKey = rel.KeyA
				e.onSelfDelete = rel.OnDeleteB
				e.onOtherDelete = rel.OnDeleteA
			}
			edges = append(edges, e)
			return nil
		})
	}

	if err := collect(relFwdBucket, true); err != nil {
		return nil, err
	}
	if err := collect(relRevBucket, false); err != nil {
		return nil, err
	}
	return edges, nil
}
