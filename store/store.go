package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/jacentio/warren/internal/keycodec"
)

// internalBucket namespaces warren's own bookkeeping away from entity
// stores. Descriptors may not use this name.
const internalBucket = "__warren"

// Nested buckets under internalBucket.
const (
	seqBucket    = "seq"
	relFwdBucket = "relfwd"
	relRevBucket = "relrev"
	relIDBucket  = "relid"
)

// Store is a handle on one warren database file. All operations on all
// registered stores go through it; multi-step operations run in a single
// storage transaction.
type Store struct {
	db       *bolt.DB
	registry *Registry
	logger   *slog.Logger
}

// Open opens (or creates) the database file at cfg.Path and prepares the
// internal buckets.
func Open(cfg Config) (*Store, error) {
	cfg.validate()

	db, err := bolt.Open(cfg.Path, cfg.FileMode, &bolt.Options{
		Timeout: cfg.Timeout,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("warren: open %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(internalBucket))
		if err != nil {
			return err
		}
		for _, name := range []string{seqBucket, relFwdBucket, relRevBucket, relIDBucket} {
			if _, err := root.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("warren: init %s: %w", cfg.Path, err)
	}

	return &Store{
		db:       db,
		registry: NewRegistry(),
		logger:   cfg.Logger,
	}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Registry returns the descriptor registry for sibling/child lookups.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Register installs a store and its link metadata. Registration is
// idempotent: re-registering an existing store never resets its data.
func (s *Store) Register(ctx context.Context, d Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.Store == "" {
		return fmt.Errorf("%w: empty store name", ErrReservedName)
	}
	if d.Store == internalBucket {
		return fmt.Errorf("%w: %s", ErrReservedName, d.Store)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(d.Store))
		return err
	})
	if err != nil {
		return fmt.Errorf("warren: register %s: %w", d.Store, err)
	}

	s.registry.put(d)
	s.logger.Debug("registered store",
		"store", d.Store,
		"siblings", len(d.Siblings),
		"children", len(d.Children),
	)
	return nil
}

// Save upserts an entity at its current key.
func (s *Store) Save(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kb, payload, err := encodeEntity(e)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(e.StoreName()))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, e.StoreName())
		}
		return b.Put(kb, payload)
	})
	if err != nil {
		return wrapStorage("save", e.StoreName(), err)
	}
	return nil
}

// SaveNext assigns the next auto-increment key in the entity's own store
// scope, then upserts. Allocation and write happen in one transaction, so
// two concurrent callers never receive the same id and ids are never
// reused after deletion.
func (s *Store) SaveNext(ctx context.Context, e Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := e.StoreName()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		n, err := nextSequence(tx, name, nil)
		if err != nil {
			return err
		}
		e.SetKey(Int(n))
		kb, payload, err := encodeEntity(e)
		if err != nil {
			return err
		}
		return b.Put(kb, payload)
	})
	if err != nil {
		return wrapStorage("save next", name, err)
	}
	return nil
}

// SaveNextChild assigns the next auto-increment key scoped to the parent's
// key, producing a key of the form Tuple{parent.Key(), Int(seq)}, then
// upserts. The parent record must exist.
func (s *Store) SaveNextChild(ctx context.Context, parent, child Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := child.StoreName()
	parentKey := parent.Key()
	pkb := keycodec.Encode(parentKey)

	err := s.db.Update(func(tx *bolt.Tx) error {
		pb := tx.Bucket([]byte(parent.StoreName()))
		if pb == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, parent.StoreName())
		}
		if pb.Get(pkb) == nil {
			return fmt.Errorf("%w: parent %s %v", ErrNotFound, parent.StoreName(), parentKey)
		}
		cb := tx.Bucket([]byte(name))
		if cb == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		n, err := nextSequence(tx, name, pkb)
		if err != nil {
			return err
		}
		child.SetKey(Tuple{parentKey, Int(n)})
		kb, payload, err := encodeEntity(child)
		if err != nil {
			return err
		}
		return cb.Put(kb, payload)
	})
	if err != nil {
		return wrapStorage("save next child", name, err)
	}
	return nil
}

// Get retrieves an entity by key, decoding the payload into out.
func (s *Store) Get(ctx context.Context, storeName string, key Key, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kb := keycodec.Encode(key)

	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, storeName)
		}
		v := b.Get(kb)
		if v == nil {
			return fmt.Errorf("%w: %s %v", ErrNotFound, storeName, key)
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return wrapStorage("get", storeName, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrSerialization, storeName, err)
	}
	return nil
}

// Exists reports whether a record is present without decoding it.
func (s *Store) Exists(ctx context.Context, storeName string, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	kb := keycodec.Encode(key)

	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, storeName)
		}
		found = b.Get(kb) != nil
		return nil
	})
	if err != nil {
		return false, wrapStorage("exists", storeName, err)
	}
	return found, nil
}

// Children iterates a parent's records in a child store in key order,
// calling fn with each child's key and payload bytes. The slices passed to
// fn are copies and remain valid after the call.
func (s *Store) Children(ctx context.Context, storeName string, parentKey Key, fn func(key Key, payload []byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := keycodec.Encode(parentKey)

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, storeName)
		}
		return forEachPrefix(b, prefix, func(k, v []byte) error {
			key, err := keycodec.Decode(k)
			if err != nil {
				return fmt.Errorf("warren: %s key: %w", storeName, err)
			}
			return fn(key, append([]byte(nil), v...))
		})
	})
	if err != nil {
		return wrapStorage("children", storeName, err)
	}
	return nil
}

// Count returns the number of records in a store.
func (s *Store) Count(ctx context.Context, storeName string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storeName))
		if b == nil {
			return fmt.Errorf("%w: %s", ErrNotRegistered, storeName)
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, wrapStorage("count", storeName, err)
	}
	return n, nil
}

// encodeEntity produces the key bytes and payload for an entity.
func encodeEntity(e Entity) (kb, payload []byte, err error) {
	key := e.Key()
	if key == nil {
		return nil, nil, fmt.Errorf("warren: %s entity has no key", e.StoreName())
	}
	payload, err = json.Marshal(e)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: encode %s: %w", ErrSerialization, e.StoreName(), err)
	}
	return keycodec.Encode(key), payload, nil
}

// forEachPrefix visits every record whose key starts with prefix, in key
// order. Keys and values are only valid for the duration of the callback's
// enclosing transaction.
func forEachPrefix(b *bolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// wrapStorage adds operation context to storage-engine failures. Domain
// errors pass through untouched so callers can match sentinels directly.
// Lock-timeout failures from the engine are retryable; everything else
// indicates a usage error.
func wrapStorage(op, store string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{
		ErrNotFound, ErrNotRegistered, ErrIntegrity,
		ErrReservedName, ErrSerialization, keycodec.ErrCorrupt,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("warren: %s %s: %w", op, store, err)
}
