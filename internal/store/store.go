// Package store provides the durable image->preimage table the
// database stage writes to and reads from. It wraps go.etcd.io/bbolt,
// an ordered single-file KV engine that gives the DB stage exactly
// what it needs from the external KV collaborator: point get, and
// atomic batched writes via a single transaction.
package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/phagara/shabang/internal/stageerr"
)

var bucketName = []byte("images")

// KV is the durable point-get + atomic-batch-write interface the
// database stage consumes. *Store is the production implementation,
// backed by a real bbolt file; tests substitute a small hand-written
// fake to force outcomes a real store can't easily be made to produce
// on demand, such as a Get that never finds anything or a failing
// Commit (see internal/dbstage's fakeKV).
type KV interface {
	Get(key []byte) (value []byte, found bool, err error)
	NewBatch() Batch
}

// Batch accumulates puts for a single atomic commit.
type Batch interface {
	// Put stages a key/value pair; it is not durable until Commit.
	Put(key, value []byte)
	// Empty reports whether any puts are staged.
	Empty() bool
	// Commit writes every staged put in one transaction and clears
	// the batch for reuse. Commit on an empty batch is a no-op.
	Commit() error
}

// Store is the durable image(key) -> preimage(value) table. It is
// created exclusively by the driver and handed to the DB stage as a
// non-owning reference: only the DB stage calls Get/Commit while the
// search runs.
type Store struct {
	db   *bolt.DB
	path string
}

// Open creates a new store at path. Unlike bbolt's usual
// open-or-create behavior, Open refuses to reuse an existing file: the
// source's LevelDB options were create_if_missing=true,
// error_if_exists=true, and a leftover file from a previous run would
// silently seed a fresh search with stale mappings.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, stageerr.New(stageerr.StoreOpenError,
			fmt.Errorf("store: %s already exists, refusing to reuse it", path))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, stageerr.New(stageerr.StoreOpenError, fmt.Errorf("store: stat %s: %w", path, err))
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, stageerr.New(stageerr.StoreOpenError, fmt.Errorf("store: open %s: %w", path, err))
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, stageerr.New(stageerr.StoreOpenError, fmt.Errorf("store: create bucket: %w", err))
	}

	return &Store{db: db, path: path}, nil
}

// Get performs the authoritative point read. found=false with err=nil
// is the "not found" outcome (a bloom false positive); any other error
// is a fatal StoreReadError.
func (s *Store) Get(key []byte) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, stageerr.New(stageerr.StoreReadError, fmt.Errorf("store: get: %w", err))
	}
	return value, found, nil
}

// Close closes the underlying file and destroys it: the store is
// scoped to a single run and carries no state across restarts.
func (s *Store) Close() error {
	var errs []error
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("store: close: %v", errs)
	}
	return nil
}

// boltBatch is the production Batch, backed by a single bbolt.Update
// transaction per Commit. It mirrors the DB stage's "coalesce writes
// until a read forces a flush" policy: every put in a batch becomes
// durable together or not at all.
type boltBatch struct {
	store *Store
	keys  [][]byte
	vals  [][]byte
}

// NewBatch creates an empty batch bound to s.
func (s *Store) NewBatch() Batch {
	return &boltBatch{store: s}
}

func (b *boltBatch) Put(key, value []byte) {
	b.keys = append(b.keys, append([]byte(nil), key...))
	b.vals = append(b.vals, append([]byte(nil), value...))
}

func (b *boltBatch) Empty() bool {
	return len(b.keys) == 0
}

func (b *boltBatch) Commit() error {
	if b.Empty() {
		return nil
	}
	err := b.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		for i := range b.keys {
			if err := bucket.Put(b.keys[i], b.vals[i]); err != nil {
				return err
			}
		}
		return nil
	})
	b.keys = nil
	b.vals = nil
	if err != nil {
		return stageerr.New(stageerr.StoreWriteError, fmt.Errorf("store: commit batch: %w", err))
	}
	return nil
}
