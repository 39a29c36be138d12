package bolt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"stash/internal/store"
)

var (
	defaultBucket = []byte("stash")
	defaultKey    = []byte("value")
)

// lockTimeout bounds the wait on bbolt's file lock when another process
// holds the database.
const lockTimeout = time.Second

// Store implements store.Store using bbolt (embedded B+ tree). The payload
// lives under a single key; the database is opened and closed around
// every call so no handle outlives the operation.
type Store struct {
	path   string
	mode   os.FileMode
	bucket []byte
	key    []byte
}

// New returns a bolt-backed store for the database file at path.
func New(path string, mode os.FileMode) *Store {
	return &Store{
		path:   path,
		mode:   mode,
		bucket: defaultBucket,
		key:    defaultKey,
	}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Read() ([]byte, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", store.ErrNotFound, s.path, err)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", store.ErrIO, s.path, err)
	}

	db, err := bolt.Open(s.path, s.mode, &bolt.Options{ReadOnly: true, Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: opening bolt db %s: %w", store.ErrIO, s.path, err)
	}
	defer db.Close()

	var val []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		v := b.Get(s.key)
		if v != nil {
			val = make([]byte, len(v))
			copy(val, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading bolt db %s: %w", store.ErrIO, s.path, err)
	}
	if val == nil {
		return nil, fmt.Errorf("%w: no value in %s", store.ErrNotFound, s.path)
	}
	return val, nil
}

func (s *Store) Write(data []byte) error {
	db, err := bolt.Open(s.path, s.mode, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return fmt.Errorf("%w: opening bolt db %s: %w", store.ErrIO, s.path, err)
	}
	defer db.Close()

	// bolt.Open only applies the mode on creation.
	if err := os.Chmod(s.path, s.mode); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", store.ErrIO, s.path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
		return b.Put(s.key, data)
	})
	if err != nil {
		return fmt.Errorf("%w: writing bolt db %s: %w", store.ErrIO, s.path, err)
	}
	return nil
}

// Remove deletes the stored value but keeps the database file.
func (s *Store) Remove() error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	db, err := bolt.Open(s.path, s.mode, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return fmt.Errorf("%w: opening bolt db %s: %w", store.ErrIO, s.path, err)
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete(s.key)
	})
	if err != nil {
		return fmt.Errorf("%w: deleting from bolt db %s: %w", store.ErrIO, s.path, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
