package persistence

import (
	"strings"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const fileMode = 0o600

var _ Store = (*BoltStore)(nil)

// BoltStore keeps items in one bucket of a bbolt database file, so routing
// entries survive process restarts.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
	closed atomic.Bool
}

// OpenBoltStore opens (or creates) the database at path and makes sure bucket exists.
func OpenBoltStore(path, bucket string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrBlankPath
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, ErrBlankBucket
	}

	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: 30 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db, bucket: []byte(bucket)}, nil
}

func (s *BoltStore) GetItem(key string) (string, error) {
	if s.closed.Load() {
		return "", ErrStoreClosed
	}
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return ErrItemNotFound
		}
		// v is only valid inside the transaction
		value = string(v)
		return nil
	})
	return value, err
}

func (s *BoltStore) SetItem(key, value string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) RemoveItem(key string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Close releases the database file. It is safe to call more than once.
func (s *BoltStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
