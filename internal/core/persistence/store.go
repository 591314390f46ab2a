// Package persistence holds the key/value stores the message router persists
// its routing table into.
package persistence

import (
	"errors"
	"sync"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrBlankPath    = errors.New("store path must not be blank")
	ErrBlankBucket  = errors.New("store bucket must not be blank")
	ErrStoreClosed  = errors.New("store is closed")
)

// Store is a string key/value store.
type Store interface {
	// GetItem returns ErrItemNotFound when key is absent.
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps items for the lifetime of the process.
type MemoryStore struct {
	items sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) GetItem(key string) (string, error) {
	v, ok := s.items.Load(key)
	if !ok {
		return "", ErrItemNotFound
	}
	return v.(string), nil
}

func (s *MemoryStore) SetItem(key, value string) error {
	s.items.Store(key, value)
	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	s.items.Delete(key)
	return nil
}

// Len counts the stored items.
func (s *MemoryStore) Len() int {
	n := 0
	s.items.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
