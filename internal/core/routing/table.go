package routing

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/joynr/internal/core/address"
)

const defaultShardCount = 16

// Table maps participant ids to next-hop addresses. Entries are spread over
// shards by the xxhash of the participant id, each shard with its own lock.
type Table struct {
	shards []tableShard
	count  uint64
}

type tableShard struct {
	mx      sync.RWMutex
	entries map[string]address.Address
}

// NewTable creates a table with shardCount shards (16 when not positive).
func NewTable(shardCount int) *Table {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	t := &Table{
		shards: make([]tableShard, shardCount),
		count:  uint64(shardCount),
	}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]address.Address)
	}
	return t
}

func (t *Table) shard(participantID string) *tableShard {
	return &t.shards[xxhash.Sum64String(participantID)%t.count]
}

func (t *Table) Get(participantID string) (address.Address, bool) {
	s := t.shard(participantID)
	s.mx.RLock()
	defer s.mx.RUnlock()
	addr, ok := s.entries[participantID]
	return addr, ok
}

// Put stores addr and reports whether the participant was new.
func (t *Table) Put(participantID string, addr address.Address) bool {
	s := t.shard(participantID)
	s.mx.Lock()
	defer s.mx.Unlock()
	_, existed := s.entries[participantID]
	s.entries[participantID] = addr
	return !existed
}

// PutIfAbsent stores addr only when no entry exists yet.
func (t *Table) PutIfAbsent(participantID string, addr address.Address) bool {
	s := t.shard(participantID)
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, exists := s.entries[participantID]; exists {
		return false
	}
	s.entries[participantID] = addr
	return true
}

// Remove deletes the entry and reports whether one existed.
func (t *Table) Remove(participantID string) bool {
	s := t.shard(participantID)
	s.mx.Lock()
	defer s.mx.Unlock()
	_, existed := s.entries[participantID]
	delete(s.entries, participantID)
	return existed
}

func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mx.RLock()
		n += len(s.entries)
		s.mx.RUnlock()
	}
	return n
}
