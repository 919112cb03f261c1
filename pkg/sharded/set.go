// Package sharded provides a string set split across independently locked
// shards, for hot paths where many goroutines record keys at once.
package sharded

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// DefaultShards is the shard count used by callers without special needs.
const DefaultShards = 64

type shard struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// Set is a concurrency-safe string set.
type Set struct {
	shards []*shard
	mask   uint32
}

// NewSet returns a set with numShards shards. numShards must be a power of 2.
func NewSet(numShards int) (*Set, error) {
	if numShards <= 0 || numShards&(numShards-1) != 0 {
		return nil, fmt.Errorf("shard count must be a positive power of 2, got %d", numShards)
	}
	s := &Set{
		shards: make([]*shard, numShards),
		mask:   uint32(numShards - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]struct{})}
	}
	return s, nil
}

// shardFor picks the shard for key using FNV-1a.
func (s *Set) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()&s.mask]
}

// Store adds key to the set.
func (s *Set) Store(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = struct{}{}
	sh.mu.Unlock()
}

// Has reports whether key is in the set.
func (s *Set) Has(key string) bool {
	sh := s.shardFor(key)
	sh.mu.RLock()
	_, ok := sh.items[key]
	sh.mu.RUnlock()
	return ok
}

// LoadOrStore adds key and reports whether it was already present.
func (s *Set) LoadOrStore(key string) (loaded bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	_, loaded = sh.items[key]
	if !loaded {
		sh.items[key] = struct{}{}
	}
	sh.mu.Unlock()
	return loaded
}

// Delete removes key from the set.
func (s *Set) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
}

// Count returns the number of keys across all shards.
func (s *Set) Count() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Keys returns all keys in no particular order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, s.Count())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.items {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
	}
	return keys
}
