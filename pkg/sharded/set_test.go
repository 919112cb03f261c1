package sharded

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestNewSetRejectsInvalidShardCounts(t *testing.T) {
	for _, n := range []int{0, -4, 3, 100} {
		if _, err := NewSet(n); err == nil {
			t.Errorf("expected error for shard count %d", n)
		}
	}
	if _, err := NewSet(16); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetBasicOperations(t *testing.T) {
	s, err := NewSet(DefaultShards)
	if err != nil {
		t.Fatal(err)
	}

	if s.Has("a") {
		t.Error("empty set should not contain 'a'")
	}
	s.Store("a")
	if !s.Has("a") {
		t.Error("expected 'a' after Store")
	}
	if loaded := s.LoadOrStore("a"); !loaded {
		t.Error("LoadOrStore should report existing key as loaded")
	}
	if loaded := s.LoadOrStore("b"); loaded {
		t.Error("LoadOrStore should report new key as not loaded")
	}
	s.Delete("a")
	if s.Has("a") {
		t.Error("expected 'a' to be deleted")
	}

	keys := s.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("expected [b], got %v", keys)
	}
}

func TestSetConcurrentLoadOrStore(t *testing.T) {
	s, err := NewSet(8)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16
	const keys = 200
	var firstStores sync.Map
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range keys {
				key := fmt.Sprintf("/remote/dir/%d", i)
				if !s.LoadOrStore(key) {
					if _, dup := firstStores.LoadOrStore(key, w); dup {
						t.Errorf("key %s stored as new twice", key)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if got := s.Count(); got != keys {
		t.Errorf("expected %d keys, got %d", keys, got)
	}
}
