// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	c := New[string, int](100)
	if c == nil {
		t.Fatal("New returned nil")
	}
	if got := c.Stats().Capacity; got != 100 {
		t.Errorf("expected capacity 100, got %d", got)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](10)

	c.Set("key1", 42)

	val, ok := c.Get("key1")
	if !ok {
		t.Error("expected key1 to exist")
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}

	if _, ok = c.Get("nonexistent"); ok {
		t.Error("expected nonexistent key to not exist")
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](10)
	createCalled := 0

	val := c.GetOrCreate("key1", func() int {
		createCalled++
		return 100
	})
	if val != 100 {
		t.Errorf("expected 100, got %d", val)
	}

	val = c.GetOrCreate("key1", func() int {
		createCalled++
		return 200
	})
	if val != 100 {
		t.Errorf("expected 100 (cached), got %d", val)
	}
	if createCalled != 1 {
		t.Errorf("expected create called once, got %d", createCalled)
	}
}

func TestCacheGetOrTryCreateDoesNotCacheFailure(t *testing.T) {
	c := New[string, int](0)
	errLink := errors.New("link failed")
	calls := 0

	_, err := c.GetOrTryCreate("p", func() (int, error) {
		calls++
		return 0, errLink
	})
	if !errors.Is(err, errLink) {
		t.Fatalf("err = %v, want %v", err, errLink)
	}
	if c.Len() != 0 {
		t.Errorf("failed create was cached, Len = %d", c.Len())
	}

	v, err := c.GetOrTryCreate("p", func() (int, error) {
		calls++
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("GetOrTryCreate = (%d, %v), want (7, nil)", v, err)
	}
	if calls != 2 {
		t.Errorf("create calls = %d, want 2", calls)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](10)

	c.Set("key1", 42)

	if !c.Delete("key1") {
		t.Error("expected Delete to return true for existing key")
	}
	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be deleted")
	}
	if c.Delete("nonexistent") {
		t.Error("expected Delete to return false for non-existing key")
	}
}

func TestCacheDeleteFunc(t *testing.T) {
	var evicted []int
	c := NewWithEvict[int, int](0, func(k, _ int) { evicted = append(evicted, k) })
	for i := 0; i < 10; i++ {
		c.Set(i, i)
	}

	n := c.DeleteFunc(func(k, _ int) bool { return k%2 == 0 })
	if n != 5 {
		t.Errorf("DeleteFunc removed %d, want 5", n)
	}
	if len(evicted) != 5 {
		t.Errorf("evict callback ran %d times, want 5", len(evicted))
	}
	if c.Len() != 5 {
		t.Errorf("Len = %d, want 5", c.Len())
	}
}

func TestCacheClear(t *testing.T) {
	c := New[string, int](10)

	c.Set("key1", 1)
	c.Set("key2", 2)
	c.Set("key3", 3)

	if c.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", c.Len())
	}

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected 0 entries after clear, got %d", c.Len())
	}
}

func TestCacheEviction(t *testing.T) {
	var evicted int
	c := NewWithEvict[string, int](4, func(string, int) { evicted++ })

	for i := 0; i < 4; i++ {
		c.Set(strconv.Itoa(i), i)
	}
	c.Set("new", 100)

	if c.Len() > 4 {
		t.Errorf("expected at most 4 entries after eviction, got %d", c.Len())
	}
	if evicted == 0 {
		t.Error("expected evict callback to run")
	}
	if got := c.Stats().Evictions; got != uint64(evicted) {
		t.Errorf("Stats().Evictions = %d, want %d", got, evicted)
	}

	val, ok := c.Get("new")
	if !ok || val != 100 {
		t.Error("expected new entry to exist")
	}
}

func TestCacheUnlimited(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < 1000; i++ {
		c.Set(i, i)
	}
	if c.Len() != 1000 {
		t.Errorf("unbounded cache Len = %d, want 1000", c.Len())
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := New[int, int](1000)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(n*100+j, n*100+j)
				c.Get(n*100 + j)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() == 0 {
		t.Error("expected non-empty cache after concurrent operations")
	}
}

// ShardedCache tests

// pair mirrors the framebuffer key: two attachment ids.
type pair struct{ a, b uint64 }

func hashPair(p pair) uint64 { return PairHasher(p.a, p.b) }

func TestNewSharded(t *testing.T) {
	c := NewSharded[pair, int](100, hashPair)
	st := c.Stats()
	if st.Capacity != 100 || st.TotalCapacity != 100*DefaultShardCount {
		t.Errorf("capacity = %d/%d, want 100/%d", st.Capacity, st.TotalCapacity, 100*DefaultShardCount)
	}

	d := NewSharded[pair, int](0, hashPair)
	if got := d.Stats().Capacity; got != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, got)
	}
}

func TestPairHasherSpreadsSequentialIDs(t *testing.T) {
	used := map[uint64]bool{}
	for i := uint64(1); i <= 64; i++ {
		used[PairHasher(i, 0)&shardMask] = true
	}
	if len(used) < DefaultShardCount*3/4 {
		t.Errorf("64 sequential ids landed in %d of %d shards", len(used), DefaultShardCount)
	}
	if PairHasher(1, 2) == PairHasher(2, 1) {
		t.Error("PairHasher is symmetric")
	}
}

func TestShardedCacheGetSet(t *testing.T) {
	c := NewSharded[pair, int](10, hashPair)

	c.Set(pair{1, 0}, 42)
	if v, ok := c.Get(pair{1, 0}); !ok || v != 42 {
		t.Errorf("Get = (%d, %v), want (42, true)", v, ok)
	}

	c.Set(pair{1, 0}, 43)
	if v, _ := c.Get(pair{1, 0}); v != 43 {
		t.Errorf("Get after update = %d, want 43", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestShardedCacheEvictionCallback(t *testing.T) {
	c := NewSharded[pair, int](1, hashPair)
	evicted := map[pair]int{}
	c.OnEvict(func(k pair, v int) { evicted[k] = v })

	for i := uint64(0); i < 64; i++ {
		c.Set(pair{i, 0}, int(i))
	}

	if c.Len() > DefaultShardCount {
		t.Errorf("Len = %d, want at most %d", c.Len(), DefaultShardCount)
	}
	if uint64(len(evicted)) != c.Stats().Evictions {
		t.Errorf("callback saw %d evictions, stats report %d", len(evicted), c.Stats().Evictions)
	}
	if len(evicted)+c.Len() != 64 {
		t.Errorf("evicted %d + live %d != 64", len(evicted), c.Len())
	}
}

func TestShardedCacheDeleteFunc(t *testing.T) {
	c := NewSharded[pair, int](16, hashPair)
	var swept []pair
	c.OnEvict(func(k pair, _ int) { swept = append(swept, k) })

	c.Set(pair{1, 2}, 1)
	c.Set(pair{1, 3}, 2)
	c.Set(pair{4, 2}, 3)
	c.Set(pair{5, 6}, 4)

	n := c.DeleteFunc(func(k pair, _ int) bool { return k.a == 1 || k.b == 2 })
	if n != 3 || len(swept) != 3 {
		t.Fatalf("DeleteFunc removed %d (callback %d), want 3", n, len(swept))
	}
	if _, ok := c.Get(pair{5, 6}); !ok {
		t.Error("unrelated entry was swept")
	}
}

func TestShardedCacheGetOrTryCreate(t *testing.T) {
	c := NewSharded[pair, int](10, hashPair)
	k := pair{7, 8}

	if _, err := c.GetOrTryCreate(k, func() (int, error) { return 0, errors.New("boom") }); err == nil {
		t.Fatal("expected error")
	}
	v, err := c.GetOrTryCreate(k, func() (int, error) { return 5, nil })
	if err != nil || v != 5 {
		t.Fatalf("GetOrTryCreate = (%d, %v), want (5, nil)", v, err)
	}
	v, _ = c.GetOrTryCreate(k, func() (int, error) { return 6, nil })
	if v != 5 {
		t.Errorf("cached value = %d, want 5", v)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Len != 1 {
		t.Errorf("stats = %+v, want 1 hit, 2 misses, 1 entry", stats)
	}
}

func TestShardedCacheDelete(t *testing.T) {
	c := NewSharded[pair, int](10, hashPair)
	c.Set(pair{1, 1}, 1)
	if !c.Delete(pair{1, 1}) {
		t.Error("expected Delete to return true")
	}
	if c.Delete(pair{1, 1}) {
		t.Error("expected second Delete to return false")
	}
}

func TestShardedCacheConcurrent(t *testing.T) {
	c := NewSharded[pair, int](100, hashPair)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := pair{uint64(n), uint64(j)}
				c.Set(k, j)
				c.Get(k)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() == 0 {
		t.Error("expected non-empty cache")
	}
}
