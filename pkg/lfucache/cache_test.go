package lfucache

import "testing"

func TestGetOrCreateAndEviction(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, v int) { evicted = append(evicted, k) })

	c.Put("a", 1)
	c.Put("b", 2)
	// "a" accessed twice more than "b", so "b" is the minimum-frequency entry.
	c.Get("a")
	c.Get("a")

	c.Put("c", 3) // forces eviction: capacity is 2

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected eviction of least-frequently-used key 'b', got %v", evicted)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected 'a' to survive eviction")
	}
}

func TestRemoveRecomputesMinFreq(t *testing.T) {
	c := New[string, int](3, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("b")
	c.Get("b")

	c.Remove("a") // empties the freq=1 bucket while "b" sits at freq=3

	c.Put("x", 10)
	c.Put("y", 20) // still within capacity (3), no eviction expected yet
	if c.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", c.Len())
	}

	var evicted []string
	c2 := New[string, int](1, func(k string, v int) { evicted = append(evicted, k) })
	c2.Put("a", 1)
	c2.Remove("a")
	c2.Put("b", 2)
	c2.Put("c", 3) // "b" must evict, proving minFreq recovered to a sane state
	// The explicit Remove also reports "a" through onEvict, so it comes first.
	if len(evicted) != 2 || evicted[0] != "a" || evicted[1] != "b" {
		t.Fatalf("expected evictions [a b] (explicit Remove, then 'b' after minFreq recompute), got %v", evicted)
	}
}

func TestGetOrCreateSharedHandle(t *testing.T) {
	c := New[string, *int](4, nil)
	calls := 0
	create := func() *int {
		calls++
		v := 0
		return &v
	}
	h1 := c.GetOrCreate("k", create)
	h2 := c.GetOrCreate("k", create)
	if h1 != h2 {
		t.Fatalf("expected GetOrCreate to return the same handle")
	}
	if calls != 1 {
		t.Fatalf("expected create to run once, ran %d times", calls)
	}
}
