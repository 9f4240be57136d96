package lru

import "testing"

func TestLRUCache(t *testing.T) {
	cache := New[string, string](2)

	cache.Put("foo", "bar")
	cache.Put("baz", "qux")

	if v, ok := cache.Get("foo"); !ok || v != "bar" {
		t.Fatalf("Get(foo) = %q, %v", v, ok)
	}
	if v, ok := cache.Get("baz"); !ok || v != "qux" {
		t.Fatalf("Get(baz) = %q, %v", v, ok)
	}

	cache.Put("quux", "corge")

	if _, ok := cache.Get("foo"); ok {
		t.Fatal("expected foo to be evicted")
	}
	if v, ok := cache.Get("baz"); !ok || v != "qux" {
		t.Fatalf("Get(baz) = %q, %v", v, ok)
	}
	if v, ok := cache.Get("quux"); !ok || v != "corge" {
		t.Fatalf("Get(quux) = %q, %v", v, ok)
	}
}

func TestLRUCacheOverwrite(t *testing.T) {
	cache := New[string, int](2)
	cache.Put("a", 1)
	cache.Put("a", 2)

	if v, ok := cache.Get("a"); !ok || v != 2 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if got := cache.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}
