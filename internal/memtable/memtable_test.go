package memtable

import "testing"

func TestPutAndGet(t *testing.T) {
	m := New()
	m.Put("b", []byte("2"))
	m.Put("a", []byte("1"))
	m.Put("c", []byte("3"))

	if v, ok := m.Get("a"); !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if v, ok := m.Get("b"); !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v", v, ok)
	}
	if _, ok := m.Get("z"); ok {
		t.Fatal("Get(z) found, want absent")
	}
}

func TestEntriesAreSorted(t *testing.T) {
	m := New()
	m.Put("banana", []byte("2"))
	m.Put("apple", []byte("1"))
	m.Put("cherry", []byte("3"))

	entries := m.Entries()
	want := []string{"apple", "banana", "cherry"}
	for i, kv := range entries {
		if kv.Key != want[i] {
			t.Fatalf("Entries()[%d].Key = %q, want %q", i, kv.Key, want[i])
		}
	}
}

func TestSizeTracksOverwrite(t *testing.T) {
	m := New()
	m.Put("k", []byte("ab"))
	if m.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", m.Size())
	}
	m.Put("k", []byte("abcd"))
	if m.Size() != 5 {
		t.Fatalf("Size() after overwrite = %d, want 5", m.Size())
	}
}

func TestClearResetsSizeAndEntries(t *testing.T) {
	m := New()
	m.Put("k", []byte("v"))
	m.Clear()
	if m.Len() != 0 || m.Size() != 0 {
		t.Fatalf("Clear() left Len=%d Size=%d, want 0, 0", m.Len(), m.Size())
	}
}

func TestRangeBounds(t *testing.T) {
	m := New()
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put(k, []byte(k))
	}

	got := m.Range("a", "c", false, true)
	var keys []string
	for _, kv := range got {
		keys = append(keys, kv.Key)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("Range(a,c) = %v, want [a b]", keys)
	}
}
