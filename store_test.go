package lsmstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestPointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Insert("hello", []byte{0x00, 0x01, 0x02}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	value, ok, err := s.Get("hello")
	if err != nil || !ok || string(value) != string([]byte{0x00, 0x01, 0x02}) {
		t.Fatalf("Get(hello) = %v, %v, %v", value, ok, err)
	}
}

func TestReopenPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Insert("hello", []byte("world")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	value, ok, err := s2.Get("hello")
	if err != nil || !ok || string(value) != "world" {
		t.Fatalf("Get(hello) after reopen = %v, %v, %v", value, ok, err)
	}
}

func TestBulk5000(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 5000; i++ {
		key := fmt.Sprintf("key_%04d", i)
		value := fmt.Sprintf("value_%04d", i)
		if err := s.Insert(key, []byte(value)); err != nil {
			t.Fatalf("Insert(%s): %v", key, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	for i := 0; i < 5000; i++ {
		key := fmt.Sprintf("key_%04d", i)
		want := fmt.Sprintf("value_%04d", i)
		value, ok, err := s2.Get(key)
		if err != nil || !ok || string(value) != want {
			t.Fatalf("Get(%s) = %v, %v, %v, want %q", key, value, ok, err, want)
		}
	}
}

func TestMemtableSpillCreatesExactlyOneSSTable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	keyLen, valueLen := 8, 8
	pairSize := keyLen + valueLen
	count := (s.opts.MaxMemtableSize / pairSize) + 1

	before := countSSTableFiles(t, dir)
	for i := 0; i < count; i++ {
		key := fmt.Sprintf("k%07d", i)
		if err := s.Insert(key, []byte(fmt.Sprintf("v%07d", i))); err != nil {
			t.Fatalf("Insert #%d: %v", i, err)
		}
	}
	after := countSSTableFiles(t, dir)

	if after-before != 1 {
		t.Fatalf("sstable file count changed by %d, want 1", after-before)
	}
}

func countSSTableFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	n := 0
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".sst" {
			n++
		}
	}
	return n
}

func TestRangeAcrossTiers(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Insert("foo", []byte("bar")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert("foo2", []byte("bar2")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if err := s2.Insert("foo3", []byte("bar3")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s2.Insert("foo4", []byte("bar4")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	kvs, err := s2.GetRange(KeyRange{Start: "foo", End: "fooz", EndExclusive: true})
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}

	wantKeys := []string{"foo", "foo2", "foo3", "foo4"}
	wantValues := []string{"bar", "bar2", "bar3", "bar4"}
	if len(kvs) != len(wantKeys) {
		t.Fatalf("GetRange = %+v, want %d entries", kvs, len(wantKeys))
	}
	for i, kv := range kvs {
		if kv.Key != wantKeys[i] || string(kv.Value) != wantValues[i] {
			t.Fatalf("GetRange[%d] = %+v, want (%s, %s)", i, kv, wantKeys[i], wantValues[i])
		}
	}
}

func TestDuplicatePrecedence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Insert("foo", []byte("bar")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if err := s2.Insert("foo", []byte("bar2")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	kvs, err := s2.GetRange(KeyRange{Start: "foo", End: "fooz", EndExclusive: true})
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(kvs) != 1 || kvs[0].Key != "foo" || string(kvs[0].Value) != "bar2" {
		t.Fatalf("GetRange = %+v, want [(foo, bar2)]", kvs)
	}
}

func TestInsertRejectsOversizedKeyAndValue(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	big := make([]byte, 513)
	if err := s.Insert(string(big), []byte("v")); err == nil {
		t.Fatal("expected BadInput for oversized key")
	}
	if err := s.Insert("k", big); err == nil {
		t.Fatal("expected BadInput for oversized value")
	}
}

func TestSecondOpenFailsWithAlreadyOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := Open(dir); err == nil {
		t.Fatal("expected second Open to fail")
	}
}
