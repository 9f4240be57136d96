package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestManifest(t *testing.T) (string, func()) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	return path, func() {}
}

func TestManifestCanBeWrittenAndRead(t *testing.T) {
	path, cleanup := setupTestManifest(t)
	defer cleanup()

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	txn := w.Transaction()
	txn.AddSSTable(0, "key1", "key2")
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	m, err := NewReader(f).Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(m.SSTables) != 1 {
		t.Fatalf("len(SSTables) = %d, want 1", len(m.SSTables))
	}
	if m.SSTables[0].ID != 0 {
		t.Fatalf("ID = %d, want 0", m.SSTables[0].ID)
	}
}

func TestManifestDoesNotPersistUntilCommit(t *testing.T) {
	path, cleanup := setupTestManifest(t)
	defer cleanup()

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	txn := w.Transaction()
	txn.AddSSTable(0, "key1", "key2")

	f, _ := os.Open(path)
	m, err := NewReader(f).Read()
	f.Close()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(m.SSTables) != 0 {
		t.Fatalf("len(SSTables) = %d, want 0 before commit", len(m.SSTables))
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	f, _ = os.Open(path)
	m, err = NewReader(f).Read()
	f.Close()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(m.SSTables) != 1 {
		t.Fatalf("len(SSTables) = %d, want 1 after commit", len(m.SSTables))
	}
}

func TestFirstSSTableIDIsZero(t *testing.T) {
	path, cleanup := setupTestManifest(t)
	defer cleanup()

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	txn := w.Transaction()
	id, err := txn.AddSSTable(0, "key1", "key2")
	if err != nil {
		t.Fatalf("AddSSTable: %v", err)
	}
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestManifestPersistsItemRemovalOnReopen(t *testing.T) {
	path, cleanup := setupTestManifest(t)
	defer cleanup()

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	txn := w.Transaction()
	id0, _ := txn.AddSSTable(0, "key1", "key2")
	id1, _ := txn.AddSSTable(0, "key2", "key3")
	txn.RemoveSSTable(id0)
	txn.RemoveSSTable(id1)
	id2, _ := txn.AddSSTable(0, "key3", "key4")
	id3, _ := txn.AddSSTable(0, "key4", "key5")
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, _ := os.Open(path)
	m, err := NewReader(f).Read()
	f.Close()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(m.SSTables) != 2 || m.SSTables[0].ID != id2 || m.SSTables[1].ID != id3 {
		t.Fatalf("SSTables = %+v, want [%d %d]", m.SSTables, id2, id3)
	}

	w2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	f, _ = os.Open(path)
	m, err = NewReader(f).Read()
	f.Close()
	if err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if len(m.SSTables) != 2 || m.SSTables[0].ID != id2 || m.SSTables[1].ID != id3 {
		t.Fatalf("SSTables after reopen = %+v, want [%d %d]", m.SSTables, id2, id3)
	}
}

func TestUncommittedTransactionLeavesFileUnchanged(t *testing.T) {
	path, cleanup := setupTestManifest(t)
	defer cleanup()

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	txn := w.Transaction()
	txn.AddSSTable(0, "key1", "key2")
	// Transaction dropped without Commit.

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("uncommitted transaction must not modify the manifest file")
	}
}

func TestSecondOpenFailsWithAlreadyOpen(t *testing.T) {
	path, cleanup := setupTestManifest(t)
	defer cleanup()

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected second Open to fail")
	}
}

func TestCandidatesForKey(t *testing.T) {
	m := Manifest{SSTables: []SSTable{
		{ID: 0, Level: 0, MinKey: "a", MaxKey: "m"},
		{ID: 1, Level: 1, MinKey: "n", MaxKey: "z"},
	}}
	candidates := m.CandidatesForKey("f")
	if len(candidates) != 1 || candidates[0].ID != 0 {
		t.Fatalf("CandidatesForKey = %+v", candidates)
	}
}

func TestNewestFirstOrdering(t *testing.T) {
	in := []SSTable{
		{ID: 0, Level: 1},
		{ID: 5, Level: 0},
		{ID: 2, Level: 0},
		{ID: 1, Level: 2},
	}
	out := NewestFirst(in)
	want := []uint64{5, 2, 0, 1}
	for i, s := range out {
		if s.ID != want[i] {
			t.Fatalf("NewestFirst = %+v, want ids %v", out, want)
		}
	}
}
