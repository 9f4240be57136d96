// Package memtable implements the store's in-memory write buffer: a
// sorted slice of entries searched by binary search, grounded on the
// teacher's lsm/memtable.go (itself a sorted-slice MemTable), adapted to
// spec.md §4.7's simpler contract — no tombstones, no sequence numbers,
// size tracked as the exact sum of key and value byte lengths.
package memtable

import (
	"sort"

	"github.com/intellect4all/lsmstore/internal/sstable"
)

// MemTable is an ordered key→value buffer with a tracked cumulative size.
// It is not safe for concurrent use; the store façade serializes access.
type MemTable struct {
	entries []sstable.KV
	size    int
}

// New returns an empty memtable.
func New() *MemTable {
	return &MemTable{}
}

// Put inserts or overwrites key, updating the tracked size in place: a new
// key adds len(key)+len(value), an overwrite adds only the value-length
// delta against the previous value.
func (m *MemTable) Put(key string, value []byte) {
	idx := m.search(key)
	if idx < len(m.entries) && m.entries[idx].Key == key {
		old := m.entries[idx].Value
		m.size += len(value) - len(old)
		m.entries[idx].Value = value
		return
	}

	m.entries = append(m.entries, sstable.KV{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = sstable.KV{Key: key, Value: value}
	m.size += len(key) + len(value)
}

// Get returns the value for key and whether it was present.
func (m *MemTable) Get(key string) ([]byte, bool) {
	idx := m.search(key)
	if idx < len(m.entries) && m.entries[idx].Key == key {
		return m.entries[idx].Value, true
	}
	return nil, false
}

// Range returns a copy of every entry whose key falls within the bounds;
// each bound is inclusive unless its exclusive flag is set, and an empty
// bound is unbounded on that side.
func (m *MemTable) Range(start, end string, startExclusive, endExclusive bool) []sstable.KV {
	var out []sstable.KV
	for _, kv := range m.entries {
		if inBounds(kv.Key, start, end, startExclusive, endExclusive) {
			out = append(out, kv)
		}
	}
	return out
}

func inBounds(key, start, end string, startExclusive, endExclusive bool) bool {
	if start != "" {
		if startExclusive && key <= start {
			return false
		}
		if !startExclusive && key < start {
			return false
		}
	}
	if end != "" {
		if endExclusive && key >= end {
			return false
		}
		if !endExclusive && key > end {
			return false
		}
	}
	return true
}

// Entries returns every pair in ascending key order, for flushing to an
// SSTable. The returned slice aliases internal storage and must be treated
// as read-only by the caller.
func (m *MemTable) Entries() []sstable.KV {
	return m.entries
}

// Size returns the tracked cumulative byte size (sum of key and value
// lengths across every entry currently held).
func (m *MemTable) Size() int {
	return m.size
}

// Len returns the number of entries.
func (m *MemTable) Len() int {
	return len(m.entries)
}

// Clear empties the memtable and resets its tracked size, as done after a
// successful flush.
func (m *MemTable) Clear() {
	m.entries = nil
	m.size = 0
}

func (m *MemTable) search(key string) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Key >= key
	})
}
