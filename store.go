// Package lsmstore is an embedded, single-process, persistent ordered
// key→value store backed by an LSM tree, grounded on the teacher's
// lsm.LSM façade (lsm/lsm.go) but restructured around spec.md's simpler
// contract: no WAL, no background workers, and synchronous compaction on
// the write path.
package lsmstore

import (
	"fmt"
	"log"

	"github.com/intellect4all/lsmstore/config"
	"github.com/intellect4all/lsmstore/internal/kway"
	"github.com/intellect4all/lsmstore/internal/lsm"
	"github.com/intellect4all/lsmstore/internal/memtable"
	"github.com/intellect4all/lsmstore/internal/sstable"
	"github.com/intellect4all/lsmstore/storeerr"
)

// Options and Option are re-exported from config so callers need only
// import this package for the common case.
type Options = config.Options
type Option = config.Option

// DefaultOptions returns spec.md's default tunables.
func DefaultOptions() Options {
	return config.Default()
}

// Entry is one pair in an InsertBatch call. Batches are applied in slice
// order and are not atomic: a failure partway through leaves earlier
// entries visible (spec.md §4.7).
type Entry struct {
	Key   string
	Value []byte
}

// KeyRange bounds a GetRange scan. An empty Start or End is unbounded on
// that side; the *Exclusive flags flip the corresponding bound from its
// default (inclusive) to exclusive.
type KeyRange struct {
	Start, End     string
	StartExclusive bool
	EndExclusive   bool
}

// Store is a single embedded key-value store handle, opened against one
// directory for its lifetime. Not safe for concurrent use from multiple
// goroutines (spec.md §5: single-threaded cooperative model).
type Store struct {
	opts Options

	memtable *memtable.MemTable
	tree     *lsm.Tree
}

// Open opens (creating if needed) a store rooted at dir. A second Open of
// the same directory, from this or any other process, fails with
// storeerr.ErrAlreadyOpen.
func Open(dir string, overrides ...Option) (*Store, error) {
	opts := config.Apply(config.Default(), overrides...)

	treeConfig := lsm.DefaultConfig(dir)
	treeConfig.CompactEveryNSSTables = opts.CompactEveryNSSTables
	treeConfig.MaxLevel = opts.MaxLevel
	treeConfig.ChunkDirCacheSize = opts.ChunkDirCacheSize
	treeConfig.ChunkCacheSize = opts.ChunkCacheSize

	tree, err := lsm.Open(treeConfig)
	if err != nil {
		return nil, err
	}

	return &Store{
		opts:     opts,
		memtable: memtable.New(),
		tree:     tree,
	}, nil
}

// Insert adds or overwrites key with value. If this insert would push the
// memtable's tracked size over MaxMemtableSize, the memtable is flushed to
// a new level-0 SSTable first (with its pre-insert contents), then key and
// value are written into the now-empty memtable (spec.md §4.7).
func (s *Store) Insert(key string, value []byte) error {
	if len(key) == 0 || len(key) > s.opts.MaxKeySize {
		return fmt.Errorf("%w: key length %d, want 1..=%d", storeerr.ErrBadInput, len(key), s.opts.MaxKeySize)
	}
	if len(value) == 0 || len(value) > s.opts.MaxValueSize {
		return fmt.Errorf("%w: value length %d, want 1..=%d", storeerr.ErrBadInput, len(value), s.opts.MaxValueSize)
	}

	if s.memtable.Size()+len(key)+len(value) > s.opts.MaxMemtableSize {
		if err := s.flush(); err != nil {
			return err
		}
	}

	s.memtable.Put(key, value)
	return nil
}

// InsertBatch calls Insert for each entry in order. A batch is not a
// single manifest transaction; a failure partway through is only reported
// to the caller, not rolled back.
func (s *Store) InsertBatch(entries []Entry) error {
	for _, e := range entries {
		if err := s.Insert(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns key's value, checking the memtable before the on-disk tree.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if value, ok := s.memtable.Get(key); ok {
		return value, true, nil
	}
	return s.tree.Get(key)
}

// GetRange returns every (key, value) pair within r, ascending by key,
// merging the memtable's range with the on-disk tree's. On a duplicate
// key the memtable's value wins, since it is always the most recent
// (spec.md §4.7's pinned "memtable first" rule).
func (s *Store) GetRange(r KeyRange) ([]sstable.KV, error) {
	memResults := s.memtable.Range(r.Start, r.End, r.StartExclusive, r.EndExclusive)
	treeResults, err := s.tree.GetRange(r.Start, r.End, r.StartExclusive, r.EndExclusive)
	if err != nil {
		return nil, err
	}

	return kway.Merge([]kway.Source{
		sstable.NewSliceSource(memResults),
		sstable.NewSliceSource(treeResults),
	}), nil
}

// Close attempts a final flush if the memtable is non-empty (logging, not
// returning, any failure — there is no caller left to hand it to once the
// handle is being torn down), then releases the tree's locks.
func (s *Store) Close() error {
	if s.memtable.Len() > 0 {
		if err := s.flush(); err != nil {
			log.Printf("lsmstore: final flush on close failed: %v", err)
		}
	}
	return s.tree.Close()
}

func (s *Store) flush() error {
	entries := s.memtable.Entries()
	if len(entries) == 0 {
		return nil
	}
	batch := make([]sstable.KV, len(entries))
	copy(batch, entries)

	if err := s.tree.WriteSSTable(batch); err != nil {
		return err
	}
	s.memtable.Clear()
	return nil
}
