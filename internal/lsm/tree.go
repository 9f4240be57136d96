// Package lsm implements the on-disk tree of SSTables described in
// spec.md §5: level-0 ingestion of whole memtable flushes, manifest-backed
// bookkeeping, and size-triggered compaction up to MaxLevel. It knows
// nothing about the in-memory memtable itself (that is store.go's job);
// it only ever receives already-sorted batches of pairs to flush.
package lsm

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/intellect4all/lsmstore/internal/dirlock"
	"github.com/intellect4all/lsmstore/internal/kway"
	"github.com/intellect4all/lsmstore/internal/manifest"
	"github.com/intellect4all/lsmstore/internal/sstable"
	"github.com/intellect4all/lsmstore/storeerr"
)

// Config controls compaction thresholds and cache sizing, mirroring the
// teacher's Config/DefaultConfig pattern (lsm/lsm.go).
type Config struct {
	DataDir string

	// CompactEveryNSSTables triggers compaction of a level once it holds
	// at least this many SSTables.
	CompactEveryNSSTables int
	// MaxLevel is the highest level compaction will promote into; a level
	// at MaxLevel that reaches the threshold is merged into a single
	// SSTable that stays at MaxLevel.
	MaxLevel int

	ChunkDirCacheSize int
	ChunkCacheSize    int
}

// DefaultConfig returns spec.md's §5 defaults for dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:               dataDir,
		CompactEveryNSSTables: 25,
		MaxLevel:              3,
		ChunkDirCacheSize:     sstable.ChunkDirCacheSize,
		ChunkCacheSize:        sstable.ChunkCacheSize,
	}
}

// Tree is the on-disk SSTable store: a manifest plus the SSTable files it
// references. A Tree owns an exclusive lock on "<DataDir>/.lock" for its
// lifetime, matching the prototype's LSMTree.
type Tree struct {
	config Config

	mu             sync.Mutex
	dirLock        *dirlock.Lock
	manifestWriter *manifest.Writer
	reader         *sstable.CachedReader
	levelZeroCount int
}

// Open acquires the directory lock, opens (or initializes) the manifest,
// and derives the current level-0 SSTable count from it.
func Open(config Config) (*Tree, error) {
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", storeerr.ErrIoError, err)
	}

	lockPath := filepath.Join(config.DataDir, ".lock")
	dirLock, err := dirlock.Acquire(lockPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storeerr.ErrAlreadyOpen, err)
	}

	manifestPath := filepath.Join(config.DataDir, "manifest")
	mw, err := manifest.Open(manifestPath)
	if err != nil {
		dirLock.Release()
		return nil, err
	}

	reader := sstable.NewCachedReaderSized(
		sstable.NewFsReader(config.DataDir),
		nonZero(config.ChunkDirCacheSize, sstable.ChunkDirCacheSize),
		nonZero(config.ChunkCacheSize, sstable.ChunkCacheSize),
	)

	t := &Tree{
		config:         config,
		dirLock:        dirLock,
		manifestWriter: mw,
		reader:         reader,
	}

	m, err := t.readManifest()
	if err != nil {
		mw.Close()
		dirLock.Release()
		return nil, err
	}
	t.levelZeroCount = countAtLevel(m, 0)

	return t, nil
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func countAtLevel(m manifest.Manifest, level uint8) int {
	n := 0
	for _, s := range m.SSTables {
		if s.Level == level {
			n++
		}
	}
	return n
}

// Close releases the manifest writer's lock and this tree's directory lock.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	mErr := t.manifestWriter.Close()
	lErr := t.dirLock.Release()
	if mErr != nil {
		return mErr
	}
	return lErr
}

func (t *Tree) readManifest() (manifest.Manifest, error) {
	f, err := os.Open(filepath.Join(t.config.DataDir, "manifest"))
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("%w: open manifest: %v", storeerr.ErrIoError, err)
	}
	defer f.Close()
	return manifest.NewReader(f).Read()
}

// Get looks up key across every live SSTable, newest first. Candidate
// order is manifest.NewestFirst: level 0 before higher levels, and within
// a level the highest (most recently assigned) id first — the corrected
// recency order from spec.md §9, not the prototype's reversed one.
func (t *Tree) Get(key string) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.readManifest()
	if err != nil {
		return nil, false, err
	}

	candidates := manifest.NewestFirst(m.CandidatesForKey(key))
	for _, sst := range candidates {
		if filter, ok, err := sstable.LoadBloomFilter(t.config.DataDir, sst.ID); err == nil && ok {
			if !filter.TestString(key) {
				continue
			}
		}

		chunks, err := sstable.CandidateChunks(t.reader, sst.ID, key)
		if err != nil {
			return nil, false, err
		}
		for _, chunk := range chunks {
			kvs, err := t.reader.ReadChunk(sst.ID, chunk.Index)
			if err != nil {
				return nil, false, err
			}
			if value, ok := lookup(kvs, key); ok {
				return value, true, nil
			}
		}
	}
	return nil, false, nil
}

func lookup(kvs []sstable.KV, key string) ([]byte, bool) {
	lo, hi := 0, len(kvs)
	for lo < hi {
		mid := (lo + hi) / 2
		if kvs[mid].Key < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(kvs) && kvs[lo].Key == key {
		return kvs[lo].Value, true
	}
	return nil, false
}

// GetRange returns the live, newest-wins pairs whose key falls within the
// bounds (each inclusive unless its exclusive flag is set; empty means
// unbounded) across every SSTable that could overlap.
func (t *Tree) GetRange(start, end string, startExclusive, endExclusive bool) ([]sstable.KV, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.readManifest()
	if err != nil {
		return nil, err
	}

	candidates := manifest.NewestFirst(m.CandidatesForRange(start, end, startExclusive, endExclusive))
	var sources []kway.Source
	var iterators []*sstable.ChunkIterator
	defer func() {
		for _, it := range iterators {
			it.Close()
		}
	}()

	fsReader := sstable.NewFsReader(t.config.DataDir)
	for _, sst := range candidates {
		it, err := fsReader.ChunkIterator(sst.ID)
		if err != nil {
			return nil, err
		}
		iterators = append(iterators, it)
		sources = append(sources, filterSource(it, start, end, startExclusive, endExclusive))
	}

	return kway.Merge(sources), nil
}

// chunkIteratorSource flattens a ChunkIterator into a kway.Source and drops
// pairs outside the requested range (a chunk can partially overlap it).
type chunkIteratorSource struct {
	it             *sstable.ChunkIterator
	buf            []sstable.KV
	pos            int
	start, end     string
	startExclusive bool
	endExclusive   bool
}

func filterSource(it *sstable.ChunkIterator, start, end string, startExclusive, endExclusive bool) kway.Source {
	return &chunkIteratorSource{it: it, start: start, end: end, startExclusive: startExclusive, endExclusive: endExclusive}
}

func (s *chunkIteratorSource) Next() (sstable.KV, bool) {
	for {
		if s.pos >= len(s.buf) {
			next, ok, err := s.it.Next()
			if err != nil || !ok {
				return sstable.KV{}, false
			}
			s.buf = next
			s.pos = 0
			continue
		}
		kv := s.buf[s.pos]
		s.pos++
		if inBounds(kv.Key, s.start, s.end, s.startExclusive, s.endExclusive) {
			return kv, true
		}
	}
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

// WriteSSTable flushes an already-sorted batch of pairs as a new level-0
// SSTable: it compacts first (matching the prototype's write_sstable,
// which always compacts before adding the new table), then allocates an
// id via a manifest transaction, writes the file, and commits.
func (t *Tree) WriteSSTable(pairs []sstable.KV) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(pairs) == 0 {
		return nil
	}

	if err := t.compactLocked(); err != nil {
		return err
	}

	minKey, maxKey := pairs[0].Key, pairs[len(pairs)-1].Key

	txn := t.manifestWriter.Transaction()
	id, err := txn.AddSSTable(0, minKey, maxKey)
	if err != nil {
		return err
	}

	if _, _, err := sstable.WriteFile(t.config.DataDir, id, sstable.NewSliceSource(pairs)); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	t.levelZeroCount++
	return nil
}

// Compact runs the standard compaction pass (public entry point; WriteSSTable
// already calls this internally before every flush).
func (t *Tree) Compact() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compactLocked()
}

func (t *Tree) compactLocked() error {
	threshold := nonZero(t.config.CompactEveryNSSTables, 25)
	maxLevel := nonZero(t.config.MaxLevel, 3)

	if t.levelZeroCount < threshold {
		return nil
	}

	for level := uint8(0); ; level++ {
		compacted, err := t.compactLevel(level, threshold, maxLevel)
		if err != nil {
			return err
		}
		if level == 0 && compacted {
			t.levelZeroCount = 0
		}
		if !compacted || int(level) == maxLevel {
			return nil
		}
	}
}

// compactLevel re-reads the manifest, and if level holds at least
// threshold SSTables, merges all of them into one new SSTable one level
// up (capped at maxLevel), atomically swapping the manifest entries and
// best-effort deleting the old files.
func (t *Tree) compactLevel(level uint8, threshold, maxLevel int) (bool, error) {
	m, err := t.readManifest()
	if err != nil {
		return false, err
	}

	var toMerge []manifest.SSTable
	for _, s := range m.SSTables {
		if s.Level == level {
			toMerge = append(toMerge, s)
		}
	}
	if len(toMerge) < threshold {
		return false, nil
	}

	targetLevel := level + 1
	if int(targetLevel) > maxLevel {
		targetLevel = uint8(maxLevel)
	}

	return true, t.mergeSSTables(toMerge, targetLevel)
}

func (t *Tree) mergeSSTables(toMerge []manifest.SSTable, targetLevel uint8) error {
	fsReader := sstable.NewFsReader(t.config.DataDir)

	var sources []kway.Source
	var iterators []*sstable.ChunkIterator
	defer func() {
		for _, it := range iterators {
			it.Close()
		}
	}()

	minKey, maxKey := toMerge[0].MinKey, toMerge[0].MaxKey
	ids := make([]uint64, 0, len(toMerge))
	// Newest first, so kway.Merge keeps the most recent value of a key.
	for _, s := range manifest.NewestFirst(toMerge) {
		ids = append(ids, s.ID)
		if s.MinKey < minKey {
			minKey = s.MinKey
		}
		if s.MaxKey > maxKey {
			maxKey = s.MaxKey
		}

		it, err := fsReader.ChunkIterator(s.ID)
		if err != nil {
			return err
		}
		iterators = append(iterators, it)
		sources = append(sources, chunkIteratorAsSource(it))
	}

	merged := kway.Merge(sources)

	txn := t.manifestWriter.Transaction()
	txn.RemoveSSTables(ids)
	newID, err := txn.AddSSTable(targetLevel, minKey, maxKey)
	if err != nil {
		return err
	}

	if _, _, err := sstable.WriteFile(t.config.DataDir, newID, sstable.NewSliceSource(merged)); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := sstable.RemoveFiles(t.config.DataDir, id); err != nil {
			log.Printf("lsm: failed to remove old sstable %d after compaction: %v", id, err)
		}
	}
	return nil
}

type plainChunkSource struct {
	it  *sstable.ChunkIterator
	buf []sstable.KV
	pos int
}

func chunkIteratorAsSource(it *sstable.ChunkIterator) kway.Source {
	return &plainChunkSource{it: it}
}

func (s *plainChunkSource) Next() (sstable.KV, bool) {
	for s.pos >= len(s.buf) {
		next, ok, err := s.it.Next()
		if err != nil || !ok {
			return sstable.KV{}, false
		}
		s.buf = next
		s.pos = 0
	}
	kv := s.buf[s.pos]
	s.pos++
	return kv, true
}
