package sstable

import (
	"fmt"

	"github.com/intellect4all/lsmstore/internal/lru"
)

const (
	// ChunkDirCacheSize bounds the number of SSTables whose chunk
	// directories are memoized at once.
	ChunkDirCacheSize = 512
	// ChunkCacheSize bounds the number of individual chunk payloads
	// memoized at once.
	ChunkCacheSize = 1024
)

type chunkKey struct {
	id    uint64
	index int
}

// CachedReader layers two LRU caches (§4.4: chunk directories and chunk
// payloads) over a Reader, typically an *FsReader.
type CachedReader struct {
	source    Reader
	dirCache  *lru.Cache[uint64, []ChunkDesc]
	dataCache *lru.Cache[chunkKey, []KV]
}

// NewCachedReader wraps source with the standard cache sizes.
func NewCachedReader(source Reader) *CachedReader {
	return NewCachedReaderSized(source, ChunkDirCacheSize, ChunkCacheSize)
}

// NewCachedReaderSized wraps source with explicit cache capacities.
func NewCachedReaderSized(source Reader, dirCacheSize, dataCacheSize int) *CachedReader {
	return &CachedReader{
		source:    source,
		dirCache:  lru.New[uint64, []ChunkDesc](dirCacheSize),
		dataCache: lru.New[chunkKey, []KV](dataCacheSize),
	}
}

// ListChunks implements Reader, serving from the directory cache when possible.
func (c *CachedReader) ListChunks(id uint64) ([]ChunkDesc, error) {
	if descs, ok := c.dirCache.Get(id); ok {
		return descs, nil
	}
	descs, err := c.source.ListChunks(id)
	if err != nil {
		return nil, err
	}
	c.dirCache.Put(id, descs)
	return descs, nil
}

// ReadChunk implements Reader, serving from the payload cache when possible.
func (c *CachedReader) ReadChunk(id uint64, chunkIndex int) ([]KV, error) {
	key := chunkKey{id: id, index: chunkIndex}
	if kvs, ok := c.dataCache.Get(key); ok {
		return kvs, nil
	}
	kvs, err := c.source.ReadChunk(id, chunkIndex)
	if err != nil {
		return nil, err
	}
	c.dataCache.Put(key, kvs)
	// Re-fetch through the cache's own get-after-put, per §4.4, so the
	// value handed back always flows through the same promotion path.
	cached, ok := c.dataCache.Get(key)
	if !ok {
		return nil, fmt.Errorf("sstable: cache put/get inconsistency for sstable %d chunk %d", id, chunkIndex)
	}
	return cached, nil
}
