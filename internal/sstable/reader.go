package sstable

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/intellect4all/lsmstore/internal/binfmt"
	"github.com/intellect4all/lsmstore/storeerr"
)

// Reader resolves an SSTable id to its chunk directory and chunk payloads.
// Implementations may reopen the underlying file per call (FsReader) or
// layer an LRU cache over one that does (CachedReader).
type Reader interface {
	ListChunks(id uint64) ([]ChunkDesc, error)
	ReadChunk(id uint64, chunkIndex int) ([]KV, error)
}

// CandidateChunks returns the chunks of id whose [min_key, max_key] range
// could contain key, in directory order.
func CandidateChunks(r Reader, id uint64, key string) ([]ChunkDesc, error) {
	chunks, err := r.ListChunks(id)
	if err != nil {
		return nil, err
	}
	var out []ChunkDesc
	for _, c := range chunks {
		if c.Overlaps(key) {
			out = append(out, c)
		}
	}
	return out, nil
}

// FsReader reads SSTable files directly off disk, reopening the file for
// every call. This is the "per-operation file opens" design the prototype
// documents as simple-but-costly; callers wanting reuse should layer
// CachedReader over it.
type FsReader struct {
	dir string
}

// NewFsReader returns a reader rooted at dir.
func NewFsReader(dir string) *FsReader {
	return &FsReader{dir: dir}
}

func (r *FsReader) path(id uint64) string {
	return filepath.Join(r.dir, FileName(id))
}

// ListChunks implements Reader.
func (r *FsReader) ListChunks(id uint64) ([]ChunkDesc, error) {
	f, err := os.Open(r.path(id))
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", r.path(id), err)
	}
	defer f.Close()
	return newRawReader(f).listChunks()
}

// ReadChunk implements Reader.
func (r *FsReader) ReadChunk(id uint64, chunkIndex int) ([]KV, error) {
	f, err := os.Open(r.path(id))
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", r.path(id), err)
	}
	defer f.Close()
	return newRawReader(f).readChunkAtIndex(chunkIndex)
}

// ChunkIterator streams every chunk of id in directory order, one chunk's
// pairs at a time, for use as a compaction merge source.
func (r *FsReader) ChunkIterator(id uint64) (*ChunkIterator, error) {
	f, err := os.Open(r.path(id))
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", r.path(id), err)
	}
	rr := newRawReader(f)
	descs, err := rr.listChunks()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ChunkIterator{file: f, reader: rr, descs: descs}, nil
}

// ChunkIterator yields one chunk's pairs at a time; Close releases the
// underlying file descriptor.
type ChunkIterator struct {
	file   *os.File
	reader *rawReader
	descs  []ChunkDesc
	idx    int
}

// Next returns the next chunk's pairs, or ok=false once exhausted.
func (it *ChunkIterator) Next() ([]KV, bool, error) {
	if it.idx >= len(it.descs) {
		return nil, false, nil
	}
	desc := it.descs[it.idx]
	it.idx++
	kvs, err := it.reader.readChunkAt(desc.Pos)
	if err != nil {
		return nil, false, err
	}
	return kvs, true, nil
}

// Close releases the iterator's file descriptor.
func (it *ChunkIterator) Close() error {
	return it.file.Close()
}

type footer struct {
	chunkDirPos uint64
	chunkCount  uint32
}

type rawReader struct {
	f io.ReadSeeker
}

func newRawReader(f io.ReadSeeker) *rawReader {
	return &rawReader{f: f}
}

func (r *rawReader) validateHeader() error {
	magic, err := binfmt.ReadUint32(r.f)
	if err != nil {
		return fmt.Errorf("sstable: read magic: %w", err)
	}
	if magic != Magic {
		return fmt.Errorf("%w: sstable: bad magic %#x, want %#x", storeerr.ErrCorruption, magic, Magic)
	}
	version, err := binfmt.ReadUint8(r.f)
	if err != nil {
		return fmt.Errorf("sstable: read version: %w", err)
	}
	if version != Version {
		return fmt.Errorf("%w: sstable: unsupported version %d", storeerr.ErrCorruption, version)
	}
	if _, err := binfmt.ReadUint32(r.f); err != nil { // page size, unused on read
		return fmt.Errorf("sstable: read page size: %w", err)
	}
	return nil
}

func (r *rawReader) readFooter() (footer, error) {
	if _, err := r.f.Seek(-int64(footerSize), io.SeekEnd); err != nil {
		return footer{}, fmt.Errorf("sstable: seek footer: %w", err)
	}
	chunkDirPos, err := binfmt.ReadUint64(r.f)
	if err != nil {
		return footer{}, fmt.Errorf("sstable: read chunk_dir_pos: %w", err)
	}
	chunkCount, err := binfmt.ReadUint32(r.f)
	if err != nil {
		return footer{}, fmt.Errorf("sstable: read chunk_count: %w", err)
	}
	return footer{chunkDirPos: chunkDirPos, chunkCount: chunkCount}, nil
}

func (r *rawReader) readChunkDirectory(pos uint64, count uint32) ([]ChunkDesc, error) {
	if _, err := r.f.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: seek chunk directory: %w", err)
	}

	descs := make([]ChunkDesc, 0, count)
	for i := uint32(0); i < count; i++ {
		p, err := binfmt.ReadUint64(r.f)
		if err != nil {
			return nil, fmt.Errorf("sstable: read chunk pos: %w", err)
		}
		minKey, err := binfmt.ReadString(r.f)
		if err != nil {
			return nil, fmt.Errorf("sstable: read chunk min_key: %w", err)
		}
		maxKey, err := binfmt.ReadString(r.f)
		if err != nil {
			return nil, fmt.Errorf("sstable: read chunk max_key: %w", err)
		}
		descs = append(descs, ChunkDesc{Index: int(i), Pos: p, MinKey: minKey, MaxKey: maxKey})
	}
	return descs, nil
}

func (r *rawReader) listChunks() ([]ChunkDesc, error) {
	if err := r.validateHeader(); err != nil {
		return nil, err
	}
	ft, err := r.readFooter()
	if err != nil {
		return nil, err
	}
	return r.readChunkDirectory(ft.chunkDirPos, ft.chunkCount)
}

func (r *rawReader) readChunkAtIndex(chunkIndex int) ([]KV, error) {
	if err := r.validateHeader(); err != nil {
		return nil, err
	}
	ft, err := r.readFooter()
	if err != nil {
		return nil, err
	}
	descs, err := r.readChunkDirectory(ft.chunkDirPos, ft.chunkCount)
	if err != nil {
		return nil, err
	}
	if chunkIndex < 0 || chunkIndex >= len(descs) {
		return nil, fmt.Errorf("sstable: chunk index %d out of range (have %d)", chunkIndex, len(descs))
	}
	return r.readChunkAt(descs[chunkIndex].Pos)
}

func (r *rawReader) readChunkAt(pos uint64) ([]KV, error) {
	if _, err := r.f.Seek(int64(pos), io.SeekStart); err != nil {
		return nil, fmt.Errorf("sstable: seek chunk: %w", err)
	}

	itemCount, err := binfmt.ReadUint32(r.f)
	if err != nil {
		return nil, fmt.Errorf("sstable: read item_count: %w", err)
	}
	if _, err := binfmt.ReadUint64(r.f); err != nil { // compressed_size, unused
		return nil, fmt.Errorf("sstable: read compressed_size: %w", err)
	}
	if _, err := binfmt.ReadUint64(r.f); err != nil { // uncompressed_size, unused
		return nil, fmt.Errorf("sstable: read uncompressed_size: %w", err)
	}

	kvs := make([]KV, 0, itemCount)
	for i := uint32(0); i < itemCount; i++ {
		key, err := binfmt.ReadString(r.f)
		if err != nil {
			return nil, fmt.Errorf("sstable: read key: %w", err)
		}
		value, err := binfmt.ReadBytesWithLen(r.f)
		if err != nil {
			return nil, fmt.Errorf("sstable: read value: %w", err)
		}
		kvs = append(kvs, KV{Key: key, Value: value})
	}
	return kvs, nil
}
