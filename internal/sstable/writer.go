package sstable

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/intellect4all/lsmstore/internal/binfmt"
)

// Source yields (key, value) pairs in strictly ascending key order. The
// writer assumes this; duplicate or out-of-order keys are a caller bug.
type Source interface {
	Next() (KV, bool)
}

// SliceSource adapts an already-sorted slice of KV into a Source.
type SliceSource struct {
	pairs []KV
	pos   int
}

// NewSliceSource wraps pairs, which must already be sorted ascending by key.
func NewSliceSource(pairs []KV) *SliceSource {
	return &SliceSource{pairs: pairs}
}

// Next implements Source.
func (s *SliceSource) Next() (KV, bool) {
	if s.pos >= len(s.pairs) {
		return KV{}, false
	}
	kv := s.pairs[s.pos]
	s.pos++
	return kv, true
}

type peekable struct {
	src   Source
	buf   *KV
	drawn bool
}

func newPeekable(src Source) *peekable {
	return &peekable{src: src}
}

func (p *peekable) peek() (KV, bool) {
	if !p.drawn {
		if kv, ok := p.src.Next(); ok {
			p.buf = &kv
		} else {
			p.buf = nil
		}
		p.drawn = true
	}
	if p.buf == nil {
		return KV{}, false
	}
	return *p.buf, true
}

func (p *peekable) advance() {
	p.drawn = false
	p.buf = nil
}

// Writer packs a Source into the SSTable binary format defined in format.go.
type Writer struct {
	w io.WriteSeeker
}

// NewWriter wraps w, which must support Seek (chunk headers are backfilled).
func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{w: w}
}

// Write emits the full file: header, chunks, chunk directory, footer. It
// returns the written chunk directory, and the file's overall min/max key
// (the first chunk's min and the last chunk's max).
func (w *Writer) Write(source Source) ([]ChunkDesc, string, string, error) {
	if err := w.writeHeader(); err != nil {
		return nil, "", "", err
	}

	descs, err := w.writeChunks(source)
	if err != nil {
		return nil, "", "", err
	}

	chunkDirPos, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, "", "", err
	}

	if err := w.writeChunkDirectory(descs); err != nil {
		return nil, "", "", err
	}

	if err := w.writeFooter(uint64(chunkDirPos), uint32(len(descs))); err != nil {
		return nil, "", "", err
	}

	var minKey, maxKey string
	if len(descs) > 0 {
		minKey = descs[0].MinKey
		maxKey = descs[len(descs)-1].MaxKey
	}

	return descs, minKey, maxKey, nil
}

func (w *Writer) writeHeader() error {
	if err := binfmt.WriteUint32(w.w, Magic); err != nil {
		return err
	}
	if err := binfmt.WriteUint8(w.w, Version); err != nil {
		return err
	}
	return binfmt.WriteUint32(w.w, DefaultPageSize)
}

func (w *Writer) writeFooter(chunkDirPos uint64, chunkCount uint32) error {
	if err := binfmt.WriteUint64(w.w, chunkDirPos); err != nil {
		return err
	}
	return binfmt.WriteUint32(w.w, chunkCount)
}

func (w *Writer) writeChunkDirectory(descs []ChunkDesc) error {
	for _, d := range descs {
		if err := binfmt.WriteUint64(w.w, d.Pos); err != nil {
			return err
		}
		if err := binfmt.WriteString(w.w, d.MinKey); err != nil {
			return err
		}
		if err := binfmt.WriteString(w.w, d.MaxKey); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeChunks(source Source) ([]ChunkDesc, error) {
	p := newPeekable(source)
	var descs []ChunkDesc

	index := 0
	for {
		if _, ok := p.peek(); !ok {
			break
		}
		desc, err := w.writeChunk(index, p)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
		index++
	}
	return descs, nil
}

func (w *Writer) writeChunk(index int, p *peekable) (ChunkDesc, error) {
	pos, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return ChunkDesc{}, err
	}

	first, _ := p.peek()
	minKey := first.Key
	maxKey := first.Key

	// Reserve space for the chunk header; backfilled once item_count is known.
	if err := binfmt.WriteUint32(w.w, 0); err != nil {
		return ChunkDesc{}, err
	}
	if err := binfmt.WriteUint64(w.w, 0); err != nil {
		return ChunkDesc{}, err
	}
	if err := binfmt.WriteUint64(w.w, 0); err != nil {
		return ChunkDesc{}, err
	}

	written := chunkHeaderSize
	var itemCount uint32

	for {
		kv, ok := p.peek()
		if !ok {
			break
		}

		entrySize := len(kv.Key) + len(kv.Value) + 16
		if written+entrySize > DefaultPageSize {
			break
		}

		if err := binfmt.WriteString(w.w, kv.Key); err != nil {
			return ChunkDesc{}, err
		}
		if err := binfmt.WriteBytesWithLen(w.w, kv.Value); err != nil {
			return ChunkDesc{}, err
		}

		if kv.Key > maxKey {
			maxKey = kv.Key
		}

		written += entrySize
		itemCount++
		p.advance()
	}

	endPos, err := w.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return ChunkDesc{}, err
	}
	if _, err := w.w.Seek(pos, io.SeekStart); err != nil {
		return ChunkDesc{}, err
	}
	if err := binfmt.WriteUint32(w.w, itemCount); err != nil {
		return ChunkDesc{}, err
	}
	if err := binfmt.WriteUint64(w.w, uint64(written)); err != nil {
		return ChunkDesc{}, err
	}
	if err := binfmt.WriteUint64(w.w, uint64(written)); err != nil {
		return ChunkDesc{}, err
	}
	if _, err := w.w.Seek(endPos, io.SeekStart); err != nil {
		return ChunkDesc{}, err
	}

	return ChunkDesc{Index: index, Pos: uint64(pos), MinKey: minKey, MaxKey: maxKey}, nil
}

// BloomFalsePositiveRate bounds the per-SSTable bloom filter's false
// positive rate; the filter is sized from the number of keys actually
// written, not an a-priori estimate.
const BloomFalsePositiveRate = 0.01

// WriteFile writes a new SSTable file for id under dir, fed by source, and
// a sidecar bloom filter of every key written. It returns the file's
// min/max key. The file is flushed and fsynced before returning, matching
// the writer contract in the on-disk format.
func WriteFile(dir string, id uint64, source Source) (minKey, maxKey string, err error) {
	path := filepath.Join(dir, FileName(id))
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("sstable: create %s: %w", path, err)
	}
	defer f.Close()

	var keys []string
	tee := &countingSource{inner: source, onEach: func(kv KV) { keys = append(keys, kv.Key) }}

	w := NewWriter(f)
	_, minKey, maxKey, err = w.Write(tee)
	if err != nil {
		return "", "", fmt.Errorf("sstable: write %s: %w", path, err)
	}

	if err := f.Sync(); err != nil {
		return "", "", fmt.Errorf("sstable: fsync %s: %w", path, err)
	}

	if err := writeBloomSidecar(dir, id, keys); err != nil {
		return "", "", err
	}

	return minKey, maxKey, nil
}

type countingSource struct {
	inner  Source
	onEach func(KV)
}

func (c *countingSource) Next() (KV, bool) {
	kv, ok := c.inner.Next()
	if ok {
		c.onEach(kv)
	}
	return kv, ok
}

func writeBloomSidecar(dir string, id uint64, keys []string) error {
	n := uint(len(keys))
	if n == 0 {
		n = 1
	}
	filter := bloom.NewWithEstimates(n, BloomFalsePositiveRate)
	for _, k := range keys {
		filter.AddString(k)
	}

	path := filepath.Join(dir, BloomSidecarName(id))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sstable: create bloom sidecar %s: %w", path, err)
	}
	defer f.Close()

	if _, err := filter.WriteTo(f); err != nil {
		return fmt.Errorf("sstable: write bloom sidecar %s: %w", path, err)
	}
	return f.Sync()
}
