package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/intellect4all/lsmstore/internal/binfmt"
	"github.com/intellect4all/lsmstore/internal/crc32c"
	"github.com/intellect4all/lsmstore/internal/dirlock"
	"github.com/intellect4all/lsmstore/storeerr"
)

// Writer owns the manifest file and its sibling lock file. All mutation
// goes through a Transaction; Writer itself only opens, initializes, and
// compacts on open.
type Writer struct {
	file     *os.File
	lock     *dirlock.Lock
	lockPath string
}

// Open opens (creating if needed) the manifest file at path, acquiring an
// exclusive lock on "<path>.lock". An empty file is initialized; a
// non-empty one is compacted (its post-header region rewritten with only
// the currently-live SSTables) per spec.md §4.5.
func Open(path string) (*Writer, error) {
	lockPath := path + ".lock"
	lock, err := dirlock.Acquire(lockPath)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest lock: %v", storeerr.ErrAlreadyOpen, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("%w: open manifest %s: %v", storeerr.ErrIoError, path, err)
	}

	pos, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		lock.Release()
		return nil, fmt.Errorf("%w: seek manifest: %v", storeerr.ErrIoError, err)
	}

	w := &Writer{file: file, lock: lock, lockPath: lockPath}

	if pos == 0 {
		if err := w.init(); err != nil {
			file.Close()
			lock.Release()
			return nil, err
		}
	} else {
		if err := w.compact(); err != nil {
			file.Close()
			lock.Release()
			return nil, err
		}
	}

	return w, nil
}

func (w *Writer) init() error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	if err := binfmt.WriteUint32(w.file, Magic); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	if err := binfmt.WriteUint8(w.file, Version); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	if err := binfmt.WriteUint64(w.file, 0); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	return w.file.Sync()
}

func (w *Writer) compact() error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	m, err := NewReader(w.file).ReadLenient()
	if err != nil {
		return err
	}

	txn := w.Transaction()
	txn.Clear()
	for _, s := range m.SSTables {
		txn.writeSSTableWithID(s.Level, s.MinKey, s.MaxKey, s.ID)
	}
	return txn.Commit()
}

// Transaction starts a new buffered transaction on this writer.
func (w *Writer) Transaction() *Transaction {
	return &Transaction{w: w}
}

// Close releases the manifest's lock file. The manifest file itself is
// left on disk (it is not truncated or removed).
func (w *Writer) Close() error {
	fileErr := w.file.Close()
	lockErr := w.lock.Release()
	if fileErr != nil {
		return fmt.Errorf("%w: close manifest: %v", storeerr.ErrIoError, fileErr)
	}
	return lockErr
}

// Transaction batches manifest record writes so they become visible on
// disk atomically, via a single append + fsync in Commit.
type Transaction struct {
	w         *Writer
	writeBuf  bytes.Buffer
	clear     bool
	nextSSTID *uint64
}

// AddSSTable allocates the next SSTable id and buffers an AddSSTable
// record for it, returning the id immediately so the caller can name the
// SSTable file before the transaction commits.
func (t *Transaction) AddSSTable(level uint8, minKey, maxKey string) (uint64, error) {
	id, err := t.allocateSSTableID()
	if err != nil {
		return 0, err
	}
	t.writeSSTableWithID(level, minKey, maxKey, id)
	return id, nil
}

func (t *Transaction) writeSSTableWithID(level uint8, minKey, maxKey string, id uint64) {
	var buf bytes.Buffer
	buf.WriteByte(typeAddSSTable)
	buf.WriteByte(level)
	_ = binfmt.WriteString(&buf, minKey)
	_ = binfmt.WriteString(&buf, maxKey)
	_ = binfmt.WriteUint64(&buf, id)

	t.appendRecord(buf.Bytes())
}

// RemoveSSTable buffers a RemoveSSTable record for id.
func (t *Transaction) RemoveSSTable(id uint64) {
	var buf bytes.Buffer
	buf.WriteByte(typeRemoveSSTable)
	_ = binfmt.WriteUint64(&buf, id)

	t.appendRecord(buf.Bytes())
}

// RemoveSSTables buffers a RemoveSSTable record for each id.
func (t *Transaction) RemoveSSTables(ids []uint64) {
	for _, id := range ids {
		t.RemoveSSTable(id)
	}
}

func (t *Transaction) appendRecord(payload []byte) {
	crc := crc32c.Checksum(payload)
	_ = binfmt.WriteUint32(&t.writeBuf, crc)
	_ = binfmt.WriteUint32(&t.writeBuf, uint32(len(payload)))
	t.writeBuf.Write(payload)
}

func (t *Transaction) allocateSSTableID() (uint64, error) {
	if t.nextSSTID != nil {
		id := *t.nextSSTID
		next := id + 1
		t.nextSSTID = &next
		return id, nil
	}

	if _, err := t.w.file.Seek(5, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	id, err := binfmt.ReadUint64(t.w.file)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	if _, err := t.w.file.Seek(0, io.SeekEnd); err != nil {
		return 0, fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}

	next := id + 1
	t.nextSSTID = &next
	return id, nil
}

// Clear marks the transaction to truncate the records region (but not the
// header) to empty on commit; used by compaction-on-open. It does not
// discard records already buffered in this same transaction.
func (t *Transaction) Clear() {
	t.clear = true
}

// Commit makes the transaction's buffered writes visible: bumping the
// header's next_sstable_id if allocateSSTableID ran, truncating the
// records region if Clear was called, appending the buffered records, and
// fsyncing. A transaction that is never committed leaves the file
// byte-identical to before it was created.
func (t *Transaction) Commit() error {
	if t.nextSSTID != nil {
		if _, err := t.w.file.Seek(5, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
		}
		if err := binfmt.WriteUint64(t.w.file, *t.nextSSTID); err != nil {
			return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
		}
		if _, err := t.w.file.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
		}
	}

	if t.clear {
		if err := t.w.file.Truncate(headerSize); err != nil {
			return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
		}
		if _, err := t.w.file.Seek(headerSize, io.SeekStart); err != nil {
			return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
		}
	}

	if _, err := t.w.file.Write(t.writeBuf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}

	if err := syncData(t.w.file); err != nil {
		return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
	}
	return nil
}
