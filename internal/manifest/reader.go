package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/intellect4all/lsmstore/internal/binfmt"
	"github.com/intellect4all/lsmstore/internal/crc32c"
	"github.com/intellect4all/lsmstore/storeerr"
)

// Reader parses a manifest log from an io.Reader positioned at its start.
// Like the prototype, a Reader is use-once: Read/ReadLenient consume it.
type Reader struct {
	r io.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read reads the manifest in strict mode: the first invalid (CRC-mismatch
// or unrecognized) record stops the scan. Used on the query path. The
// invalid record is not reported as an error; it and every record after
// it are left out of the result.
func (rd *Reader) Read() (Manifest, error) {
	if err := rd.readHeader(); err != nil {
		return Manifest{}, err
	}
	sstables, err := rd.readSSTables(true)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{SSTables: sstables}, nil
}

// ReadLenient reads the manifest skipping invalid records and continuing
// to end-of-file. Used on the compact-on-open recovery path.
func (rd *Reader) ReadLenient() (Manifest, error) {
	if err := rd.readHeader(); err != nil {
		return Manifest{}, err
	}
	sstables, err := rd.readSSTables(false)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{SSTables: sstables}, nil
}

func (rd *Reader) readHeader() error {
	magic, err := binfmt.ReadUint32(rd.r)
	if err != nil {
		return fmt.Errorf("manifest: read magic: %w", err)
	}
	version, err := binfmt.ReadUint8(rd.r)
	if err != nil {
		return fmt.Errorf("manifest: read version: %w", err)
	}
	if _, err := binfmt.ReadUint64(rd.r); err != nil { // next_sstable_id, not needed by the reader
		return fmt.Errorf("manifest: read next_sstable_id: %w", err)
	}
	if magic != Magic {
		return fmt.Errorf("%w: bad manifest magic %#x", storeerr.ErrCorruption, magic)
	}
	if version != Version {
		return fmt.Errorf("%w: unsupported manifest version %d", storeerr.ErrCorruption, version)
	}
	return nil
}

// errEndOfRecords signals that end-of-file was reached at a record
// boundary (or mid-record), which spec.md §4.5 treats as orderly
// termination rather than an error.
var errEndOfRecords = errors.New("manifest: end of records")

func (rd *Reader) readSSTables(stopAtInvalid bool) ([]SSTable, error) {
	type slot struct {
		sstable SSTable
		live    bool
	}
	var slots []slot

	for {
		add, remove, invalid, err := rd.readEntry()
		if err != nil {
			if errors.Is(err, errEndOfRecords) {
				break
			}
			return nil, err
		}

		switch {
		case invalid:
			if !stopAtInvalid {
				continue
			}
		case add != nil:
			slots = append(slots, slot{sstable: *add, live: true})
		case remove != nil:
			for i := range slots {
				if slots[i].live && slots[i].sstable.ID == *remove {
					slots[i].live = false
					break
				}
			}
		}

		if invalid && stopAtInvalid {
			break
		}
	}

	live := make([]SSTable, 0, len(slots))
	for _, s := range slots {
		if s.live {
			live = append(live, s.sstable)
		}
	}

	sort.SliceStable(live, func(i, j int) bool {
		if live[i].Level != live[j].Level {
			return live[i].Level < live[j].Level
		}
		return live[i].ID < live[j].ID
	})

	return live, nil
}

// readEntry reads one record. Exactly one of (add, remove) is non-nil on a
// successful, valid entry; invalid=true for a CRC mismatch or unrecognized
// record type (both are "invalid" per spec.md §4.5, not a read error).
func (rd *Reader) readEntry() (add *SSTable, remove *uint64, invalid bool, err error) {
	crc, err := binfmt.ReadUint32(rd.r)
	if err != nil {
		return nil, nil, false, normalizeEOF(err)
	}
	length, err := binfmt.ReadUint32(rd.r)
	if err != nil {
		return nil, nil, false, normalizeEOF(err)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(rd.r, buf); err != nil {
		return nil, nil, false, normalizeEOF(err)
	}

	if crc32c.Checksum(buf) != crc {
		return nil, nil, true, nil
	}

	payload := bytes.NewReader(buf)
	ty, err := binfmt.ReadUint8(payload)
	if err != nil {
		return nil, nil, true, nil
	}

	switch ty {
	case typeAddSSTable:
		level, err := binfmt.ReadUint8(payload)
		if err != nil {
			return nil, nil, true, nil
		}
		minKey, err := binfmt.ReadString(payload)
		if err != nil {
			return nil, nil, true, nil
		}
		maxKey, err := binfmt.ReadString(payload)
		if err != nil {
			return nil, nil, true, nil
		}
		id, err := binfmt.ReadUint64(payload)
		if err != nil {
			return nil, nil, true, nil
		}
		return &SSTable{ID: id, Level: level, MinKey: minKey, MaxKey: maxKey}, nil, false, nil

	case typeRemoveSSTable:
		id, err := binfmt.ReadUint64(payload)
		if err != nil {
			return nil, nil, true, nil
		}
		return nil, &id, false, nil

	default:
		return nil, nil, true, nil
	}
}

func normalizeEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errEndOfRecords
	}
	return fmt.Errorf("%w: %v", storeerr.ErrIoError, err)
}
