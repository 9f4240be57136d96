// Package manifest implements the append-only, CRC32C-protected log of
// live SSTables (spec.md §4.5): AddSSTable/RemoveSSTable records, a
// transactional writer with compact-on-open, and a reader that folds the
// log into the live set.
package manifest

import "sort"

const (
	// Magic identifies a manifest file.
	Magic uint32 = 0xBEEFFE57
	// Version is the only supported manifest format version.
	Version uint8 = 1

	headerSize = 4 + 1 + 8 // magic + version + next_sstable_id

	typeAddSSTable    uint8 = 1
	typeRemoveSSTable uint8 = 2
)

// SSTable describes one live SSTable as recorded in the manifest.
type SSTable struct {
	ID             uint64
	Level          uint8
	MinKey, MaxKey string
}

// Overlaps reports whether key could fall within this SSTable's range.
func (s SSTable) Overlaps(key string) bool {
	return s.MinKey <= key && key <= s.MaxKey
}

// RangeOverlaps reports whether this SSTable's [MinKey, MaxKey] span
// intersects the given bounds: its min or max key falls within them, or the
// span encloses them entirely. Each bound is inclusive unless its exclusive
// flag is set; empty bounds are unbounded on that side, matching the
// prototype's RangeBounds handling (SPEC_FULL.md §12).
func (s SSTable) RangeOverlaps(start, end string, startExclusive, endExclusive bool) bool {
	inRange := func(key string) bool {
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
	if inRange(s.MinKey) || inRange(s.MaxKey) {
		return true
	}
	// Neither end is inside the bounds, but the span may still cover them.
	return start != "" && end != "" && s.MinKey <= start && s.MaxKey >= end
}

// Manifest is the folded, live view of the manifest log: the result of
// applying every Add/Remove record in file order.
type Manifest struct {
	SSTables []SSTable
}

// CandidatesForKey returns the live SSTables whose range could contain key,
// in the reader's (level asc, id asc) order.
func (m Manifest) CandidatesForKey(key string) []SSTable {
	var out []SSTable
	for _, s := range m.SSTables {
		if s.Overlaps(key) {
			out = append(out, s)
		}
	}
	return out
}

// CandidatesForRange returns the live SSTables whose key span intersects
// the given bounds (see RangeOverlaps).
func (m Manifest) CandidatesForRange(start, end string, startExclusive, endExclusive bool) []SSTable {
	var out []SSTable
	for _, s := range m.SSTables {
		if s.RangeOverlaps(start, end, startExclusive, endExclusive) {
			out = append(out, s)
		}
	}
	return out
}

// NewestFirst returns a copy of sstables ordered newest-first: level 0
// before higher levels, and within a level the highest id first. This is
// the corrected candidate order from spec.md §9 (the prototype's
// iter().rev() over (level asc, id asc) is a documented latent defect;
// this is the fix, not a port of the bug).
func NewestFirst(sstables []SSTable) []SSTable {
	out := make([]SSTable, len(sstables))
	copy(out, sstables)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID > out[j].ID
	})
	return out
}
