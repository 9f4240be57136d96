package sstable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
)

// LoadBloomFilter reads id's sidecar bloom filter from dir. A missing
// sidecar is reported via ok=false rather than an error, so a reader can
// degrade to "no filter, check the chunks directly" for SSTables written
// before this enrichment existed.
func LoadBloomFilter(dir string, id uint64) (filter *bloom.BloomFilter, ok bool, err error) {
	path := filepath.Join(dir, BloomSidecarName(id))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sstable: open bloom sidecar %s: %w", path, err)
	}
	defer f.Close()

	filter = &bloom.BloomFilter{}
	if _, err := filter.ReadFrom(f); err != nil {
		return nil, false, fmt.Errorf("sstable: read bloom sidecar %s: %w", path, err)
	}
	return filter, true, nil
}

// RemoveFiles deletes an SSTable's main file and its bloom sidecar (if any)
// under dir. Missing files are not an error, matching the tolerance for
// already-deleted or never-written sidecars described in SPEC_FULL.md §11.
func RemoveFiles(dir string, id uint64) error {
	mainErr := os.Remove(filepath.Join(dir, FileName(id)))
	if mainErr != nil && !errors.Is(mainErr, os.ErrNotExist) {
		return fmt.Errorf("sstable: remove %s: %w", FileName(id), mainErr)
	}
	sideErr := os.Remove(filepath.Join(dir, BloomSidecarName(id)))
	if sideErr != nil && !errors.Is(sideErr, os.ErrNotExist) {
		return fmt.Errorf("sstable: remove %s: %w", BloomSidecarName(id), sideErr)
	}
	return nil
}
