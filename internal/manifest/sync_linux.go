//go:build linux

package manifest

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncData performs a data-only sync (fdatasync), matching spec.md §4.5's
// "fsync data" primitive more precisely than a full fsync would.
func syncData(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
