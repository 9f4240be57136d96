// Package storeerr defines the sentinel error kinds used across the store,
// mirroring the teacher's plain errors.New sentinel style.
package storeerr

import "errors"

var (
	// ErrBadInput reports a key or value exceeding the 512-byte limit, or
	// another caller-supplied value outside its allowed range.
	ErrBadInput = errors.New("lsmstore: bad input")

	// ErrAlreadyOpen reports that an exclusive advisory lock (the
	// directory lock or the manifest lock) is already held.
	ErrAlreadyOpen = errors.New("lsmstore: store directory already open")

	// ErrCorruption reports a structural integrity failure: bad magic or
	// version, a CRC mismatch treated as fatal, or invalid UTF-8 in a
	// length-prefixed string.
	ErrCorruption = errors.New("lsmstore: corruption detected")

	// ErrIoError reports an underlying filesystem failure not covered by
	// the kinds above.
	ErrIoError = errors.New("lsmstore: io error")

	// ErrClosed reports an operation attempted on a closed store handle.
	ErrClosed = errors.New("lsmstore: store is closed")
)
