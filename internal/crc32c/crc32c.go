// Package crc32c computes CRC-32C (Castagnoli) checksums, the integrity
// check used by the manifest's append-only record log.
package crc32c

import (
	"hash/crc32"
)

var table = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC-32C of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, table)
}
