// Package binfmt provides the big-endian, length-prefixed primitives the
// SSTable and manifest file formats are built from.
package binfmt

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/intellect4all/lsmstore/storeerr"
)

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteUint32 writes v big-endian.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteUint64 writes v big-endian.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteBytesWithLen writes a u64 length prefix followed by b.
func WriteBytesWithLen(w io.Writer, b []byte) error {
	if err := WriteUint64(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// WriteString writes s as a length-prefixed UTF-8 byte blob.
func WriteString(w io.Writer, s string) error {
	return WriteBytesWithLen(w, []byte(s))
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint32 reads a big-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadUint64 reads a big-endian uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadBytesWithLen reads a u64-length-prefixed byte blob.
func ReadBytesWithLen(r io.Reader) ([]byte, error) {
	n, err := ReadUint64(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadString reads a length-prefixed byte blob and validates it as UTF-8.
func ReadString(r io.Reader) (string, error) {
	b, err := ReadBytesWithLen(r)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: binfmt: invalid utf-8 string", storeerr.ErrCorruption)
	}
	return string(b), nil
}
