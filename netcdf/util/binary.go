package util

import (
	"encoding/binary"
	"io"

	"github.com/batchatco/go-thrower"
)

// CDF files are big-endian throughout, so these helpers fix the byte order.

// MustWriteBE wraps binary.Write with BigEndian and throws an error if it fails.
func MustWriteBE(w io.Writer, data any) {
	err := binary.Write(w, binary.BigEndian, data)
	thrower.ThrowIfError(err)
}

// MustReadBE wraps binary.Read with BigEndian and throws an error if it fails.
func MustReadBE(r io.Reader, data any) {
	err := binary.Read(r, binary.BigEndian, data)
	thrower.ThrowIfError(err)
}

func MustRead8(r io.Reader) byte {
	var b byte
	MustReadBE(r, &b)
	return b
}

func MustRead32(r io.Reader) uint32 {
	var v uint32
	MustReadBE(r, &v)
	return v
}

func MustRead64(r io.Reader) uint64 {
	var v uint64
	MustReadBE(r, &v)
	return v
}

func MustWrite32(w io.Writer, v int32) { MustWriteBE(w, v) }
func MustWrite64(w io.Writer, v int64) { MustWriteBE(w, v) }

// MustWritePad writes the zero bytes needed to bring offset to a multiple of 4.
func MustWritePad(w io.Writer, offset int64) {
	extra := RoundUp4(offset) - offset
	if extra > 0 {
		var zero [3]byte
		_, err := w.Write(zero[:extra])
		thrower.ThrowIfError(err)
	}
}

// RoundUp4 rounds up to the next multiple of 4.
func RoundUp4(i int64) int64 {
	return (i + 3) &^ 0x3
}
