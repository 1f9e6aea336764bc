// Package regs decodes SD card registers and responses.
package regs

import (
	"encoding/binary"
	"errors"
)

// CRCTrailerBits is the number of low-order bits (CRC7 and end bit) missing
// from R2 responses on hosts that strip them.
const CRCTrailerBits = 8

// ErrBadLength indicates the raw input doesn't have the expected size.
var ErrBadLength = errors.New("bad register length")

// Field locates a bit range inside a register.
// Bit 0 is the least significant bit of the last word.
type Field struct {
	Start uint
	Width uint
}

// Bits creates a Field from the [msb:lsb] notation.
func Bits(msb, lsb uint) Field {
	return Field{Start: lsb, Width: msb - lsb + 1}
}

// Bit creates a single-bit Field.
func Bit(pos uint) Field {
	return Field{Start: pos, Width: 1}
}

func (f Field) mask() uint64 {
	return uint64(1)<<f.Width - 1
}

// Register reads fields from big-endian ordered words.
type Register struct {
	Words []uint32
	// Offset is subtracted from every bit position, e.g. CRCTrailerBits
	// when the trailer was stripped by the host.
	Offset uint
}

// Size returns the number of bits covered by Words.
func (r Register) Size() uint {
	return uint(len(r.Words)) * 32
}

// Field extracts the value of a field. Bits outside the
// available words read as zero.
func (r Register) Field(f Field) uint32 {
	if f.Width == 0 || f.Width > 32 {
		return 0
	}
	start, width := f.Start, f.Width
	if start < r.Offset {
		if start+width <= r.Offset {
			return 0
		}
		// the low part of the field was stripped.
		lost := r.Offset - start
		return r.Field(Field{Start: r.Offset, Width: width - lost}) << lost
	}
	pos := start - r.Offset
	if pos >= r.Size() {
		return 0
	}
	idx := len(r.Words) - 1 - int(pos/32)
	shift := pos % 32
	v := uint64(r.Words[idx]) >> shift
	if shift+width > 32 && idx > 0 {
		v |= uint64(r.Words[idx-1]) << (32 - shift)
	}
	return uint32(v & f.mask())
}

// Flag extracts a single-bit field as bool.
func (r Register) Flag(f Field) bool {
	return r.Field(f) != 0
}

// Put stores v into the field of words. Bits of v beyond the
// field width are discarded.
func Put(words []uint32, f Field, v uint32) {
	if f.Width == 0 || f.Width > 32 {
		return
	}
	size := uint(len(words)) * 32
	if f.Start >= size {
		return
	}
	idx := len(words) - 1 - int(f.Start/32)
	shift := f.Start % 32
	m := f.mask()
	val := uint64(v) & m
	words[idx] = words[idx]&^uint32(m<<shift) | uint32(val<<shift)
	if shift+f.Width > 32 && idx > 0 {
		rs := 32 - shift
		words[idx-1] = words[idx-1]&^uint32(m>>rs) | uint32(val>>rs)
	}
}

// WordsFromBytes converts a big-endian byte stream (as transferred on the
// data lines) into words. len(b) must be a multiple of 4.
func WordsFromBytes(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, ErrBadLength
	}
	words := make([]uint32, len(b)/4)
	for n := range words {
		words[n] = binary.BigEndian.Uint32(b[n*4:])
	}
	return words, nil
}

// BytesFromWords is the reverse of WordsFromBytes.
func BytesFromWords(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for n, w := range words {
		binary.BigEndian.PutUint32(b[n*4:], w)
	}
	return b
}
