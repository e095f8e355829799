// Package codec provides the little/big-endian integer primitives and the
// bounded byte cursor the rest of pkg/atvm builds on. It has no knowledge of
// opcodes or machine state; it is the byte-plumbing layer, built directly
// on encoding/binary the way a memory-map reader would be.
package codec

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a read or write would run past the end of
// the backing slice.
var ErrShortBuffer = errors.New("codec: short buffer")

// Cursor is a bounds-checked sequential reader over a fixed byte slice: each
// read consumes bytes at the current position, and SetPos moves it. It has no
// write methods; WriteUint64LE and ReadUint64LEAt below work at absolute
// offsets without a cursor.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for bounded sequential access starting at position 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Len returns the length of the backing buffer.
func (c *Cursor) Len() int { return len(c.buf) }

// Pos returns the current cursor position.
func (c *Cursor) Pos() int { return c.pos }

// SetPos repositions the cursor. It does not bounds-check against Len — a
// position equal to Len is valid (end of buffer).
func (c *Cursor) SetPos(pos int) { c.pos = pos }

// Remaining reports how many bytes are left before the cursor runs off the
// end of the buffer.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Bytes returns the full backing slice (for serialization).
func (c *Cursor) Bytes() []byte { return c.buf }

// ReadByte reads and consumes one byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadUint16LE reads and consumes a little-endian uint16.
func (c *Cursor) ReadUint16LE() (uint16, error) {
	if c.Remaining() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadUint16BE reads and consumes a big-endian uint16.
func (c *Cursor) ReadUint16BE() (uint16, error) {
	if c.Remaining() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// ReadInt32BE reads and consumes a big-endian signed int32 (code addresses,
// program counters).
func (c *Cursor) ReadInt32BE() (int32, error) {
	if c.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := int32(binary.BigEndian.Uint32(c.buf[c.pos:]))
	c.pos += 4
	return v, nil
}

// ReadInt32LE reads and consumes a little-endian signed int32.
func (c *Cursor) ReadInt32LE() (int32, error) {
	if c.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := int32(binary.LittleEndian.Uint32(c.buf[c.pos:]))
	c.pos += 4
	return v, nil
}

// ReadUint32BE reads and consumes a big-endian uint32.
func (c *Cursor) ReadUint32BE() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// ReadUint64LE reads and consumes a little-endian uint64 (data-segment
// values, which stay little-endian within a cell regardless of header
// version).
func (c *Cursor) ReadUint64LE() (uint64, error) {
	if c.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// ReadInt64BE reads and consumes a big-endian signed int64.
func (c *Cursor) ReadInt64BE() (int64, error) {
	if c.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := int64(binary.BigEndian.Uint64(c.buf[c.pos:]))
	c.pos += 8
	return v, nil
}

// ReadInt8 reads and consumes one signed byte (branch offsets).
func (c *Cursor) ReadInt8() (int8, error) {
	b, err := c.ReadByte()
	if err != nil {
		return 0, err
	}
	return int8(b), nil
}

// WriteUint64LE writes a little-endian uint64 at the given absolute offset
// without moving the cursor; used for in-place data-cell writes.
func WriteUint64LE(buf []byte, offset int, v uint64) error {
	if offset < 0 || offset+8 > len(buf) {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(buf[offset:], v)
	return nil
}

// ReadUint64LEAt reads a little-endian uint64 at the given absolute offset
// without moving any cursor.
func ReadUint64LEAt(buf []byte, offset int) (uint64, error) {
	if offset < 0 || offset+8 > len(buf) {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(buf[offset:]), nil
}

// PutInt32BE returns v as a new 4-byte big-endian slice.
func PutInt32BE(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

// PutInt64BE returns v as a new 8-byte big-endian slice.
func PutInt64BE(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// PutUint32BE returns v as a new 4-byte big-endian slice.
func PutUint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
