// Package serialize implements the byte-exact wire formats: the
// creation-bytes format a deployer submits to stand up a new AT
// (header || code || initial_data), and the persistent state-bytes format a
// host uses to park a machine between rounds.
package serialize

import (
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/codec"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

// Header is the fixed, version-dependent preamble of a creation-bytes
// image: six 16-bit page/version fields, plus an 8-byte min_activation_amount
// present from version 2 onward.
type Header struct {
	Version              uint16
	Reserved             uint16
	NumCodePages         uint16
	NumDataPages         uint16
	NumCallStackPages    uint16
	NumUserStackPages    uint16
	MinActivationAmount  uint64 // only meaningful, and only present on the wire, for version >= 2
}

// HeaderLen returns the on-wire header length for the given version: 12
// bytes at version 1 (no min_activation_amount field), 20 bytes from
// version 2 onward.
func HeaderLen(version uint16) int {
	if version == 1 {
		return 12
	}
	return 20
}

// LegacyV1SizingBug controls whether FromCreationBytes accepts version-1
// creation bytes sized by the historical length check some deployed tooling
// produced (numDataPages + DATA_PAGE_SIZE, an addition, where a
// multiplication by the 256-byte v1 page size was clearly intended).
// Default false: version-1 images are validated against the corrected
// product and rejected otherwise.
var LegacyV1SizingBug = false

// encodeHeader writes h using version's scalar endianness (little-endian at
// version 1, big-endian from version 2 onward).
func encodeHeader(h Header) []byte {
	be := machine.BigEndianHeader(h.Version)
	buf := make([]byte, HeaderLen(h.Version))
	putU16 := func(off int, v uint16) {
		if be {
			buf[off] = byte(v >> 8)
			buf[off+1] = byte(v)
		} else {
			buf[off] = byte(v)
			buf[off+1] = byte(v >> 8)
		}
	}
	putU16(0, h.Version)
	putU16(2, h.Reserved)
	putU16(4, h.NumCodePages)
	putU16(6, h.NumDataPages)
	putU16(8, h.NumCallStackPages)
	putU16(10, h.NumUserStackPages)
	if h.Version != 1 {
		if be {
			copy(buf[12:20], codec.PutInt64BE(int64(h.MinActivationAmount)))
		} else {
			v := h.MinActivationAmount
			for k := 0; k < 8; k++ {
				buf[12+k] = byte(v)
				v >>= 8
			}
		}
	}
	return buf
}

// decodeHeader parses a header from the front of b, returning the header
// and the number of bytes consumed. It first reads the version field alone
// (present at the same 2-byte offset regardless of endianness disagreement
// between versions, since it's a single 16-bit value read in whichever
// order that version uses) to decide how to read everything else.
func decodeHeader(b []byte) (Header, int, error) {
	if len(b) < 12 {
		return Header{}, 0, atverrors.ErrCodeSegment
	}
	// Version 1 is little-endian; try that reading first since it is the
	// only version without a trailing min_activation_amount field, then
	// fall back to big-endian if the value doesn't look like 1.
	versionLE := uint16(b[0]) | uint16(b[1])<<8
	versionBE := uint16(b[0])<<8 | uint16(b[1])
	version := versionBE
	be := true
	if versionLE == 1 {
		version = versionLE
		be = false
	}
	hlen := HeaderLen(version)
	if len(b) < hlen {
		return Header{}, 0, atverrors.ErrCodeSegment
	}
	getU16 := func(off int) uint16 {
		if be {
			return uint16(b[off])<<8 | uint16(b[off+1])
		}
		return uint16(b[off]) | uint16(b[off+1])<<8
	}
	h := Header{
		Version:           version,
		Reserved:          getU16(2),
		NumCodePages:      getU16(4),
		NumDataPages:      getU16(6),
		NumCallStackPages: getU16(8),
		NumUserStackPages: getU16(10),
	}
	if version != 1 {
		if be {
			var v uint64
			for k := 0; k < 8; k++ {
				v = v<<8 | uint64(b[12+k])
			}
			h.MinActivationAmount = v
		} else {
			var v uint64
			for k := 7; k >= 0; k-- {
				v = v<<8 | uint64(b[12+k])
			}
			h.MinActivationAmount = v
		}
	}
	return h, hlen, nil
}

// ToCreationBytes builds the wire format a deployer submits to stand up a
// new AT: header || code || initial_data. Both code and data are
// zero-padded up to a whole number of pages for the given version.
func ToCreationBytes(version uint16, code, data []byte, numCallStackPages, numUserStackPages int, minActivationAmount uint64) ([]byte, error) {
	ps := machine.PageSizesForVersion(version)
	if len(code) == 0 {
		return nil, atverrors.ErrInvalidAddress
	}
	numCodePages := ((len(code) - 1) / ps.Code) + 1
	paddedCode := make([]byte, numCodePages*ps.Code)
	copy(paddedCode, code)

	numDataPages := len(data) / ps.Data
	if len(data)%ps.Data != 0 {
		numDataPages++
	}
	padded := make([]byte, numDataPages*ps.Data)
	copy(padded, data)

	h := Header{
		Version:             version,
		NumCodePages:        uint16(numCodePages),
		NumDataPages:        uint16(numDataPages),
		NumCallStackPages:   uint16(numCallStackPages),
		NumUserStackPages:   uint16(numUserStackPages),
		MinActivationAmount: minActivationAmount,
	}
	out := make([]byte, 0, HeaderLen(version)+len(paddedCode)+len(padded))
	out = append(out, encodeHeader(h)...)
	out = append(out, paddedCode...)
	out = append(out, padded...)
	return out, nil
}

// expectedBodyLen computes the code+data byte length a header's page counts
// imply, honoring LegacyV1SizingBug's choice of formula for version 1.
func expectedBodyLen(h Header) (codeLen, dataLen int) {
	ps := machine.PageSizesForVersion(h.Version)
	codeLen = int(h.NumCodePages) * ps.Code
	if h.Version == 1 && LegacyV1SizingBug {
		dataLen = int(h.NumDataPages) + ps.Data
	} else {
		dataLen = int(h.NumDataPages) * ps.Data
	}
	return
}

// FromCreationBytes parses a creation-bytes image and constructs a fresh
// Machine. Version-1 images are checked against the corrected
// numDataPages*DATA_PAGE_SIZE product unless LegacyV1SizingBug is set.
func FromCreationBytes(b []byte) (*machine.Machine, error) {
	h, hlen, err := decodeHeader(b)
	if err != nil {
		return nil, err
	}
	codeLen, dataLen := expectedBodyLen(h)
	if len(b) != hlen+codeLen+dataLen {
		return nil, atverrors.ErrInvalidAddress
	}
	code := make([]byte, codeLen)
	copy(code, b[hlen:hlen+codeLen])
	data := make([]byte, dataLen)
	copy(data, b[hlen+codeLen:hlen+codeLen+dataLen])

	m := machine.New(h.Version, int(h.NumCodePages), int(h.NumDataPages), int(h.NumCallStackPages), int(h.NumUserStackPages), h.MinActivationAmount, code, data)
	return m, nil
}
