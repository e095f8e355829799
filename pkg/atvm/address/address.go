// Package address validates code and data address operands before they are
// used to index into a machine's segments. Every address that reaches the
// executor has already passed through here: every address argument is
// validated before use.
package address

import "github.com/ciyamat/atvm/pkg/atvm/atverrors"

// DataCellBytes is the fixed width of one data-segment cell.
const DataCellBytes = 8

// CheckCode validates a code address against the code segment length. Code
// addresses must be non-negative and strictly less than the segment length
// (MAX_CODE_ADDRESS is simply codeLen-1).
func CheckCode(addr int64, codeLen int) error {
	if addr < 0 || addr >= int64(codeLen) {
		return atverrors.ErrInvalidAddress
	}
	return nil
}

// CheckData validates that a single data-cell index lies within the data
// segment, expressed in pages (cells).
func CheckData(index int64, numDataPages int64) error {
	if index < 0 || index >= numDataPages {
		return atverrors.ErrInvalidAddress
	}
	return nil
}

// CheckDataRange validates that `count` consecutive cells starting at index
// all lie within the data segment — used by the four-word A/B register
// copies and by the hash functions' getHashData equivalent.
func CheckDataRange(index int64, count int64, numDataPages int64) error {
	if count <= 0 {
		return atverrors.ErrInvalidAddress
	}
	maxIndex := numDataPages - count
	if index < 0 || index > maxIndex {
		return atverrors.ErrInvalidAddress
	}
	return nil
}

// ByteLengthToCellCount returns the ceiling of byteLength/8, the number of
// whole data cells spanned by a byte region of the given length.
func ByteLengthToCellCount(byteLength int64) int64 {
	if byteLength <= 0 {
		return 0
	}
	return (DataCellBytes - 1 + byteLength) / DataCellBytes
}
