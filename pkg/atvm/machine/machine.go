// Package machine holds the AT virtual machine's state container: header,
// code/data segments, the two downward-growing stacks, the program counter
// and flag registers, and the A/B scratch registers. It owns no execution
// logic — that lives in pkg/atvm/exec — only the narrow accessor methods the
// executor and serializer need.
package machine

import (
	"github.com/ciyamat/atvm/pkg/atvm/address"
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
)

// CallStackEntryBytes and UserStackEntryBytes are the fixed entry widths for
// the two downward-growing stacks (version ≥2 onward; version 1 pages are
// all 256 bytes but entries keep these widths).
const (
	CallStackEntryBytes = 4
	UserStackEntryBytes = 8
	DataCellBytes       = address.DataCellBytes
)

// PageSizes holds the four page sizes in effect for a given header version.
type PageSizes struct {
	Code, Data, CallStack, UserStack int
}

// PageSizesForVersion returns the versioned page sizes: version 1 uses 256
// bytes for every page; version ≥2 uses the natural per-entry widths.
func PageSizesForVersion(version uint16) PageSizes {
	if version == 1 {
		return PageSizes{Code: 256, Data: 256, CallStack: 256, UserStack: 256}
	}
	return PageSizes{Code: 1, Data: DataCellBytes, CallStack: CallStackEntryBytes, UserStack: UserStackEntryBytes}
}

// BigEndianHeader reports whether header and serialized scalars use
// big-endian byte order for this version. Version 1 is little-endian; all
// later versions are big-endian.
func BigEndianHeader(version uint16) bool {
	return version != 1
}

// Machine is the mutable state container for one AT.
type Machine struct {
	Version   uint16
	MinActivationAmount uint64

	NumCodePages, NumDataPages, NumCallStackPages, NumUserStackPages int

	Code []byte // read-only at execution; length = NumCodePages*pageSize(code)
	Data []byte // NumDataPages*pageSize(data) bytes, addressed in 8-byte cells

	CallStack    []byte // NumCallStackPages*pageSize(call stack) bytes, downward growing, 4-byte entries
	callStackPos int    // current write position; starts at len(CallStack)

	UserStack    []byte // NumUserStackPages*pageSize(user stack) bytes, downward growing, 8-byte entries
	userStackPos int    // current write position; starts at len(UserStack)

	PC              int32
	OnStopAddress   int32
	OnErrorAddress  *int32
	IsSleeping      bool
	SleepUntilHeight *int32
	IsStopped       bool
	IsFrozen        bool
	FrozenBalance   *int64
	IsFinished      bool
	HadFatalError   bool

	A [4]uint64
	B [4]uint64

	CurrentBlockHeight uint32
	CurrentBalance     uint64
	PreviousBalance    uint64

	Steps uint32

	IsFirstOpcodeAfterSleeping bool
}

// New constructs a fresh machine from creation parameters: header
// dimensions, the code image, and the initial data image (zero-padded to a
// whole number of pages by the caller, typically via serialize.ToCreationBytes).
func New(version uint16, numCodePages, numDataPages, numCallStackPages, numUserStackPages int, minActivationAmount uint64, code, data []byte) *Machine {
	ps := PageSizesForVersion(version)
	m := &Machine{
		Version:              version,
		MinActivationAmount:  minActivationAmount,
		NumCodePages:         numCodePages,
		NumDataPages:         numDataPages,
		NumCallStackPages:    numCallStackPages,
		NumUserStackPages:    numUserStackPages,
		Code:                 code,
		Data:                 data,
		CallStack:            make([]byte, numCallStackPages*ps.CallStack),
		UserStack:            make([]byte, numUserStackPages*ps.UserStack),
	}
	m.callStackPos = len(m.CallStack)
	m.userStackPos = len(m.UserStack)
	if minActivationAmount > 0 {
		m.IsFrozen = true
		fb := int64(minActivationAmount) - 1
		m.FrozenBalance = &fb
	}
	return m
}

// NumDataCells returns the number of addressable 8-byte data cells.
func (m *Machine) NumDataCells() int64 {
	return int64(len(m.Data) / DataCellBytes)
}

// DataCell reads data cell i as a little-endian uint64 (data-segment values
// stay little-endian regardless of header version).
func (m *Machine) DataCell(i int64) (uint64, error) {
	if err := address.CheckData(i, m.NumDataCells()); err != nil {
		return 0, err
	}
	off := int(i) * DataCellBytes
	var v uint64
	for k := 7; k >= 0; k-- {
		v = v<<8 | uint64(m.Data[off+k])
	}
	return v, nil
}

// SetDataCell writes value into data cell i, little-endian.
func (m *Machine) SetDataCell(i int64, value uint64) error {
	if err := address.CheckData(i, m.NumDataCells()); err != nil {
		return err
	}
	off := int(i) * DataCellBytes
	v := value
	for k := 0; k < 8; k++ {
		m.Data[off+k] = byte(v)
		v >>= 8
	}
	return nil
}

// DataRange returns the raw bytes for `count` cells starting at index,
// validated via address.CheckDataRange. Used by the four-word A/B register
// block copies and the hash functions.
func (m *Machine) DataRange(index, count int64) ([]byte, error) {
	if err := address.CheckDataRange(index, count, m.NumDataCells()); err != nil {
		return nil, err
	}
	off := int(index) * DataCellBytes
	n := int(count) * DataCellBytes
	return m.Data[off : off+n], nil
}

// DataBytesRange returns a read-only view of byteLength raw bytes starting
// at cell index start, validated against the cell-rounded bound — mirrors
// getHashData's bounds check (start + ceil(length/8) <= numDataPages).
func (m *Machine) DataBytesRange(start int64, byteLength int64) ([]byte, error) {
	cellCount := address.ByteLengthToCellCount(byteLength)
	if cellCount == 0 {
		if start < 0 || start > m.NumDataCells() {
			return nil, atverrors.ErrInvalidAddress
		}
		return nil, nil
	}
	if err := address.CheckDataRange(start, cellCount, m.NumDataCells()); err != nil {
		return nil, err
	}
	off := int(start) * DataCellBytes
	return m.Data[off : off+int(byteLength)], nil
}

// PushCallStack pushes a 4-byte code address onto the call stack.
func (m *Machine) PushCallStack(addr int32) error {
	if m.callStackPos < CallStackEntryBytes {
		return atverrors.ErrStackBounds
	}
	m.callStackPos -= CallStackEntryBytes
	v := uint32(addr)
	m.CallStack[m.callStackPos+0] = byte(v >> 24)
	m.CallStack[m.callStackPos+1] = byte(v >> 16)
	m.CallStack[m.callStackPos+2] = byte(v >> 8)
	m.CallStack[m.callStackPos+3] = byte(v)
	return nil
}

// PopCallStack pops a 4-byte code address from the call stack.
func (m *Machine) PopCallStack() (int32, error) {
	if m.callStackPos+CallStackEntryBytes > len(m.CallStack) {
		return 0, atverrors.ErrStackBounds
	}
	v := uint32(m.CallStack[m.callStackPos])<<24 |
		uint32(m.CallStack[m.callStackPos+1])<<16 |
		uint32(m.CallStack[m.callStackPos+2])<<8 |
		uint32(m.CallStack[m.callStackPos+3])
	m.callStackPos += CallStackEntryBytes
	return int32(v), nil
}

// CallStackUsed returns the in-use bytes (from the top position to the
// limit) — used by the serializer.
func (m *Machine) CallStackUsed() []byte {
	return m.CallStack[m.callStackPos:]
}

// RestoreCallStack repositions the call stack with the given in-use tail
// bytes placed at the top (used by the deserializer).
func (m *Machine) RestoreCallStack(used []byte) error {
	if len(used) > len(m.CallStack) || len(used)%CallStackEntryBytes != 0 {
		return atverrors.ErrStackBounds
	}
	pos := len(m.CallStack) - len(used)
	copy(m.CallStack[pos:], used)
	m.callStackPos = pos
	return nil
}

// PushUserStack pushes an 8-byte value onto the user stack.
func (m *Machine) PushUserStack(value uint64) error {
	if m.userStackPos < UserStackEntryBytes {
		return atverrors.ErrStackBounds
	}
	m.userStackPos -= UserStackEntryBytes
	v := value
	for k := 0; k < 8; k++ {
		m.UserStack[m.userStackPos+k] = byte(v)
		v >>= 8
	}
	return nil
}

// PopUserStack pops an 8-byte value from the user stack.
func (m *Machine) PopUserStack() (uint64, error) {
	if m.userStackPos+UserStackEntryBytes > len(m.UserStack) {
		return 0, atverrors.ErrStackBounds
	}
	var v uint64
	for k := 7; k >= 0; k-- {
		v = v<<8 | uint64(m.UserStack[m.userStackPos+k])
	}
	m.userStackPos += UserStackEntryBytes
	return v, nil
}

// UserStackUsed returns the in-use tail of the user stack — used by the
// serializer.
func (m *Machine) UserStackUsed() []byte {
	return m.UserStack[m.userStackPos:]
}

// RestoreUserStack repositions the user stack from its in-use tail bytes.
func (m *Machine) RestoreUserStack(used []byte) error {
	if len(used) > len(m.UserStack) || len(used)%UserStackEntryBytes != 0 {
		return atverrors.ErrStackBounds
	}
	pos := len(m.UserStack) - len(used)
	copy(m.UserStack[pos:], used)
	m.userStackPos = pos
	return nil
}

// RewindCode moves the program counter backward by offset bytes. The
// executor's GENERATE_RANDOM_USING_TX_IN_A deferral does not call it; it
// sets PC back to the instruction's start address directly.
func (m *Machine) RewindCode(offset int) {
	m.PC -= int32(offset)
}

// ZeroA reports whether the A register is all zero (for the serializer's
// has_non_zero_A flag).
func (m *Machine) ZeroA() bool {
	return m.A[0] == 0 && m.A[1] == 0 && m.A[2] == 0 && m.A[3] == 0
}

// ZeroB reports whether the B register is all zero.
func (m *Machine) ZeroB() bool {
	return m.B[0] == 0 && m.B[1] == 0 && m.B[2] == 0 && m.B[3] == 0
}
