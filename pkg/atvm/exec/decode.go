// Package exec implements the opcode executor and the round driver: the
// state-changing opcodes and the per-round execution loop, split between a
// fetch-meter-dispatch outer loop (driver.go) and a per-opcode switch
// (exec.go).
package exec

import (
	"github.com/ciyamat/atvm/pkg/atvm/address"
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/codec"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

// decoder reads opcode operands from the code segment starting at the
// machine's current PC, using the version-appropriate scalar byte order:
// big-endian from version 2 onward, little-endian at version 1 — applied
// here to code-segment operand scalars the same way it applies to the
// header and other serialized scalars.
type decoder struct {
	m         *machine.Machine
	cur       *codec.Cursor
	bigEndian bool
}

func newDecoder(m *machine.Machine) *decoder {
	cur := codec.NewCursor(m.Code)
	cur.SetPos(int(m.PC))
	return &decoder{m: m, cur: cur, bigEndian: machine.BigEndianHeader(m.Version)}
}

func (d *decoder) readOpcodeByte() (byte, error) {
	b, err := d.cur.ReadByte()
	if err != nil {
		return 0, atverrors.ErrCodeSegment
	}
	return b, nil
}

func (d *decoder) readRawInt32() (int32, error) {
	var v int32
	var err error
	if d.bigEndian {
		v, err = d.cur.ReadInt32BE()
	} else {
		v, err = d.cur.ReadInt32LE()
	}
	if err != nil {
		return 0, atverrors.ErrCodeSegment
	}
	return v, nil
}

func (d *decoder) readValue() (uint64, error) {
	var v uint64
	var err error
	if d.bigEndian {
		var hi int64
		hi, err = d.cur.ReadInt64BE()
		v = uint64(hi)
	} else {
		v, err = d.cur.ReadUint64LE()
	}
	if err != nil {
		return 0, atverrors.ErrCodeSegment
	}
	return v, nil
}

func (d *decoder) readOffset() (int8, error) {
	v, err := d.cur.ReadInt8()
	if err != nil {
		return 0, atverrors.ErrCodeSegment
	}
	return v, nil
}

func (d *decoder) readFuncCode() (uint16, error) {
	var v uint16
	var err error
	if d.bigEndian {
		v, err = d.cur.ReadUint16BE()
	} else {
		v, err = d.cur.ReadUint16LE()
	}
	if err != nil {
		return 0, atverrors.ErrCodeSegment
	}
	return v, nil
}

// readDataAddr reads a 4-byte data address operand and validates it against
// the data segment bounds.
func (d *decoder) readDataAddr() (int64, error) {
	raw, err := d.readRawInt32()
	if err != nil {
		return 0, err
	}
	addr := int64(raw)
	if err := address.CheckData(addr, d.m.NumDataCells()); err != nil {
		return 0, err
	}
	return addr, nil
}

// readCodeAddr reads a 4-byte code address operand and validates it against
// the code segment bounds.
func (d *decoder) readCodeAddr() (int64, error) {
	raw, err := d.readRawInt32()
	if err != nil {
		return 0, err
	}
	addr := int64(raw)
	if err := address.CheckCode(addr, len(d.m.Code)); err != nil {
		return 0, err
	}
	return addr, nil
}

// readCodeAddrOrClearSentinel reads ERR_ADR's operand: the all-ones (-1)
// sentinel clears on_error_address rather than naming a code address, so it
// is exempt from the usual bounds check.
func (d *decoder) readCodeAddrOrClearSentinel() (addr int64, isSentinel bool, err error) {
	raw, err := d.readRawInt32()
	if err != nil {
		return 0, false, err
	}
	if raw == -1 {
		return 0, true, nil
	}
	a := int64(raw)
	if err := address.CheckCode(a, len(d.m.Code)); err != nil {
		return 0, false, err
	}
	return a, false, nil
}

// readDataAddr2 reads two consecutive data-addr operands (e.g. SET_DAT's
// dest,src, or ADD_DAT/SUB_DAT/.../SHR_DAT's dest,src pair).
func (d *decoder) readDataAddr2() (int64, int64, error) {
	a, err := d.readDataAddr()
	if err != nil {
		return 0, 0, err
	}
	b, err := d.readDataAddr()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// readDataAddr3 reads three consecutive data-addr operands (IDX_DAT's
// idx1,idx2,src and SET_IDX's dest,idx1,idx2).
func (d *decoder) readDataAddr3() (int64, int64, int64, error) {
	a, err := d.readDataAddr()
	if err != nil {
		return 0, 0, 0, err
	}
	b, err := d.readDataAddr()
	if err != nil {
		return 0, 0, 0, err
	}
	c, err := d.readDataAddr()
	if err != nil {
		return 0, 0, 0, err
	}
	return a, b, c, nil
}

// readDataAddrOffset reads a data-addr operand followed by a signed
// one-byte branch offset (BZR/BNZ).
func (d *decoder) readDataAddrOffset() (int64, int8, error) {
	addr, err := d.readDataAddr()
	if err != nil {
		return 0, 0, err
	}
	off, err := d.readOffset()
	if err != nil {
		return 0, 0, err
	}
	return addr, off, nil
}

// readDataAddr2Offset reads two data-addr operands followed by a signed
// one-byte branch offset (BGT/BLT/BGE/BLE/BEQ/BNE).
func (d *decoder) readDataAddr2Offset() (int64, int64, int8, error) {
	a, b, err := d.readDataAddr2()
	if err != nil {
		return 0, 0, 0, err
	}
	off, err := d.readOffset()
	if err != nil {
		return 0, 0, 0, err
	}
	return a, b, off, nil
}

// readDataAddrValue reads one data-addr operand and dereferences it,
// returning the value stored at that cell — the EXT_FUN_DAT family passes
// the cell's *value*, not its address, into the function call; individual
// functions reinterpret that integer as needed.
func (d *decoder) readDataAddrValue() (int64, error) {
	addr, err := d.readDataAddr()
	if err != nil {
		return 0, err
	}
	v, err := d.m.DataCell(addr)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// readDataAddrValue2 reads and dereferences two data-addr operands, for
// EXT_FUN_DAT_2/EXT_FUN_RET_DAT_2.
func (d *decoder) readDataAddrValue2() (int64, int64, error) {
	v1, err := d.readDataAddrValue()
	if err != nil {
		return 0, 0, err
	}
	v2, err := d.readDataAddrValue()
	if err != nil {
		return 0, 0, err
	}
	return v1, v2, nil
}
