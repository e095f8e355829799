// Package opcode defines the one-byte instruction table: every opcode's
// mnemonic, operand shape, and default per-round step cost, plus the decoder
// that turns a raw byte into a descriptor.
package opcode

import "github.com/ciyamat/atvm/pkg/atvm/atverrors"

// Shape identifies an opcode's operand layout.
type Shape int

const (
	ShapeNone           Shape = iota // no operands
	ShapeCodeAddr                    // code-addr
	ShapeDataAddr                    // data-addr
	ShapeDataAddrValue               // data-addr, value
	ShapeDataAddr2                   // data-addr, data-addr
	ShapeDataAddr3                   // data-addr, data-addr, data-addr
	ShapeDataAddrOffset              // data-addr, offset
	ShapeDataAddr2Offset             // data-addr, data-addr, offset
	ShapeFunc                        // func-code
	ShapeFuncData                    // func-code, data-addr
	ShapeFuncData2                   // func-code, data-addr, data-addr
	ShapeDataFunc                    // data-addr, func-code
	ShapeDataFuncData                // data-addr, func-code, data-addr
	ShapeDataFuncData2               // data-addr, func-code, data-addr, data-addr
)

// Code is a single opcode byte.
type Code byte

// Opcode byte values, grouped by family.
const (
	NOP Code = 0x00

	// Control family.
	STP_IMD Code = 0x01
	SLP_DAT Code = 0x02
	FIN_IMD Code = 0x03
	STZ     Code = 0x04
	FIZ     Code = 0x05
	ERR_ADR Code = 0x06
	SET_PCS Code = 0x07
	JMP_ADR Code = 0x08
	JMP_SUB Code = 0x09
	RET_SUB Code = 0x0A

	// Data move family.
	SET_VAL Code = 0x10
	SET_DAT Code = 0x11
	CLR_DAT Code = 0x12
	IND_DAT Code = 0x13
	IDX_DAT Code = 0x14
	SET_IND Code = 0x15
	SET_IDX Code = 0x16

	// Arithmetic family.
	INC_DAT Code = 0x20
	DEC_DAT Code = 0x21
	ADD_DAT Code = 0x22
	SUB_DAT Code = 0x23
	MUL_DAT Code = 0x24
	DIV_DAT Code = 0x25
	MOD_DAT Code = 0x26

	// Bitwise/shift family.
	BOR_DAT Code = 0x30
	AND_DAT Code = 0x31
	XOR_DAT Code = 0x32
	NOT_DAT Code = 0x33
	SHL_DAT Code = 0x34
	SHR_DAT Code = 0x35

	// Compare/branch family.
	BZR Code = 0x40
	BNZ Code = 0x41
	BGT Code = 0x42
	BLT Code = 0x43
	BGE Code = 0x44
	BLE Code = 0x45
	BEQ Code = 0x46
	BNE Code = 0x47

	// Stack family.
	PSH_DAT Code = 0x50
	POP_DAT Code = 0x51

	// Extended-function family.
	EXT_FUN           Code = 0x60
	EXT_FUN_DAT       Code = 0x61
	EXT_FUN_DAT_2     Code = 0x62
	EXT_FUN_RET       Code = 0x63
	EXT_FUN_RET_DAT   Code = 0x64
	EXT_FUN_RET_DAT_2 Code = 0x65
)

// Descriptor is the static metadata for one opcode.
type Descriptor struct {
	Code         Code
	Mnemonic     string
	Shape        Shape
	DefaultSteps uint32
}

var table = map[Code]Descriptor{
	NOP:     {NOP, "NOP", ShapeNone, 1},
	STP_IMD: {STP_IMD, "STP_IMD", ShapeNone, 1},
	SLP_DAT: {SLP_DAT, "SLP_DAT", ShapeDataAddr, 1},
	FIN_IMD: {FIN_IMD, "FIN_IMD", ShapeNone, 1},
	STZ:     {STZ, "STZ", ShapeDataAddr, 1},
	FIZ:     {FIZ, "FIZ", ShapeDataAddr, 1},
	ERR_ADR: {ERR_ADR, "ERR_ADR", ShapeCodeAddr, 1},
	SET_PCS: {SET_PCS, "SET_PCS", ShapeNone, 1},
	JMP_ADR: {JMP_ADR, "JMP_ADR", ShapeCodeAddr, 1},
	JMP_SUB: {JMP_SUB, "JMP_SUB", ShapeCodeAddr, 2},
	RET_SUB: {RET_SUB, "RET_SUB", ShapeNone, 2},

	SET_VAL: {SET_VAL, "SET_VAL", ShapeDataAddrValue, 1},
	SET_DAT: {SET_DAT, "SET_DAT", ShapeDataAddr2, 1},
	CLR_DAT: {CLR_DAT, "CLR_DAT", ShapeDataAddr, 1},
	IND_DAT: {IND_DAT, "IND_DAT", ShapeDataAddr2, 2},
	IDX_DAT: {IDX_DAT, "IDX_DAT", ShapeDataAddr3, 2},
	SET_IND: {SET_IND, "SET_IND", ShapeDataAddr2, 2},
	SET_IDX: {SET_IDX, "SET_IDX", ShapeDataAddr3, 2},

	INC_DAT: {INC_DAT, "INC_DAT", ShapeDataAddr, 1},
	DEC_DAT: {DEC_DAT, "DEC_DAT", ShapeDataAddr, 1},
	ADD_DAT: {ADD_DAT, "ADD_DAT", ShapeDataAddr2, 1},
	SUB_DAT: {SUB_DAT, "SUB_DAT", ShapeDataAddr2, 1},
	MUL_DAT: {MUL_DAT, "MUL_DAT", ShapeDataAddr2, 3},
	DIV_DAT: {DIV_DAT, "DIV_DAT", ShapeDataAddr2, 3},
	MOD_DAT: {MOD_DAT, "MOD_DAT", ShapeDataAddr2, 3},

	BOR_DAT: {BOR_DAT, "BOR_DAT", ShapeDataAddr2, 1},
	AND_DAT: {AND_DAT, "AND_DAT", ShapeDataAddr2, 1},
	XOR_DAT: {XOR_DAT, "XOR_DAT", ShapeDataAddr2, 1},
	NOT_DAT: {NOT_DAT, "NOT_DAT", ShapeDataAddr, 1},
	SHL_DAT: {SHL_DAT, "SHL_DAT", ShapeDataAddr2, 1},
	SHR_DAT: {SHR_DAT, "SHR_DAT", ShapeDataAddr2, 1},

	BZR: {BZR, "BZR", ShapeDataAddrOffset, 1},
	BNZ: {BNZ, "BNZ", ShapeDataAddrOffset, 1},
	BGT: {BGT, "BGT", ShapeDataAddr2Offset, 1},
	BLT: {BLT, "BLT", ShapeDataAddr2Offset, 1},
	BGE: {BGE, "BGE", ShapeDataAddr2Offset, 1},
	BLE: {BLE, "BLE", ShapeDataAddr2Offset, 1},
	BEQ: {BEQ, "BEQ", ShapeDataAddr2Offset, 1},
	BNE: {BNE, "BNE", ShapeDataAddr2Offset, 1},

	PSH_DAT: {PSH_DAT, "PSH_DAT", ShapeDataAddr, 1},
	POP_DAT: {POP_DAT, "POP_DAT", ShapeDataAddr, 1},

	EXT_FUN:           {EXT_FUN, "EXT_FUN", ShapeFunc, 1},
	EXT_FUN_DAT:       {EXT_FUN_DAT, "EXT_FUN_DAT", ShapeFuncData, 1},
	EXT_FUN_DAT_2:     {EXT_FUN_DAT_2, "EXT_FUN_DAT_2", ShapeFuncData2, 1},
	EXT_FUN_RET:       {EXT_FUN_RET, "EXT_FUN_RET", ShapeDataFunc, 1},
	EXT_FUN_RET_DAT:   {EXT_FUN_RET_DAT, "EXT_FUN_RET_DAT", ShapeDataFuncData, 1},
	EXT_FUN_RET_DAT_2: {EXT_FUN_RET_DAT_2, "EXT_FUN_RET_DAT_2", ShapeDataFuncData2, 1},
}

// Lookup resolves a raw opcode byte to its descriptor. An unrecognized byte
// is an IllegalOperation error.
func Lookup(b byte) (Descriptor, error) {
	d, ok := table[Code(b)]
	if !ok {
		return Descriptor{}, atverrors.ErrIllegalOperation
	}
	return d, nil
}

// IsBranch reports whether the opcode is one of the branch family, whose
// offset is relative to the start of the branch opcode.
func (d Descriptor) IsBranch() bool {
	switch d.Shape {
	case ShapeDataAddrOffset, ShapeDataAddr2Offset:
		return true
	default:
		return false
	}
}
