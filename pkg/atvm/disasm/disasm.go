// Package disasm implements a static disassembler: a walk of a code segment
// from offset 0 to its end, skipping runs of zero bytes, emitting one
// "[PC: %04x] <mnemonic> <operand repr>" line per instruction. Each operand
// shape renders itself rather than going through a single generic
// formatter.
package disasm

import (
	"fmt"
	"strings"

	"github.com/ciyamat/atvm/pkg/atvm/codec"
	"github.com/ciyamat/atvm/pkg/atvm/function"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
	"github.com/ciyamat/atvm/pkg/atvm/opcode"
)

// Line is one disassembled instruction: its code offset and rendered text
// (without the "[PC: ...]" prefix, which Format adds).
type Line struct {
	PC   int
	Text string
}

// Walk disassembles code from offset 0 to len(code), using version to pick
// the scalar byte order for operand decode. Runs of zero bytes are treated
// as unused/padding code space and skipped rather than rendered as NOP
// instructions.
func Walk(code []byte, version uint16) []Line {
	be := machine.BigEndianHeader(version)
	var lines []Line
	pos := 0
	for pos < len(code) {
		if code[pos] == 0 {
			pos++
			continue
		}
		start := pos
		b := code[pos]
		pos++
		d, err := opcode.Lookup(b)
		if err != nil {
			lines = append(lines, Line{PC: start, Text: fmt.Sprintf("??? (0x%02x)", b)})
			continue
		}
		text, n, ok := renderOperands(d, code[pos:], be)
		if !ok {
			lines = append(lines, Line{PC: start, Text: d.Mnemonic + " <truncated>"})
			break
		}
		pos += n
		if text != "" {
			text = d.Mnemonic + " " + text
		} else {
			text = d.Mnemonic
		}
		lines = append(lines, Line{PC: start, Text: text})
	}
	return lines
}

// Format renders lines as one "[PC: %04x] <mnemonic> <operand repr>" line
// each, newline-joined.
func Format(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "[PC: %04x] %s\n", l.PC, l.Text)
	}
	return sb.String()
}

// dataAddr renders a data address in "@N" notation.
func dataAddr(n int64) string { return fmt.Sprintf("@%d", n) }

// codeAddr renders a code address in hex.
func codeAddr(n int64) string { return fmt.Sprintf("0x%x", n) }

// offset renders a branch offset as signed decimal.
func offset(n int8) string { return fmt.Sprintf("%d", n) }

func renderOperands(d opcode.Descriptor, rest []byte, be bool) (string, int, bool) {
	cur := codec.NewCursor(rest)

	readI32 := func() (int64, bool) {
		var v int32
		var err error
		if be {
			v, err = cur.ReadInt32BE()
		} else {
			v, err = cur.ReadInt32LE()
		}
		return int64(v), err == nil
	}
	readU64 := func() (uint64, bool) {
		if be {
			v, err := cur.ReadInt64BE()
			return uint64(v), err == nil
		}
		v, err := cur.ReadUint64LE()
		return v, err == nil
	}
	readOff := func() (int8, bool) {
		v, err := cur.ReadInt8()
		return v, err == nil
	}
	readFunc := func() (uint16, bool) {
		if be {
			v, err := cur.ReadUint16BE()
			return v, err == nil
		}
		v, err := cur.ReadUint16LE()
		return v, err == nil
	}
	funcMnemonic := func(code uint16) string {
		if fd, ok := function.Lookup(function.Code(code)); ok {
			return fd.Mnemonic
		}
		return fmt.Sprintf("0x%04x", code)
	}

	switch d.Shape {
	case opcode.ShapeNone:
		return "", 0, true

	case opcode.ShapeCodeAddr:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return codeAddr(a), cur.Pos(), true

	case opcode.ShapeDataAddr:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return dataAddr(a), cur.Pos(), true

	case opcode.ShapeDataAddrValue:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		v, ok := readU64()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %d", dataAddr(a), v), cur.Pos(), true

	case opcode.ShapeDataAddr2:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		c, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s", dataAddr(a), dataAddr(c)), cur.Pos(), true

	case opcode.ShapeDataAddr3:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		c, ok := readI32()
		if !ok {
			return "", 0, false
		}
		e, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s, %s", dataAddr(a), dataAddr(c), dataAddr(e)), cur.Pos(), true

	case opcode.ShapeDataAddrOffset:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		o, ok := readOff()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s", dataAddr(a), offset(o)), cur.Pos(), true

	case opcode.ShapeDataAddr2Offset:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		c, ok := readI32()
		if !ok {
			return "", 0, false
		}
		o, ok := readOff()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s, %s", dataAddr(a), dataAddr(c), offset(o)), cur.Pos(), true

	case opcode.ShapeFunc:
		f, ok := readFunc()
		if !ok {
			return "", 0, false
		}
		return funcMnemonic(f), cur.Pos(), true

	case opcode.ShapeFuncData:
		f, ok := readFunc()
		if !ok {
			return "", 0, false
		}
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s", funcMnemonic(f), dataAddr(a)), cur.Pos(), true

	case opcode.ShapeFuncData2:
		f, ok := readFunc()
		if !ok {
			return "", 0, false
		}
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		c, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s, %s", funcMnemonic(f), dataAddr(a), dataAddr(c)), cur.Pos(), true

	case opcode.ShapeDataFunc:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		f, ok := readFunc()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s", dataAddr(a), funcMnemonic(f)), cur.Pos(), true

	case opcode.ShapeDataFuncData:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		f, ok := readFunc()
		if !ok {
			return "", 0, false
		}
		c, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s, %s", dataAddr(a), funcMnemonic(f), dataAddr(c)), cur.Pos(), true

	case opcode.ShapeDataFuncData2:
		a, ok := readI32()
		if !ok {
			return "", 0, false
		}
		f, ok := readFunc()
		if !ok {
			return "", 0, false
		}
		c, ok := readI32()
		if !ok {
			return "", 0, false
		}
		e, ok := readI32()
		if !ok {
			return "", 0, false
		}
		return fmt.Sprintf("%s, %s, %s, %s", dataAddr(a), funcMnemonic(f), dataAddr(c), dataAddr(e)), cur.Pos(), true
	}
	return "", 0, false
}
