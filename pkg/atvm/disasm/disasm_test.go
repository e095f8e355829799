package disasm

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/ciyamat/atvm/pkg/atvm/function"
	"github.com/ciyamat/atvm/pkg/atvm/opcode"
)

func buildProgram() []byte {
	var buf []byte
	putI32 := func(v int32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf = append(buf, b[:]...)
	}
	putI64 := func(v int64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf = append(buf, b[:]...)
	}
	putFn := func(c function.Code) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(c))
		buf = append(buf, b[:]...)
	}

	buf = append(buf, byte(opcode.SET_VAL)) // [0]
	putI32(2)
	putI64(2222)
	buf = append(buf, byte(opcode.BZR)) // [13]
	putI32(2)
	buf = append(buf, 0xF8)                     // offset -8
	buf = append(buf, byte(opcode.EXT_FUN_DAT)) // [19]
	putFn(function.SET_A1)
	putI32(4)
	buf = append(buf, byte(opcode.JMP_ADR)) // [26]
	putI32(0x1F)
	buf = append(buf, 0, 0, 0)              // padding, skipped
	buf = append(buf, byte(opcode.FIN_IMD)) // [34]
	return buf
}

func TestWalk(t *testing.T) {
	lines := Walk(buildProgram(), 2)
	if len(lines) != 5 {
		t.Fatalf("got %d lines: %v", len(lines), lines)
	}

	want := []struct {
		pc   int
		text string
	}{
		{0, "SET_VAL @2, 2222"},
		{13, "BZR @2, -8"},
		{19, "EXT_FUN_DAT SET_A1, @4"},
		{26, "JMP_ADR 0x1f"},
		{34, "FIN_IMD"},
	}
	for i, w := range want {
		if lines[i].PC != w.pc || lines[i].Text != w.text {
			t.Errorf("line %d = [%d] %q, want [%d] %q", i, lines[i].PC, lines[i].Text, w.pc, w.text)
		}
	}
}

func TestWalkUnknownOpcode(t *testing.T) {
	lines := Walk([]byte{0xEE}, 2)
	if len(lines) != 1 || !strings.Contains(lines[0].Text, "0xee") {
		t.Fatalf("lines = %v", lines)
	}
}

func TestWalkTruncatedOperands(t *testing.T) {
	lines := Walk([]byte{byte(opcode.SET_VAL), 0x00}, 2)
	if len(lines) != 1 || !strings.Contains(lines[0].Text, "truncated") {
		t.Fatalf("lines = %v", lines)
	}
}

func TestFormat(t *testing.T) {
	out := Format(Walk(buildProgram(), 2))
	if !strings.HasPrefix(out, "[PC: 0000] SET_VAL @2, 2222\n") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "[PC: 000d] BZR @2, -8") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "[PC: 0022] FIN_IMD") {
		t.Fatalf("output = %q", out)
	}
}

func TestWalkUnknownFunctionCodeRendersHex(t *testing.T) {
	code := []byte{byte(opcode.EXT_FUN), 0x05, 0x99}
	lines := Walk(code, 2)
	if len(lines) != 1 || lines[0].Text != "EXT_FUN 0x0599" {
		t.Fatalf("lines = %v", lines)
	}
}
