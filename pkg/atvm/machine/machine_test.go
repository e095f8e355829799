package machine

import (
	"errors"
	"testing"

	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
)

func newTestMachine(dataCells, callPages, userPages int) *Machine {
	return New(2, 8, dataCells, callPages, userPages, 0, make([]byte, 8), make([]byte, dataCells*DataCellBytes))
}

func TestPageSizesForVersion(t *testing.T) {
	v1 := PageSizesForVersion(1)
	if v1.Code != 256 || v1.Data != 256 || v1.CallStack != 256 || v1.UserStack != 256 {
		t.Fatalf("version 1 page sizes = %+v", v1)
	}
	v2 := PageSizesForVersion(2)
	if v2.Code != 1 || v2.Data != 8 || v2.CallStack != 4 || v2.UserStack != 8 {
		t.Fatalf("version 2 page sizes = %+v", v2)
	}
	if BigEndianHeader(1) || !BigEndianHeader(2) || !BigEndianHeader(3) {
		t.Fatal("BigEndianHeader: version 1 must be little-endian, later versions big-endian")
	}
}

func TestDataCellLittleEndianLayout(t *testing.T) {
	m := newTestMachine(4, 1, 1)
	if err := m.SetDataCell(1, 0x0102030405060708); err != nil {
		t.Fatalf("SetDataCell: %v", err)
	}
	// Cell 1 occupies bytes [8,16), least significant byte first.
	want := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	for i, b := range want {
		if m.Data[8+i] != b {
			t.Fatalf("Data[%d] = %x, want %x", 8+i, m.Data[8+i], b)
		}
	}
	v, err := m.DataCell(1)
	if err != nil || v != 0x0102030405060708 {
		t.Fatalf("DataCell = %x, %v", v, err)
	}
}

func TestDataCellBounds(t *testing.T) {
	m := newTestMachine(4, 1, 1)
	if _, err := m.DataCell(4); !errors.Is(err, atverrors.ErrInvalidAddress) {
		t.Fatalf("DataCell(4) on 4-cell segment: %v", err)
	}
	if err := m.SetDataCell(-1, 0); !errors.Is(err, atverrors.ErrInvalidAddress) {
		t.Fatalf("SetDataCell(-1): %v", err)
	}
}

func TestDataBytesRange(t *testing.T) {
	m := newTestMachine(4, 1, 1)
	b, err := m.DataBytesRange(1, 12)
	if err != nil {
		t.Fatalf("DataBytesRange(1, 12): %v", err)
	}
	if len(b) != 12 {
		t.Fatalf("len = %d, want 12", len(b))
	}
	// 12 bytes starting at cell 3 spans cells 3..4, past the segment.
	if _, err := m.DataBytesRange(3, 12); !errors.Is(err, atverrors.ErrInvalidAddress) {
		t.Fatalf("overflowing range: %v", err)
	}
	if b, err := m.DataBytesRange(2, 0); err != nil || b != nil {
		t.Fatalf("zero-length range = %v, %v", b, err)
	}
}

func TestCallStackLIFO(t *testing.T) {
	m := newTestMachine(4, 2, 1) // 2 call-stack entries
	if err := m.PushCallStack(0x11); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := m.PushCallStack(0x22); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := m.PushCallStack(0x33); !errors.Is(err, atverrors.ErrStackBounds) {
		t.Fatalf("push on full stack: %v", err)
	}
	v, err := m.PopCallStack()
	if err != nil || v != 0x22 {
		t.Fatalf("pop 1 = %x, %v", v, err)
	}
	v, err = m.PopCallStack()
	if err != nil || v != 0x11 {
		t.Fatalf("pop 2 = %x, %v", v, err)
	}
	if _, err := m.PopCallStack(); !errors.Is(err, atverrors.ErrStackBounds) {
		t.Fatalf("pop on empty stack: %v", err)
	}
}

func TestUserStackLIFO(t *testing.T) {
	m := newTestMachine(4, 1, 2) // 2 user-stack entries
	if err := m.PushUserStack(100); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := m.PushUserStack(200); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if err := m.PushUserStack(300); !errors.Is(err, atverrors.ErrStackBounds) {
		t.Fatalf("push on full stack: %v", err)
	}
	v, err := m.PopUserStack()
	if err != nil || v != 200 {
		t.Fatalf("pop 1 = %d, %v", v, err)
	}
	v, err = m.PopUserStack()
	if err != nil || v != 100 {
		t.Fatalf("pop 2 = %d, %v", v, err)
	}
	if _, err := m.PopUserStack(); !errors.Is(err, atverrors.ErrStackBounds) {
		t.Fatalf("pop on empty stack: %v", err)
	}
}

func TestStackRestore(t *testing.T) {
	m := newTestMachine(4, 4, 4)
	m.PushCallStack(7)
	m.PushCallStack(9)
	used := m.CallStackUsed()
	if len(used) != 2*CallStackEntryBytes {
		t.Fatalf("CallStackUsed len = %d", len(used))
	}

	m2 := newTestMachine(4, 4, 4)
	if err := m2.RestoreCallStack(used); err != nil {
		t.Fatalf("RestoreCallStack: %v", err)
	}
	v, err := m2.PopCallStack()
	if err != nil || v != 9 {
		t.Fatalf("pop after restore = %d, %v", v, err)
	}

	if err := m2.RestoreCallStack(make([]byte, 3)); !errors.Is(err, atverrors.ErrStackBounds) {
		t.Fatalf("restore with misaligned tail: %v", err)
	}
	if err := m2.RestoreUserStack(make([]byte, 5*UserStackEntryBytes)); !errors.Is(err, atverrors.ErrStackBounds) {
		t.Fatalf("restore past capacity: %v", err)
	}
}

func TestActivationFreeze(t *testing.T) {
	m := New(2, 1, 1, 1, 1, 500, make([]byte, 1), make([]byte, 8))
	if !m.IsFrozen {
		t.Fatal("machine with min activation amount must start frozen")
	}
	if m.FrozenBalance == nil || *m.FrozenBalance != 499 {
		t.Fatalf("FrozenBalance = %v, want 499", m.FrozenBalance)
	}

	m2 := New(2, 1, 1, 1, 1, 0, make([]byte, 1), make([]byte, 8))
	if m2.IsFrozen || m2.FrozenBalance != nil {
		t.Fatal("machine without min activation amount must not start frozen")
	}
}

func TestZeroAZeroB(t *testing.T) {
	m := newTestMachine(1, 1, 1)
	if !m.ZeroA() || !m.ZeroB() {
		t.Fatal("fresh machine must have zero A and B")
	}
	m.A[3] = 1
	m.B[0] = 1
	if m.ZeroA() || m.ZeroB() {
		t.Fatal("ZeroA/ZeroB must see any non-zero word")
	}
}

func TestRewindCode(t *testing.T) {
	m := newTestMachine(1, 1, 1)
	m.PC = 20
	m.RewindCode(7)
	if m.PC != 13 {
		t.Fatalf("PC after rewind = %d, want 13", m.PC)
	}
}
