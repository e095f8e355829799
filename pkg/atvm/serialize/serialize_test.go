package serialize

import (
	"bytes"
	"testing"

	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

func sampleMachine(t *testing.T) *machine.Machine {
	t.Helper()
	code := make([]byte, 32)
	for i := range code {
		code[i] = byte(i)
	}
	data := make([]byte, 8*8)
	m := machine.New(2, len(code), 8, 4, 4, 0, code, data)
	return m
}

func TestStateRoundTripFull(t *testing.T) {
	m := sampleMachine(t)
	if err := m.SetDataCell(2, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	m.PC = 17
	m.OnStopAddress = 3
	onErr := int32(9)
	m.OnErrorAddress = &onErr
	sleepUntil := int32(1234)
	m.SleepUntilHeight = &sleepUntil
	m.IsSleeping = true
	frozen := int64(55)
	m.FrozenBalance = &frozen
	m.IsFrozen = true
	m.PreviousBalance = 7777
	m.A = [4]uint64{1, 2, 3, 4}
	m.B = [4]uint64{5, 6, 7, 8}
	if err := m.PushCallStack(21); err != nil {
		t.Fatal(err)
	}
	if err := m.PushUserStack(4242); err != nil {
		t.Fatal(err)
	}

	img := ToStateBytes(m)
	m2, err := FromStateBytes(img, m.Code)
	if err != nil {
		t.Fatalf("FromStateBytes: %v", err)
	}
	img2 := ToStateBytes(m2)
	if !bytes.Equal(img, img2) {
		t.Fatalf("round trip not byte-identical:\n  %x\n  %x", img, img2)
	}

	if m2.PC != 17 || m2.OnStopAddress != 3 {
		t.Fatalf("PC/OnStop = %d/%d", m2.PC, m2.OnStopAddress)
	}
	if m2.OnErrorAddress == nil || *m2.OnErrorAddress != 9 {
		t.Fatalf("OnErrorAddress = %v", m2.OnErrorAddress)
	}
	if m2.SleepUntilHeight == nil || *m2.SleepUntilHeight != 1234 {
		t.Fatalf("SleepUntilHeight = %v", m2.SleepUntilHeight)
	}
	if m2.FrozenBalance == nil || *m2.FrozenBalance != 55 {
		t.Fatalf("FrozenBalance = %v", m2.FrozenBalance)
	}
	if !m2.IsSleeping || !m2.IsFrozen || m2.IsFinished || m2.HadFatalError {
		t.Fatalf("flags = sleeping %v frozen %v finished %v fatal %v",
			m2.IsSleeping, m2.IsFrozen, m2.IsFinished, m2.HadFatalError)
	}
	if m2.PreviousBalance != 7777 {
		t.Fatalf("PreviousBalance = %d", m2.PreviousBalance)
	}
	if m2.A != m.A || m2.B != m.B {
		t.Fatalf("A/B = %v / %v", m2.A, m2.B)
	}
	v, err := m2.DataCell(2)
	if err != nil || v != 0xDEADBEEF {
		t.Fatalf("data cell 2 = %x, %v", v, err)
	}
	ret, err := m2.PopCallStack()
	if err != nil || ret != 21 {
		t.Fatalf("call stack after restore = %d, %v", ret, err)
	}
	uv, err := m2.PopUserStack()
	if err != nil || uv != 4242 {
		t.Fatalf("user stack after restore = %d, %v", uv, err)
	}
}

func TestStateRoundTripMinimal(t *testing.T) {
	m := sampleMachine(t)
	img := ToStateBytes(m)
	m2, err := FromStateBytes(img, m.Code)
	if err != nil {
		t.Fatalf("FromStateBytes: %v", err)
	}
	if !bytes.Equal(img, ToStateBytes(m2)) {
		t.Fatal("minimal round trip not byte-identical")
	}
	if m2.OnErrorAddress != nil || m2.SleepUntilHeight != nil || m2.FrozenBalance != nil {
		t.Fatal("optional fields present on minimal machine")
	}
	if !m2.ZeroA() || !m2.ZeroB() {
		t.Fatal("zero A/B blocks must restore as zero")
	}
}

// A machine with a min-activation amount that has already been activated
// (unfrozen) must restore unfrozen: the flags word governs, not the header.
func TestStateRestoreAfterActivation(t *testing.T) {
	code := make([]byte, 4)
	m := machine.New(2, 4, 2, 1, 1, 1000, code, make([]byte, 16))
	m.IsFrozen = false
	m.FrozenBalance = nil

	img := ToStateBytes(m)
	m2, err := FromStateBytes(img, code)
	if err != nil {
		t.Fatalf("FromStateBytes: %v", err)
	}
	if m2.IsFrozen || m2.FrozenBalance != nil {
		t.Fatal("restore reinstalled the activation freeze")
	}
	if !bytes.Equal(img, ToStateBytes(m2)) {
		t.Fatal("activated machine round trip not byte-identical")
	}
	if m2.MinActivationAmount != 1000 {
		t.Fatalf("MinActivationAmount = %d", m2.MinActivationAmount)
	}
}

// The flags word packs is_sleeping in the highest used bit (bit 9) down to
// has_non_zero_B in bit 0. The exact packing is part of the wire contract,
// so it is pinned here bit by bit, not just round-tripped.
func TestFlagsWordBitAssignments(t *testing.T) {
	m := sampleMachine(t)
	m.IsSleeping = true
	onErr := int32(3)
	m.OnErrorAddress = &onErr
	m.A[0] = 1

	img := ToStateBytes(m)
	// header(20) + data + callLen(4) + userLen(4) + PC(4) + onStop(4) +
	// prevBalance(8); both stacks are empty.
	off := 20 + len(m.Data) + 4 + 4 + 4 + 4 + 8
	flags := uint32(img[off])<<24 | uint32(img[off+1])<<16 | uint32(img[off+2])<<8 | uint32(img[off+3])
	want := uint32(1<<9 | 1<<4 | 1<<1) // sleeping, has on-error address, non-zero A
	if flags != want {
		t.Fatalf("flags word = %#x, want %#x", flags, want)
	}
}

func TestHeaderEndiannessByVersion(t *testing.T) {
	v2 := encodeHeader(Header{Version: 2, NumCodePages: 0x0102})
	if v2[0] != 0x00 || v2[1] != 0x02 {
		t.Fatalf("v2 version field = %x %x, want big-endian 00 02", v2[0], v2[1])
	}
	if v2[4] != 0x01 || v2[5] != 0x02 {
		t.Fatalf("v2 NumCodePages = %x %x, want 01 02", v2[4], v2[5])
	}
	if len(v2) != 20 {
		t.Fatalf("v2 header len = %d, want 20", len(v2))
	}

	v1 := encodeHeader(Header{Version: 1, NumCodePages: 0x0102})
	if v1[0] != 0x01 || v1[1] != 0x00 {
		t.Fatalf("v1 version field = %x %x, want little-endian 01 00", v1[0], v1[1])
	}
	if v1[4] != 0x02 || v1[5] != 0x01 {
		t.Fatalf("v1 NumCodePages = %x %x, want 02 01", v1[4], v1[5])
	}
	if len(v1) != 12 {
		t.Fatalf("v1 header len = %d, want 12", len(v1))
	}

	h, n, err := decodeHeader(v1)
	if err != nil || n != 12 || h.Version != 1 || h.NumCodePages != 0x0102 {
		t.Fatalf("decode v1 header = %+v, %d, %v", h, n, err)
	}
	h, n, err = decodeHeader(v2)
	if err != nil || n != 20 || h.Version != 2 || h.NumCodePages != 0x0102 {
		t.Fatalf("decode v2 header = %+v, %d, %v", h, n, err)
	}
}

func TestToCreationBytesRoundsUpPages(t *testing.T) {
	// Version 2: code pages are single bytes, data pages are 8-byte cells.
	code := []byte{1, 2, 3}
	data := make([]byte, 20) // 2.5 cells, must round to 3
	img, err := ToCreationBytes(2, code, data, 1, 1, 0)
	if err != nil {
		t.Fatalf("ToCreationBytes: %v", err)
	}
	m, err := FromCreationBytes(img)
	if err != nil {
		t.Fatalf("FromCreationBytes: %v", err)
	}
	if m.NumCodePages != 3 || m.NumDataPages != 3 {
		t.Fatalf("pages = %d code / %d data, want 3/3", m.NumCodePages, m.NumDataPages)
	}
	if len(m.Data) != 24 {
		t.Fatalf("data segment len = %d, want 24", len(m.Data))
	}

	// Version 1: 256-byte pages; 300 bytes of code rounds to 2 pages.
	codeV1 := make([]byte, 300)
	codeV1[0] = byte(0x03)
	img, err = ToCreationBytes(1, codeV1, make([]byte, 10), 1, 1, 0)
	if err != nil {
		t.Fatalf("ToCreationBytes v1: %v", err)
	}
	m, err = FromCreationBytes(img)
	if err != nil {
		t.Fatalf("FromCreationBytes v1: %v", err)
	}
	if m.NumCodePages != 2 || len(m.Code) != 512 {
		t.Fatalf("v1 code pages = %d, len = %d, want 2/512", m.NumCodePages, len(m.Code))
	}
	if m.NumDataPages != 1 || len(m.Data) != 256 {
		t.Fatalf("v1 data pages = %d, len = %d, want 1/256", m.NumDataPages, len(m.Data))
	}
}

func TestToCreationBytesEmptyCode(t *testing.T) {
	if _, err := ToCreationBytes(2, nil, nil, 1, 1, 0); err == nil {
		t.Fatal("empty code accepted")
	}
}

func TestFromCreationBytesRejectsBadLength(t *testing.T) {
	img, err := ToCreationBytes(2, []byte{1, 2, 3, 4}, make([]byte, 8), 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := FromCreationBytes(img[:len(img)-1]); err == nil {
		t.Fatal("truncated creation bytes accepted")
	}
	if _, err := FromCreationBytes(append(img, 0)); err == nil {
		t.Fatal("oversized creation bytes accepted")
	}
}

func TestMinActivationAmountStartsFrozen(t *testing.T) {
	img, err := ToCreationBytes(3, []byte{1}, make([]byte, 8), 1, 1, 250)
	if err != nil {
		t.Fatal(err)
	}
	m, err := FromCreationBytes(img)
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsFrozen || m.FrozenBalance == nil || *m.FrozenBalance != 249 {
		t.Fatalf("activation freeze = %v / %v", m.IsFrozen, m.FrozenBalance)
	}
}

func TestExtractDataBytes(t *testing.T) {
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(0xA0 + i)
	}
	img, err := ToCreationBytes(2, []byte{7}, data, 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	m, err := FromCreationBytes(img)
	if err != nil {
		t.Fatal(err)
	}
	state := ToStateBytes(m)
	got, err := ExtractDataBytes(state)
	if err != nil {
		t.Fatalf("ExtractDataBytes: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("extracted data = %x, want %x", got, data)
	}
	if _, err := ExtractDataBytes(state[:10]); err == nil {
		t.Fatal("truncated state accepted")
	}
}
