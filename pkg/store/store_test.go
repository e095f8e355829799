package store

import (
	"bytes"
	"testing"

	"github.com/ciyamat/atvm/pkg/atvm/address"
	"github.com/ciyamat/atvm/pkg/atvm/serialize"
)

func testAddr(b byte) address.Address {
	var a address.Address
	a[0] = b
	return a
}

func testCreationBytes(t *testing.T) []byte {
	t.Helper()
	code := []byte{0x10, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 8, 0xAE, 0x03} // SET_VAL @2, 2222 ; FIN
	img, err := serialize.ToCreationBytes(2, code, make([]byte, 64), 2, 2, 0)
	if err != nil {
		t.Fatalf("ToCreationBytes: %v", err)
	}
	return img
}

func openStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeployLoadSave(t *testing.T) {
	s := openStore(t)
	addr := testAddr(1)

	if s.Has(addr) {
		t.Fatal("Has on empty store")
	}
	if err := s.Deploy(addr, testCreationBytes(t)); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if !s.Has(addr) {
		t.Fatal("Has after deploy")
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d", s.Count())
	}

	m, err := s.Load(addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Version != 2 || m.PC != 0 {
		t.Fatalf("loaded machine = version %d, PC %d", m.Version, m.PC)
	}

	m.PC = 14
	if err := m.SetDataCell(2, 2222); err != nil {
		t.Fatal(err)
	}
	m.IsFinished = true
	if err := s.Save(addr, m); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2, err := s.Load(addr)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if m2.PC != 14 || !m2.IsFinished {
		t.Fatalf("reloaded machine = PC %d, finished %v", m2.PC, m2.IsFinished)
	}
	v, err := m2.DataCell(2)
	if err != nil || v != 2222 {
		t.Fatalf("data[2] = %d, %v", v, err)
	}
	if !bytes.Equal(m2.Code, m.Code) {
		t.Fatal("code bytes changed across save/load")
	}
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)
	if _, err := s.Load(testAddr(9)); err == nil {
		t.Fatal("Load of missing machine succeeded")
	}
}

func TestRedeployDoesNotDoubleCount(t *testing.T) {
	s := openStore(t)
	addr := testAddr(2)
	if err := s.Deploy(addr, testCreationBytes(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Deploy(addr, testCreationBytes(t)); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count after redeploy = %d", s.Count())
	}
}

func TestCountSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := byte(1); i <= 3; i++ {
		if err := s.Deploy(testAddr(i), testCreationBytes(t)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if s2.Count() != 3 {
		t.Fatalf("Count after reopen = %d", s2.Count())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := openStore(t)
	for i := byte(1); i <= 3; i++ {
		if err := src.Deploy(testAddr(i), testCreationBytes(t)); err != nil {
			t.Fatal(err)
		}
	}
	m, err := src.Load(testAddr(2))
	if err != nil {
		t.Fatal(err)
	}
	m.PC = 99
	if err := src.Save(testAddr(2), m); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := src.ExportSnapshot(&buf); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}

	dst := openStore(t)
	n, err := dst.ImportSnapshot(&buf)
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if n != 3 {
		t.Fatalf("imported %d machines, want 3", n)
	}
	got, err := dst.Load(testAddr(2))
	if err != nil {
		t.Fatalf("Load from imported store: %v", err)
	}
	if got.PC != 99 {
		t.Fatalf("imported machine PC = %d, want 99", got.PC)
	}
}
