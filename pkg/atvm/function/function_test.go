package function

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/crypto/ripemd160"

	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/host"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

type recordingLogger struct {
	echoes []int64
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Warnf(string, ...any)  {}
func (l *recordingLogger) Errorf(string, ...any) {}
func (l *recordingLogger) Echo(v int64)          { l.echoes = append(l.echoes, v) }

func newCtx(dataCells int) (*Context, *host.Ledger, *recordingLogger) {
	m := machine.New(2, 1, dataCells, 4, 4, 0, []byte{0}, make([]byte, dataCells*8))
	ledger := host.NewLedger(1, 1000, nil)
	logger := &recordingLogger{}
	return &Context{M: m, API: host.NewMapAPI(ledger), Log: logger}, ledger, logger
}

func call(t *testing.T, ctx *Context, code Code, params int, returns bool, v1, v2 int64) int64 {
	t.Helper()
	result, err := Call(code, params, returns, Data{Value1: v1, Value2: v2}, ctx)
	if err != nil {
		t.Fatalf("Call(%s): %v", mnemonic(code), err)
	}
	return result
}

func mnemonic(code Code) string {
	if d, ok := Lookup(code); ok {
		return d.Mnemonic
	}
	return "?"
}

// Two-byte function codes are wire format: every assignment (and the
// 0x012F gap) is pinned so a renumbering can't slip through as a mere
// rename.
func TestFunctionCodeAssignments(t *testing.T) {
	pins := map[Code]uint16{
		ECHO:                         0x0001,
		GET_A1:                       0x0100,
		GET_B_DAT:                    0x010B,
		SET_A1:                       0x0110,
		SET_A3_A4:                    0x0115,
		SET_B1:                       0x0116,
		SET_B3_B4:                    0x011B,
		SET_A_IND:                    0x011C,
		SET_B_IND:                    0x011D,
		SET_A_DAT:                    0x011E,
		SET_B_DAT:                    0x011F,
		CLEAR_A_AND_B:                0x0122,
		COPY_A_FROM_B:                0x0123,
		COPY_B_FROM_A:                0x0124,
		CHECK_A_IS_ZERO:              0x0125,
		SWAP_A_AND_B:                 0x0128,
		OR_A_WITH_B:                  0x0129,
		OR_B_WITH_A:                  0x012A,
		AND_B_WITH_A:                 0x012C,
		XOR_B_WITH_A:                 0x012E,
		UNSIGNED_COMPARE_A_WITH_B:    0x0130,
		SIGNED_COMPARE_A_WITH_B:      0x0131,
		GET_PREVIOUS_BLOCK_TIMESTAMP: 0x0302,
		PUT_PREVIOUS_BLOCK_HASH_INTO_A: 0x0303,
		GET_TYPE_FROM_TX_IN_A:        0x0305,
		GET_TIMESTAMP_FROM_TX_IN_A:   0x0307,
		GENERATE_RANDOM_USING_TX_IN_A: 0x0308,
		ADD_MINUTES_TO_TIMESTAMP:     0x0406,
	}
	for code, want := range pins {
		if uint16(code) != want {
			d, _ := Lookup(code)
			t.Errorf("%s = %#04x, want %#04x", d.Mnemonic, uint16(code), want)
		}
	}
	if _, ok := Lookup(Code(0x012F)); ok {
		t.Error("0x012F must stay unassigned")
	}
}

func TestShapePreflight(t *testing.T) {
	ctx, _, _ := newCtx(8)
	if _, err := Call(GET_A1, 1, true, Data{}, ctx); !errors.Is(err, atverrors.ErrIllegalOperation) {
		t.Fatalf("wrong param count: %v", err)
	}
	if _, err := Call(GET_A1, 0, false, Data{}, ctx); !errors.Is(err, atverrors.ErrIllegalOperation) {
		t.Fatalf("wrong return expectation: %v", err)
	}
	if _, err := Call(Code(0x0FFF), 0, false, Data{}, ctx); !errors.Is(err, atverrors.ErrIllegalOperation) {
		t.Fatalf("unknown code: %v", err)
	}
}

func TestEcho(t *testing.T) {
	ctx, _, logger := newCtx(8)
	call(t, ctx, ECHO, 1, false, 77, 0)
	if len(logger.echoes) != 1 || logger.echoes[0] != 77 {
		t.Fatalf("echoes = %v", logger.echoes)
	}
}

func TestRegisterWords(t *testing.T) {
	ctx, _, _ := newCtx(8)
	call(t, ctx, SET_A3, 1, false, 123, 0)
	call(t, ctx, SET_B1, 1, false, -9, 0)
	if got := call(t, ctx, GET_A3, 0, true, 0, 0); got != 123 {
		t.Fatalf("GET_A3 = %d", got)
	}
	if got := call(t, ctx, GET_B1, 0, true, 0, 0); got != -9 {
		t.Fatalf("GET_B1 = %d", got)
	}
	call(t, ctx, SET_A1_A2, 2, false, 10, 20)
	if ctx.M.A[0] != 10 || ctx.M.A[1] != 20 {
		t.Fatalf("A after SET_A1_A2 = %v", ctx.M.A)
	}
	call(t, ctx, SET_A3_A4, 2, false, 30, 40)
	if ctx.M.A[2] != 30 || ctx.M.A[3] != 40 {
		t.Fatalf("A after SET_A3_A4 = %v", ctx.M.A)
	}
	call(t, ctx, SET_B3_B4, 2, false, 70, 80)
	if ctx.M.B[2] != 70 || ctx.M.B[3] != 80 {
		t.Fatalf("B after SET_B3_B4 = %v", ctx.M.B)
	}
}

func TestRegisterBlockCopies(t *testing.T) {
	ctx, _, _ := newCtx(16)
	m := ctx.M
	for i := int64(0); i < 4; i++ {
		if err := m.SetDataCell(4+i, uint64(100+i)); err != nil {
			t.Fatal(err)
		}
	}
	// SET_A_DAT: four cells from address 4 into A.
	call(t, ctx, SET_A_DAT, 1, false, 4, 0)
	if m.A != [4]uint64{100, 101, 102, 103} {
		t.Fatalf("A = %v", m.A)
	}
	// GET_A_DAT: A out to four cells at address 8.
	call(t, ctx, GET_A_DAT, 1, false, 8, 0)
	for i := int64(0); i < 4; i++ {
		v, err := m.DataCell(8 + i)
		if err != nil || v != uint64(100+i) {
			t.Fatalf("cell %d = %d, %v", 8+i, v, err)
		}
	}
	// SET_B_IND: cell 0 points at address 4.
	if err := m.SetDataCell(0, 4); err != nil {
		t.Fatal(err)
	}
	call(t, ctx, SET_B_IND, 1, false, 0, 0)
	if m.B != [4]uint64{100, 101, 102, 103} {
		t.Fatalf("B = %v", m.B)
	}
	// Out-of-range block copy must fail before mutating.
	if _, err := Call(GET_A_DAT, 1, false, Data{Value1: 14}, ctx); !errors.Is(err, atverrors.ErrInvalidAddress) {
		t.Fatalf("GET_A_DAT at 14 on 16-cell segment: %v", err)
	}
}

func TestRegisterCombinators(t *testing.T) {
	ctx, _, _ := newCtx(8)
	m := ctx.M
	m.A = [4]uint64{0xF0, 1, 2, 3}
	m.B = [4]uint64{0x0F, 1, 2, 3}

	call(t, ctx, XOR_A_WITH_B, 0, false, 0, 0)
	if m.A != [4]uint64{0xFF, 0, 0, 0} {
		t.Fatalf("A after XOR = %v", m.A)
	}
	call(t, ctx, COPY_B_FROM_A, 0, false, 0, 0)
	if got := call(t, ctx, CHECK_A_EQUALS_B, 0, true, 0, 0); got != 1 {
		t.Fatalf("CHECK_A_EQUALS_B = %d", got)
	}
	call(t, ctx, CLEAR_A, 0, false, 0, 0)
	if got := call(t, ctx, CHECK_A_IS_ZERO, 0, true, 0, 0); got != 1 {
		t.Fatalf("CHECK_A_IS_ZERO = %d", got)
	}
	if got := call(t, ctx, CHECK_B_IS_ZERO, 0, true, 0, 0); got != 0 {
		t.Fatalf("CHECK_B_IS_ZERO = %d", got)
	}
	call(t, ctx, COPY_A_FROM_B, 0, false, 0, 0)
	if m.A != [4]uint64{0xFF, 0, 0, 0} {
		t.Fatalf("A after COPY_A_FROM_B = %v", m.A)
	}
	call(t, ctx, CLEAR_A, 0, false, 0, 0)
	call(t, ctx, SWAP_A_AND_B, 0, false, 0, 0)
	if m.A != [4]uint64{0xFF, 0, 0, 0} || !ctx.M.ZeroB() {
		t.Fatalf("after SWAP: A = %v, B = %v", m.A, m.B)
	}
	call(t, ctx, CLEAR_A_AND_B, 0, false, 0, 0)
	if !m.ZeroA() || !m.ZeroB() {
		t.Fatalf("after CLEAR_A_AND_B: A = %v, B = %v", m.A, m.B)
	}
}

// The B-destination combinators mirror their A-destination partners.
func TestRegisterCombinatorsIntoB(t *testing.T) {
	ctx, _, _ := newCtx(8)
	m := ctx.M

	m.A = [4]uint64{0x0F, 0, 0, 0}
	m.B = [4]uint64{0xF0, 1, 0, 0}
	call(t, ctx, OR_B_WITH_A, 0, false, 0, 0)
	if m.B != [4]uint64{0xFF, 1, 0, 0} || m.A != [4]uint64{0x0F, 0, 0, 0} {
		t.Fatalf("after OR_B_WITH_A: A = %v, B = %v", m.A, m.B)
	}

	m.A = [4]uint64{0x3C, 7, 0, 0}
	m.B = [4]uint64{0x0F, 5, 0, 0}
	call(t, ctx, AND_B_WITH_A, 0, false, 0, 0)
	if m.B != [4]uint64{0x0C, 5, 0, 0} {
		t.Fatalf("after AND_B_WITH_A: B = %v", m.B)
	}

	m.A = [4]uint64{0xFF, 0, 0, 0}
	m.B = [4]uint64{0x0F, 0, 0, 0}
	call(t, ctx, XOR_B_WITH_A, 0, false, 0, 0)
	if m.B != [4]uint64{0xF0, 0, 0, 0} || m.A != [4]uint64{0xFF, 0, 0, 0} {
		t.Fatalf("after XOR_B_WITH_A: A = %v, B = %v", m.A, m.B)
	}
}

// The third and fourth comparison legs compare a3/a4 against themselves,
// so words 3 and 4 can never decide the result.
func TestCompareCascadeIgnoresHighWords(t *testing.T) {
	ctx, _, _ := newCtx(8)
	m := ctx.M
	m.A = [4]uint64{7, 7, 1, 1}
	m.B = [4]uint64{7, 7, 999, 999}
	if got := call(t, ctx, UNSIGNED_COMPARE_A_WITH_B, 0, true, 0, 0); got != 0 {
		t.Fatalf("unsigned compare with differing high words = %d, want 0", got)
	}
	if got := call(t, ctx, SIGNED_COMPARE_A_WITH_B, 0, true, 0, 0); got != 0 {
		t.Fatalf("signed compare with differing high words = %d, want 0", got)
	}

	m.A[1] = 6
	if got := call(t, ctx, UNSIGNED_COMPARE_A_WITH_B, 0, true, 0, 0); got != -1 {
		t.Fatalf("unsigned compare a2<b2 = %d, want -1", got)
	}

	// Signed vs unsigned differ on a word with the top bit set.
	m.A = [4]uint64{0xFFFFFFFFFFFFFFFF, 0, 0, 0} // -1 signed, max unsigned
	m.B = [4]uint64{1, 0, 0, 0}
	if got := call(t, ctx, UNSIGNED_COMPARE_A_WITH_B, 0, true, 0, 0); got != 1 {
		t.Fatalf("unsigned compare = %d, want 1", got)
	}
	if got := call(t, ctx, SIGNED_COMPARE_A_WITH_B, 0, true, 0, 0); got != -1 {
		t.Fatalf("signed compare = %d, want -1", got)
	}
}

func fillMessage(t *testing.T, m *machine.Machine, msg []byte) {
	t.Helper()
	for i := 0; i < len(msg); i++ {
		m.Data[i] = msg[i]
	}
}

func TestSHA256IntoB(t *testing.T) {
	ctx, _, _ := newCtx(16)
	msg := []byte("automated transaction test vec..")[:32]
	fillMessage(t, ctx.M, msg)

	call(t, ctx, SHA256_INTO_B, 2, false, 0, 32)

	sum := sha256.Sum256(msg)
	want := [4]uint64{
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
		binary.BigEndian.Uint64(sum[16:24]),
		binary.BigEndian.Uint64(sum[24:32]),
	}
	if ctx.M.B != want {
		t.Fatalf("B = %x, want %x", ctx.M.B, want)
	}

	if got := call(t, ctx, CHECK_SHA256_WITH_B, 2, true, 0, 32); got != 1 {
		t.Fatalf("CHECK_SHA256_WITH_B over same region = %d", got)
	}
	ctx.M.Data[0] ^= 1
	if got := call(t, ctx, CHECK_SHA256_WITH_B, 2, true, 0, 32); got != 0 {
		t.Fatalf("CHECK_SHA256_WITH_B after mutation = %d", got)
	}
}

func TestMD5IntoB(t *testing.T) {
	ctx, _, _ := newCtx(16)
	msg := []byte("sixteen byte msg")
	fillMessage(t, ctx.M, msg)

	call(t, ctx, MD5_INTO_B, 2, false, 0, int64(len(msg)))

	sum := md5.Sum(msg)
	if ctx.M.B[0] != binary.BigEndian.Uint64(sum[0:8]) || ctx.M.B[1] != binary.BigEndian.Uint64(sum[8:16]) {
		t.Fatalf("B1/B2 = %x %x", ctx.M.B[0], ctx.M.B[1])
	}
	if ctx.M.B[2] != 0 || ctx.M.B[3] != 0 {
		t.Fatalf("16-byte digest must zero B3/B4, got %x %x", ctx.M.B[2], ctx.M.B[3])
	}
	if got := call(t, ctx, CHECK_MD5_WITH_B, 2, true, 0, int64(len(msg))); got != 1 {
		t.Fatalf("CHECK_MD5_WITH_B = %d", got)
	}
}

func TestRMD160AndHASH160Layout(t *testing.T) {
	ctx, _, _ := newCtx(16)
	msg := []byte("ripemd layout probe")
	fillMessage(t, ctx.M, msg)

	call(t, ctx, RMD160_INTO_B, 2, false, 0, int64(len(msg)))

	h := ripemd160.New()
	h.Write(msg)
	sum := h.Sum(nil)
	if ctx.M.B[0] != binary.BigEndian.Uint64(sum[0:8]) || ctx.M.B[1] != binary.BigEndian.Uint64(sum[8:16]) {
		t.Fatalf("B1/B2 = %x %x", ctx.M.B[0], ctx.M.B[1])
	}
	wantB3 := uint64(binary.BigEndian.Uint32(sum[16:20])) << 32
	if ctx.M.B[2] != wantB3 {
		t.Fatalf("B3 = %x, want last 4 digest bytes in the high 32 bits (%x)", ctx.M.B[2], wantB3)
	}
	if ctx.M.B[3] != 0 {
		t.Fatalf("B4 = %x, want 0", ctx.M.B[3])
	}
	if got := call(t, ctx, CHECK_RMD160_WITH_B, 2, true, 0, int64(len(msg))); got != 1 {
		t.Fatalf("CHECK_RMD160_WITH_B = %d", got)
	}

	// HASH160 is RIPEMD160(SHA256(x)).
	call(t, ctx, HASH160_INTO_B, 2, false, 0, int64(len(msg)))
	inner := sha256.Sum256(msg)
	h2 := ripemd160.New()
	h2.Write(inner[:])
	outer := h2.Sum(nil)
	if ctx.M.B[0] != binary.BigEndian.Uint64(outer[0:8]) {
		t.Fatalf("HASH160 B1 = %x", ctx.M.B[0])
	}
	if got := call(t, ctx, CHECK_HASH160_WITH_B, 2, true, 0, int64(len(msg))); got != 1 {
		t.Fatalf("CHECK_HASH160_WITH_B = %d", got)
	}
}

func TestHashRangeOverflow(t *testing.T) {
	ctx, _, _ := newCtx(4)
	if _, err := Call(SHA256_INTO_B, 2, false, Data{Value1: 2, Value2: 32}, ctx); !errors.Is(err, atverrors.ErrInvalidAddress) {
		t.Fatalf("hash past data segment: %v", err)
	}
}

func TestBalancesAndPayments(t *testing.T) {
	ctx, ledger, _ := newCtx(8)
	m := ctx.M
	m.CurrentBalance = 1000
	m.PreviousBalance = 400
	ledger.SetBalance(1000)
	m.B = [4]uint64{0xAA, 0, 0, 0}
	payee := addrFromBWords(m.B)

	if got := call(t, ctx, GET_CURRENT_BALANCE, 0, true, 0, 0); got != 1000 {
		t.Fatalf("GET_CURRENT_BALANCE = %d", got)
	}
	if got := call(t, ctx, GET_PREVIOUS_BALANCE, 0, true, 0, 0); got != 400 {
		t.Fatalf("GET_PREVIOUS_BALANCE = %d", got)
	}

	// Partial payment leaves the machine running.
	call(t, ctx, PAY_TO_ADDRESS_IN_B, 1, false, 300, 0)
	if m.CurrentBalance != 700 || m.IsFinished {
		t.Fatalf("after partial pay: balance %d, finished %v", m.CurrentBalance, m.IsFinished)
	}
	if ledger.PaidTo(payee) != 300 {
		t.Fatalf("paid to B = %d", ledger.PaidTo(payee))
	}

	// Paying more than the balance is clamped; draining to zero finishes.
	call(t, ctx, PAY_TO_ADDRESS_IN_B, 1, false, 5000, 0)
	if m.CurrentBalance != 0 || !m.IsFinished {
		t.Fatalf("after draining pay: balance %d, finished %v", m.CurrentBalance, m.IsFinished)
	}
	if ledger.PaidTo(payee) != 1000 {
		t.Fatalf("total paid = %d", ledger.PaidTo(payee))
	}
}

func TestPayAllFinishes(t *testing.T) {
	ctx, ledger, _ := newCtx(8)
	ctx.M.CurrentBalance = 250
	ledger.SetBalance(250)
	ctx.M.B = [4]uint64{0xBB, 0, 0, 0}
	call(t, ctx, PAY_ALL_TO_ADDRESS_IN_B, 0, false, 0, 0)
	if ctx.M.CurrentBalance != 0 || !ctx.M.IsFinished {
		t.Fatalf("after PAY_ALL: balance %d, finished %v", ctx.M.CurrentBalance, ctx.M.IsFinished)
	}
	if ledger.PaidTo(addrFromBWords(ctx.M.B)) != 250 {
		t.Fatal("PAY_ALL amount wrong")
	}
}

func TestPayPreviousClampsAndFinishesOnZero(t *testing.T) {
	ctx, ledger, _ := newCtx(8)
	ctx.M.CurrentBalance = 100
	ctx.M.PreviousBalance = 600
	ledger.SetBalance(100)
	call(t, ctx, PAY_PREVIOUS_TO_ADDRESS_IN_B, 0, false, 0, 0)
	if ctx.M.CurrentBalance != 0 || !ctx.M.IsFinished {
		t.Fatalf("after PAY_PREVIOUS: balance %d, finished %v", ctx.M.CurrentBalance, ctx.M.IsFinished)
	}
}

func TestBlockQueriesAndTimestamps(t *testing.T) {
	ctx, ledger, _ := newCtx(8)
	ledger.AdvanceBlock([32]byte{1}, nil)
	ledger.AdvanceBlock([32]byte{2}, nil)

	if got := call(t, ctx, GET_BLOCK_TIMESTAMP, 0, true, 0, 0); got != int64(2)<<32 {
		t.Fatalf("GET_BLOCK_TIMESTAMP = %x", got)
	}
	if got := call(t, ctx, GET_PREVIOUS_BLOCK_TIMESTAMP, 0, true, 0, 0); got != int64(1)<<32 {
		t.Fatalf("GET_PREVIOUS_BLOCK_TIMESTAMP = %x", got)
	}
	ledger.SetCreationHeight(1)
	if got := call(t, ctx, GET_CREATION_TIMESTAMP, 0, true, 0, 0); got != int64(1)<<32 {
		t.Fatalf("GET_CREATION_TIMESTAMP = %x", got)
	}

	// No transactions yet: the handle in A stays zero and field queries
	// answer -1.
	call(t, ctx, PUT_TX_AFTER_TIMESTAMP_INTO_A, 1, false, 0, 0)
	if ctx.M.A[0] != 0 {
		t.Fatalf("tx handle = %x, want 0", ctx.M.A[0])
	}
	if got := call(t, ctx, GET_AMOUNT_FROM_TX_IN_A, 0, true, 0, 0); got != -1 {
		t.Fatalf("amount of missing tx = %d", got)
	}

	tx := host.Tx{Timestamp: 3<<32 | 1, Type: 0, Amount: 555, BlockHeight: 3}
	ledger.AdvanceBlock([32]byte{3}, []host.Tx{tx})
	call(t, ctx, PUT_TX_AFTER_TIMESTAMP_INTO_A, 1, false, int64(2)<<32, 0)
	if ctx.M.A[0] != tx.Timestamp {
		t.Fatalf("tx handle = %x", ctx.M.A[0])
	}
	if got := call(t, ctx, GET_AMOUNT_FROM_TX_IN_A, 0, true, 0, 0); got != 555 {
		t.Fatalf("amount = %d", got)
	}
	if got := call(t, ctx, GET_TIMESTAMP_FROM_TX_IN_A, 0, true, 0, 0); got != int64(tx.Timestamp) {
		t.Fatalf("timestamp = %x", got)
	}

	if got := call(t, ctx, ADD_MINUTES_TO_TIMESTAMP, 2, true, int64(3)<<32|1, 10); got>>32 <= 3 {
		t.Fatalf("ADD_MINUTES_TO_TIMESTAMP did not advance the height: %x", got)
	}
}

func TestPlatformPassthroughSkipsPreflight(t *testing.T) {
	ctx, _, _ := newCtx(8)
	// Any param/return shape is accepted in the passthrough range.
	if _, err := Call(Code(0x0512), 2, true, Data{Value1: 1, Value2: 2}, ctx); err != nil {
		t.Fatalf("passthrough: %v", err)
	}
}

func addrFromBWords(b [4]uint64) [32]byte {
	var addr [32]byte
	for i := 0; i < 4; i++ {
		w := b[i]
		for k := 7; k >= 0; k-- {
			addr[i*8+k] = byte(w)
			w >>= 8
		}
	}
	return addr
}
