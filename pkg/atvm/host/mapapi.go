package host

import (
	"sync"

	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

// Tx is a minimal transaction record the reference ledger tracks. Timestamp
// packs (block_height << 32) | tx_index_within_block.
type Tx struct {
	Timestamp   uint64
	Type        int64
	Amount      uint64
	Sender      [32]byte
	Message     [32]byte
	BlockHeight uint32
}

// Ledger is an in-memory chain stub: block hashes, a flat transaction log,
// and the balance of the one AT it serves. It is intentionally tiny — just enough to drive the
// round loop in tests and the CLI, not a consensus-grade chain.
type Ledger struct {
	mu sync.Mutex

	height       uint32
	blockHashes  map[uint32][32]byte
	txs          []Tx
	creationHeight uint32
	creator      [32]byte

	feePerStep       uint64
	maxStepsPerRound uint32
	opcodeSteps      map[byte]uint32

	balance    uint64
	randSeq    int64
	finished   bool
	fatalErr   error
	refund     uint64
	paidTo     map[[32]byte]uint64
	messagesTo map[[32]byte][][32]byte
}

// NewLedger constructs an empty ledger at block height 0 with the given fee
// schedule; opcodeSteps may be nil to charge one step per opcode (opcodes
// missing from a non-nil map also cost one step).
func NewLedger(feePerStep uint64, maxStepsPerRound uint32, opcodeSteps map[byte]uint32) *Ledger {
	return &Ledger{
		blockHashes:      make(map[uint32][32]byte),
		feePerStep:       feePerStep,
		maxStepsPerRound: maxStepsPerRound,
		opcodeSteps:      opcodeSteps,
		paidTo:           make(map[[32]byte]uint64),
		messagesTo:       make(map[[32]byte][][32]byte),
	}
}

// SetBalance sets the AT's tracked balance (used by callers to fund an AT).
func (l *Ledger) SetBalance(v uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = v
}

// Balance returns the AT's tracked balance.
func (l *Ledger) Balance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// AdvanceBlock appends a new block with the given hash and transactions, and
// makes it the current height.
func (l *Ledger) AdvanceBlock(hash [32]byte, txs []Tx) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height++
	l.blockHashes[l.height] = hash
	l.txs = append(l.txs, txs...)
}

// SetCreationHeight records the block height at which the owning AT was
// deployed — used by CreationBlockHeight.
func (l *Ledger) SetCreationHeight(h uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creationHeight = h
}

// Fatal reports whether OnFatalError fired, and with what error.
func (l *Ledger) Fatal() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fatalErr != nil, l.fatalErr
}

// Finished reports whether OnFinished fired, and the refunded amount.
func (l *Ledger) Finished() (bool, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished, l.refund
}

// PaidTo returns the cumulative amount paid to the given 32-byte address.
func (l *Ledger) PaidTo(addr [32]byte) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paidTo[addr]
}

// MapAPI adapts a Ledger to the host.API interface required by the round
// driver. One MapAPI instance drives exactly one AT's machine, the same way
// an executor holds one backing accounts database per replay session.
type MapAPI struct {
	Ledger *Ledger
}

// NewMapAPI wraps ledger as a host.API.
func NewMapAPI(ledger *Ledger) *MapAPI {
	return &MapAPI{Ledger: ledger}
}

var _ API = (*MapAPI)(nil)

func (a *MapAPI) CurrentBlockHeight() uint32 {
	a.Ledger.mu.Lock()
	defer a.Ledger.mu.Unlock()
	return a.Ledger.height
}

func (a *MapAPI) CurrentBalance(m *machine.Machine) uint64 {
	return a.Ledger.Balance()
}

func (a *MapAPI) PreviousBlockHeight() uint32 {
	h := a.CurrentBlockHeight()
	if h == 0 {
		return 0
	}
	return h - 1
}

func (a *MapAPI) CreationBlockHeight(m *machine.Machine) uint32 {
	a.Ledger.mu.Lock()
	defer a.Ledger.mu.Unlock()
	return a.Ledger.creationHeight
}

func (a *MapAPI) PutPreviousBlockHashIntoA(m *machine.Machine) {
	a.Ledger.mu.Lock()
	hash := a.Ledger.blockHashes[a.Ledger.height]
	a.Ledger.mu.Unlock()
	for i := 0; i < 4; i++ {
		var w uint64
		for k := 0; k < 8; k++ {
			w = w<<8 | uint64(hash[i*8+k])
		}
		m.A[i] = w
	}
}

func (a *MapAPI) findTxAfter(timestamp uint64) (Tx, bool) {
	a.Ledger.mu.Lock()
	defer a.Ledger.mu.Unlock()
	for _, tx := range a.Ledger.txs {
		if tx.Timestamp > timestamp {
			return tx, true
		}
	}
	return Tx{}, false
}

func encodeTxHandle(tx Tx, ok bool) uint64 {
	if !ok {
		return 0
	}
	return tx.Timestamp
}

func (a *MapAPI) txForHandle(handle uint64) (Tx, bool) {
	if handle == 0 {
		return Tx{}, false
	}
	a.Ledger.mu.Lock()
	defer a.Ledger.mu.Unlock()
	for _, tx := range a.Ledger.txs {
		if tx.Timestamp == handle {
			return tx, true
		}
	}
	return Tx{}, false
}

func (a *MapAPI) PutTransactionAfterTimestampIntoA(timestamp uint64, m *machine.Machine) {
	tx, ok := a.findTxAfter(timestamp)
	handle := encodeTxHandle(tx, ok)
	m.A[0] = handle
	m.A[1], m.A[2], m.A[3] = 0, 0, 0
}

func (a *MapAPI) TypeFromTxInA(m *machine.Machine) int64 {
	tx, ok := a.txForHandle(m.A[0])
	if !ok {
		return -1
	}
	return tx.Type
}

func (a *MapAPI) AmountFromTxInA(m *machine.Machine) int64 {
	tx, ok := a.txForHandle(m.A[0])
	if !ok {
		return -1
	}
	return int64(tx.Amount)
}

func (a *MapAPI) TimestampFromTxInA(m *machine.Machine) int64 {
	tx, ok := a.txForHandle(m.A[0])
	if !ok {
		return -1
	}
	return int64(tx.Timestamp)
}

// GenerateRandomUsingTxInA never defers in this reference implementation
// (there is no multi-block entropy gathering) — it derives a deterministic
// pseudo-random value from a monotonic counter so tests stay reproducible.
func (a *MapAPI) GenerateRandomUsingTxInA(m *machine.Machine) int64 {
	a.Ledger.mu.Lock()
	defer a.Ledger.mu.Unlock()
	a.Ledger.randSeq++
	return a.Ledger.randSeq
}

func (a *MapAPI) PutMessageFromTxInAIntoB(m *machine.Machine) {
	tx, ok := a.txForHandle(m.A[0])
	if !ok {
		m.B[0], m.B[1], m.B[2], m.B[3] = 0, 0, 0, 0
		return
	}
	for i := 0; i < 4; i++ {
		var w uint64
		for k := 0; k < 8; k++ {
			w = w<<8 | uint64(tx.Message[i*8+k])
		}
		m.B[i] = w
	}
}

func (a *MapAPI) PutAddressFromTxInAIntoB(m *machine.Machine) {
	tx, ok := a.txForHandle(m.A[0])
	if !ok {
		m.B[0], m.B[1], m.B[2], m.B[3] = 0, 0, 0, 0
		return
	}
	for i := 0; i < 4; i++ {
		var w uint64
		for k := 0; k < 8; k++ {
			w = w<<8 | uint64(tx.Sender[i*8+k])
		}
		m.B[i] = w
	}
}

func (a *MapAPI) PutCreatorIntoB(m *machine.Machine) {
	a.Ledger.mu.Lock()
	creator := a.Ledger.creator
	a.Ledger.mu.Unlock()
	for i := 0; i < 4; i++ {
		var w uint64
		for k := 0; k < 8; k++ {
			w = w<<8 | uint64(creator[i*8+k])
		}
		m.B[i] = w
	}
}

func addrFromB(m *machine.Machine) [32]byte {
	var addr [32]byte
	for i := 0; i < 4; i++ {
		w := m.B[i]
		for k := 7; k >= 0; k-- {
			addr[i*8+k] = byte(w)
			w >>= 8
		}
	}
	return addr
}

func (a *MapAPI) PayAmountToB(amount uint64, m *machine.Machine) {
	addr := addrFromB(m)
	a.Ledger.mu.Lock()
	a.Ledger.paidTo[addr] += amount
	a.Ledger.balance -= amount
	a.Ledger.mu.Unlock()
}

func (a *MapAPI) MessageAToB(m *machine.Machine) {
	addr := addrFromB(m)
	var msg [32]byte
	for i := 0; i < 4; i++ {
		w := m.A[i]
		for k := 7; k >= 0; k-- {
			msg[i*8+k] = byte(w)
			w >>= 8
		}
	}
	a.Ledger.mu.Lock()
	a.Ledger.messagesTo[addr] = append(a.Ledger.messagesTo[addr], msg)
	a.Ledger.mu.Unlock()
}

func (a *MapAPI) AddMinutesToTimestamp(timestamp uint64, minutes uint32) int64 {
	blockHeight := uint32(timestamp >> 32)
	txIndex := uint32(timestamp)
	blocksPerMinute := uint32(1) // reference-only approximation
	return int64(uint64(blockHeight+minutes*blocksPerMinute)<<32 | uint64(txIndex))
}

func (a *MapAPI) FeePerStep() uint64 {
	return a.Ledger.feePerStep
}

func (a *MapAPI) MaxStepsPerRound() uint32 {
	return a.Ledger.maxStepsPerRound
}

func (a *MapAPI) OpcodeSteps(opcode byte) uint32 {
	if a.Ledger.opcodeSteps != nil {
		if s, ok := a.Ledger.opcodeSteps[opcode]; ok {
			return s
		}
	}
	return 1
}

func (a *MapAPI) OnFatalError(m *machine.Machine, err error) {
	a.Ledger.mu.Lock()
	a.Ledger.fatalErr = err
	a.Ledger.mu.Unlock()
}

func (a *MapAPI) OnFinished(remainingBalance uint64, m *machine.Machine) {
	a.Ledger.mu.Lock()
	a.Ledger.finished = true
	a.Ledger.refund = remainingBalance
	a.Ledger.balance = 0
	a.Ledger.mu.Unlock()
}

// PlatformSpecificPostCheckExecute has nothing platform-specific to do in
// this reference implementation; it simply returns zero.
func (a *MapAPI) PlatformSpecificPostCheckExecute(value1, value2 int64, m *machine.Machine, rawFunctionCode uint16) (int64, error) {
	return 0, nil
}
