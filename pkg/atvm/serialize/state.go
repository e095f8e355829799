// State-bytes serialization: the byte-exact round trip of a machine's
// persistent fields between rounds. Both the field order and the flags-word
// bit order are part of the wire contract; code bytes are invariant and are
// not part of the state-bytes image — they are stored separately and
// supplied on restore.
package serialize

import (
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/codec"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
)

// Flags-word bit positions. Flags are pushed in a fixed order (is_sleeping
// first, has_non_zero_B last) with each push shifting the word left, so the
// first-pushed flag occupies the highest used bit and the last-pushed flag
// bit 0.
const (
	flagHasNonZeroB = iota
	flagHasNonZeroA
	flagHasFrozenBalance
	flagHasSleepUntilHeight
	flagHasOnErrorAddress
	flagFrozen
	flagFatalError
	flagFinished
	flagStopped
	flagSleeping
)

// ToStateBytes serializes m's persistent fields into the wire layout a host
// parks between rounds: header, data segment, both stacks' in-use tails,
// program counter, on-stop address, (version>=2) previous balance, the
// flags word, and the optional trailing fields the flags word selects.
func ToStateBytes(m *machine.Machine) []byte {
	be := machine.BigEndianHeader(m.Version)

	h := Header{
		Version:             m.Version,
		NumCodePages:        uint16(m.NumCodePages),
		NumDataPages:        uint16(m.NumDataPages),
		NumCallStackPages:   uint16(m.NumCallStackPages),
		NumUserStackPages:   uint16(m.NumUserStackPages),
		MinActivationAmount: m.MinActivationAmount,
	}

	var flags uint32
	setFlag := func(bit int, on bool) {
		if on {
			flags |= 1 << uint(bit)
		}
	}
	setFlag(flagSleeping, m.IsSleeping)
	setFlag(flagStopped, m.IsStopped)
	setFlag(flagFinished, m.IsFinished)
	setFlag(flagFatalError, m.HadFatalError)
	setFlag(flagFrozen, m.IsFrozen)
	setFlag(flagHasOnErrorAddress, m.OnErrorAddress != nil)
	setFlag(flagHasSleepUntilHeight, m.SleepUntilHeight != nil)
	setFlag(flagHasFrozenBalance, m.FrozenBalance != nil)
	setFlag(flagHasNonZeroA, !m.ZeroA())
	setFlag(flagHasNonZeroB, !m.ZeroB())

	callUsed := m.CallStackUsed()
	userUsed := m.UserStackUsed()

	out := make([]byte, 0, 128+len(m.Data)+len(callUsed)+len(userUsed))
	out = append(out, encodeHeader(h)...)
	out = append(out, m.Data...)
	out = append(out, putU32(be, uint32(len(callUsed)))...)
	out = append(out, callUsed...)
	out = append(out, putU32(be, uint32(len(userUsed)))...)
	out = append(out, userUsed...)
	out = append(out, putI32(be, m.PC)...)
	out = append(out, putI32(be, m.OnStopAddress)...)
	if m.Version != 1 {
		out = append(out, putI64(be, int64(m.PreviousBalance))...)
	}
	out = append(out, putU32(be, flags)...)
	if m.OnErrorAddress != nil {
		out = append(out, putI32(be, *m.OnErrorAddress)...)
	}
	if m.SleepUntilHeight != nil {
		out = append(out, putI32(be, *m.SleepUntilHeight)...)
	}
	if m.FrozenBalance != nil {
		out = append(out, putI64(be, *m.FrozenBalance)...)
	}
	if !m.ZeroA() {
		for _, w := range m.A {
			out = append(out, putI64(be, int64(w))...)
		}
	}
	if !m.ZeroB() {
		for _, w := range m.B {
			out = append(out, putI64(be, int64(w))...)
		}
	}
	return out
}

// FromStateBytes parses a state-bytes image (as produced by ToStateBytes)
// and reconstructs a Machine, given the invariant code bytes separately.
func FromStateBytes(b []byte, code []byte) (*machine.Machine, error) {
	h, hlen, err := decodeHeader(b)
	if err != nil {
		return nil, err
	}
	be := machine.BigEndianHeader(h.Version)
	ps := machine.PageSizesForVersion(h.Version)

	dataLen := int(h.NumDataPages) * ps.Data
	cur := hlen
	if cur+dataLen > len(b) {
		return nil, atverrors.ErrCodeSegment
	}
	data := make([]byte, dataLen)
	copy(data, b[cur:cur+dataLen])
	cur += dataLen

	m := machine.New(h.Version, int(h.NumCodePages), int(h.NumDataPages), int(h.NumCallStackPages), int(h.NumUserStackPages), h.MinActivationAmount, code, data)
	// New installs the activation freeze for min_activation_amount > 0; the
	// flags word below is the sole authority on restore.
	m.IsFrozen = false
	m.FrozenBalance = nil

	callLen, cur2, err := readU32(b, cur, be)
	if err != nil {
		return nil, err
	}
	cur = cur2
	if cur+int(callLen) > len(b) {
		return nil, atverrors.ErrCodeSegment
	}
	if err := m.RestoreCallStack(b[cur : cur+int(callLen)]); err != nil {
		return nil, err
	}
	cur += int(callLen)

	userLen, cur3, err := readU32(b, cur, be)
	if err != nil {
		return nil, err
	}
	cur = cur3
	if cur+int(userLen) > len(b) {
		return nil, atverrors.ErrCodeSegment
	}
	if err := m.RestoreUserStack(b[cur : cur+int(userLen)]); err != nil {
		return nil, err
	}
	cur += int(userLen)

	pc, cur, err := readI32(b, cur, be)
	if err != nil {
		return nil, err
	}
	m.PC = pc

	onStop, cur, err := readI32(b, cur, be)
	if err != nil {
		return nil, err
	}
	m.OnStopAddress = onStop

	if h.Version != 1 {
		prevBal, cur2b, err := readI64(b, cur, be)
		if err != nil {
			return nil, err
		}
		cur = cur2b
		m.PreviousBalance = uint64(prevBal)
	}

	flags, cur, err := readU32(b, cur, be)
	if err != nil {
		return nil, err
	}
	hasFlag := func(bit int) bool { return flags&(1<<uint(bit)) != 0 }
	m.IsSleeping = hasFlag(flagSleeping)
	m.IsStopped = hasFlag(flagStopped)
	m.IsFinished = hasFlag(flagFinished)
	m.HadFatalError = hasFlag(flagFatalError)
	m.IsFrozen = hasFlag(flagFrozen)

	if hasFlag(flagHasOnErrorAddress) {
		v, cur2c, err := readI32(b, cur, be)
		if err != nil {
			return nil, err
		}
		cur = cur2c
		m.OnErrorAddress = &v
	}
	if hasFlag(flagHasSleepUntilHeight) {
		v, cur2d, err := readI32(b, cur, be)
		if err != nil {
			return nil, err
		}
		cur = cur2d
		m.SleepUntilHeight = &v
	}
	if hasFlag(flagHasFrozenBalance) {
		v, cur2e, err := readI64(b, cur, be)
		if err != nil {
			return nil, err
		}
		cur = cur2e
		m.FrozenBalance = &v
	}
	if hasFlag(flagHasNonZeroA) {
		for i := 0; i < 4; i++ {
			v, curN, err := readI64(b, cur, be)
			if err != nil {
				return nil, err
			}
			cur = curN
			m.A[i] = uint64(v)
		}
	}
	if hasFlag(flagHasNonZeroB) {
		for i := 0; i < 4; i++ {
			v, curN, err := readI64(b, cur, be)
			if err != nil {
				return nil, err
			}
			cur = curN
			m.B[i] = uint64(v)
		}
	}
	return m, nil
}

// ExtractDataBytes returns the data-segment bytes alone from a state-bytes
// image, without constructing a Machine or needing code bytes — for
// external tooling that only needs to inspect payout-relevant state.
func ExtractDataBytes(b []byte) ([]byte, error) {
	h, hlen, err := decodeHeader(b)
	if err != nil {
		return nil, err
	}
	ps := machine.PageSizesForVersion(h.Version)
	dataLen := int(h.NumDataPages) * ps.Data
	if hlen+dataLen > len(b) {
		return nil, atverrors.ErrCodeSegment
	}
	out := make([]byte, dataLen)
	copy(out, b[hlen:hlen+dataLen])
	return out, nil
}

func putU32(be bool, v uint32) []byte {
	if be {
		return codec.PutUint32BE(v)
	}
	b := make([]byte, 4)
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	return b
}

func putI32(be bool, v int32) []byte {
	if be {
		return codec.PutInt32BE(v)
	}
	return putU32(false, uint32(v))
}

func putI64(be bool, v int64) []byte {
	if be {
		return codec.PutInt64BE(v)
	}
	b := make([]byte, 8)
	u := uint64(v)
	for k := 0; k < 8; k++ {
		b[k] = byte(u)
		u >>= 8
	}
	return b
}

func readU32(b []byte, off int, be bool) (uint32, int, error) {
	if off+4 > len(b) {
		return 0, 0, atverrors.ErrCodeSegment
	}
	var v uint32
	if be {
		v = uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
	} else {
		v = uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
	}
	return v, off + 4, nil
}

func readI32(b []byte, off int, be bool) (int32, int, error) {
	v, next, err := readU32(b, off, be)
	return int32(v), next, err
}

func readI64(b []byte, off int, be bool) (int64, int, error) {
	if off+8 > len(b) {
		return 0, 0, atverrors.ErrCodeSegment
	}
	var v uint64
	if be {
		for k := 0; k < 8; k++ {
			v = v<<8 | uint64(b[off+k])
		}
	} else {
		for k := 7; k >= 0; k-- {
			v = v<<8 | uint64(b[off+k])
		}
	}
	return int64(v), off + 8, nil
}
