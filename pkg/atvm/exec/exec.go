package exec

import (
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/function"
	"github.com/ciyamat/atvm/pkg/atvm/host"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
	"github.com/ciyamat/atvm/pkg/atvm/opcode"
	"github.com/ciyamat/atvm/pkg/atvmlog"
)

// executeOpcode decodes and runs exactly one instruction at m.PC, advancing
// the program counter past its operands (and further still for taken
// branches and jumps). It is the state-changing half of instruction
// dispatch; the metering and error-trapping that wraps each call lives in
// driver.go.
func executeOpcode(m *machine.Machine, api host.API, log atvmlog.Logger) error {
	pcStart := m.PC
	d := newDecoder(m)

	opByte, err := d.readOpcodeByte()
	if err != nil {
		return err
	}
	desc, err := opcode.Lookup(opByte)
	if err != nil {
		return err
	}

	switch desc.Code {
	case opcode.NOP:
		// no operands, no effect

	case opcode.STP_IMD:
		m.IsStopped = true

	case opcode.SLP_DAT:
		addr, err := d.readDataAddr()
		if err != nil {
			return err
		}
		blocks, err := m.DataCell(addr)
		if err != nil {
			return err
		}
		target := int32(api.CurrentBlockHeight()) + int32(blocks)
		m.IsSleeping = true
		m.SleepUntilHeight = &target

	case opcode.FIN_IMD:
		m.IsFinished = true

	case opcode.STZ:
		addr, err := d.readDataAddr()
		if err != nil {
			return err
		}
		v, err := m.DataCell(addr)
		if err != nil {
			return err
		}
		if v == 0 {
			m.IsStopped = true
		}

	case opcode.FIZ:
		addr, err := d.readDataAddr()
		if err != nil {
			return err
		}
		v, err := m.DataCell(addr)
		if err != nil {
			return err
		}
		if v == 0 {
			m.IsFinished = true
		}

	case opcode.ERR_ADR:
		addr, isSentinel, err := d.readCodeAddrOrClearSentinel()
		if err != nil {
			return err
		}
		if isSentinel {
			m.OnErrorAddress = nil
		} else {
			a := int32(addr)
			m.OnErrorAddress = &a
		}

	case opcode.SET_PCS:
		m.OnStopAddress = int32(d.cur.Pos())

	case opcode.JMP_ADR:
		addr, err := d.readCodeAddr()
		if err != nil {
			return err
		}
		m.PC = int32(addr)
		return nil

	case opcode.JMP_SUB:
		addr, err := d.readCodeAddr()
		if err != nil {
			return err
		}
		if err := m.PushCallStack(int32(d.cur.Pos())); err != nil {
			return err
		}
		m.PC = int32(addr)
		return nil

	case opcode.RET_SUB:
		ret, err := m.PopCallStack()
		if err != nil {
			return err
		}
		m.PC = ret
		return nil

	case opcode.SET_VAL:
		addr, err := d.readDataAddr()
		if err != nil {
			return err
		}
		val, err := d.readValue()
		if err != nil {
			return err
		}
		if err := m.SetDataCell(addr, val); err != nil {
			return err
		}

	case opcode.SET_DAT:
		dest, src, err := d.readDataAddr2()
		if err != nil {
			return err
		}
		v, err := m.DataCell(src)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(dest, v); err != nil {
			return err
		}

	case opcode.CLR_DAT:
		dest, err := d.readDataAddr()
		if err != nil {
			return err
		}
		if err := m.SetDataCell(dest, 0); err != nil {
			return err
		}

	case opcode.IND_DAT:
		ptr, src, err := d.readDataAddr2()
		if err != nil {
			return err
		}
		target, err := indirect(m, ptr)
		if err != nil {
			return err
		}
		v, err := m.DataCell(src)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(target, v); err != nil {
			return err
		}

	case opcode.IDX_DAT:
		idx1, idx2, src, err := d.readDataAddr3()
		if err != nil {
			return err
		}
		target, err := indexed(m, idx1, idx2)
		if err != nil {
			return err
		}
		v, err := m.DataCell(src)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(target, v); err != nil {
			return err
		}

	case opcode.SET_IND:
		dest, ptr, err := d.readDataAddr2()
		if err != nil {
			return err
		}
		src, err := indirect(m, ptr)
		if err != nil {
			return err
		}
		v, err := m.DataCell(src)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(dest, v); err != nil {
			return err
		}

	case opcode.SET_IDX:
		dest, idx1, idx2, err := d.readDataAddr3()
		if err != nil {
			return err
		}
		src, err := indexed(m, idx1, idx2)
		if err != nil {
			return err
		}
		v, err := m.DataCell(src)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(dest, v); err != nil {
			return err
		}

	case opcode.INC_DAT:
		if err := applyUnary(m, d, func(v uint64) uint64 { return v + 1 }); err != nil {
			return err
		}

	case opcode.DEC_DAT:
		if err := applyUnary(m, d, func(v uint64) uint64 { return v - 1 }); err != nil {
			return err
		}

	case opcode.NOT_DAT:
		if err := applyUnary(m, d, func(v uint64) uint64 { return ^v }); err != nil {
			return err
		}

	case opcode.ADD_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) { return a + b, nil }); err != nil {
			return err
		}

	case opcode.SUB_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) { return a - b, nil }); err != nil {
			return err
		}

	case opcode.MUL_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) { return a * b, nil }); err != nil {
			return err
		}

	case opcode.DIV_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, atverrors.ErrArithmetic
			}
			return uint64(int64(a) / int64(b)), nil
		}); err != nil {
			return err
		}

	case opcode.MOD_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, atverrors.ErrArithmetic
			}
			return uint64(int64(a) % int64(b)), nil
		}); err != nil {
			return err
		}

	case opcode.BOR_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) { return a | b, nil }); err != nil {
			return err
		}

	case opcode.AND_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) { return a & b, nil }); err != nil {
			return err
		}

	case opcode.XOR_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) { return a ^ b, nil }); err != nil {
			return err
		}

	case opcode.SHL_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) {
			if b >= 64 {
				return 0, nil
			}
			return a << b, nil
		}); err != nil {
			return err
		}

	case opcode.SHR_DAT:
		if err := applyBinary(m, d, func(a, b uint64) (uint64, error) {
			if b >= 64 {
				return 0, nil
			}
			return a >> b, nil
		}); err != nil {
			return err
		}

	case opcode.BZR, opcode.BNZ:
		addr, offset, err := d.readDataAddrOffset()
		if err != nil {
			return err
		}
		v, err := m.DataCell(addr)
		if err != nil {
			return err
		}
		take := v == 0
		if desc.Code == opcode.BNZ {
			take = !take
		}
		if take {
			m.PC = pcStart + int32(offset)
			return nil
		}

	case opcode.BGT, opcode.BLT, opcode.BGE, opcode.BLE, opcode.BEQ, opcode.BNE:
		a1, a2, offset, err := d.readDataAddr2Offset()
		if err != nil {
			return err
		}
		v1, err := m.DataCell(a1)
		if err != nil {
			return err
		}
		v2, err := m.DataCell(a2)
		if err != nil {
			return err
		}
		if branchTaken(desc.Code, int64(v1), int64(v2)) {
			m.PC = pcStart + int32(offset)
			return nil
		}

	case opcode.PSH_DAT:
		addr, err := d.readDataAddr()
		if err != nil {
			return err
		}
		v, err := m.DataCell(addr)
		if err != nil {
			return err
		}
		if err := m.PushUserStack(v); err != nil {
			return err
		}

	case opcode.POP_DAT:
		addr, err := d.readDataAddr()
		if err != nil {
			return err
		}
		v, err := m.PopUserStack()
		if err != nil {
			return err
		}
		if err := m.SetDataCell(addr, v); err != nil {
			return err
		}

	case opcode.EXT_FUN:
		code, err := d.readFuncCode()
		if err != nil {
			return err
		}
		if _, err := callFunction(m, api, log, function.Code(code), 0, false, 0, 0); err != nil {
			return err
		}

	case opcode.EXT_FUN_DAT:
		code, err := d.readFuncCode()
		if err != nil {
			return err
		}
		v1, err := d.readDataAddrValue()
		if err != nil {
			return err
		}
		if _, err := callFunction(m, api, log, function.Code(code), 1, false, v1, 0); err != nil {
			return err
		}

	case opcode.EXT_FUN_DAT_2:
		code, err := d.readFuncCode()
		if err != nil {
			return err
		}
		v1, v2, err := d.readDataAddrValue2()
		if err != nil {
			return err
		}
		if _, err := callFunction(m, api, log, function.Code(code), 2, false, v1, v2); err != nil {
			return err
		}

	case opcode.EXT_FUN_RET:
		dest, err := d.readDataAddr()
		if err != nil {
			return err
		}
		code, err := d.readFuncCode()
		if err != nil {
			return err
		}
		wasSleeping := m.IsSleeping
		result, err := callFunction(m, api, log, function.Code(code), 0, true, 0, 0)
		if err != nil {
			return err
		}
		// GENERATE_RANDOM_USING_TX_IN_A may defer by setting is_sleeping;
		// when it does, rewind PC to the start of this instruction (its
		// full 1+4+2 byte width) so the call re-executes next round,
		// instead of committing dest and advancing.
		if !wasSleeping && m.IsSleeping {
			m.PC = pcStart
			return nil
		}
		if err := m.SetDataCell(dest, uint64(result)); err != nil {
			return err
		}

	case opcode.EXT_FUN_RET_DAT:
		dest, err := d.readDataAddr()
		if err != nil {
			return err
		}
		code, err := d.readFuncCode()
		if err != nil {
			return err
		}
		v1, err := d.readDataAddrValue()
		if err != nil {
			return err
		}
		result, err := callFunction(m, api, log, function.Code(code), 1, true, v1, 0)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(dest, uint64(result)); err != nil {
			return err
		}

	case opcode.EXT_FUN_RET_DAT_2:
		dest, err := d.readDataAddr()
		if err != nil {
			return err
		}
		code, err := d.readFuncCode()
		if err != nil {
			return err
		}
		v1, v2, err := d.readDataAddrValue2()
		if err != nil {
			return err
		}
		result, err := callFunction(m, api, log, function.Code(code), 2, true, v1, v2)
		if err != nil {
			return err
		}
		if err := m.SetDataCell(dest, uint64(result)); err != nil {
			return err
		}

	default:
		return atverrors.ErrIllegalOperation
	}

	m.PC = int32(d.cur.Pos())
	return nil
}

func callFunction(m *machine.Machine, api host.API, log atvmlog.Logger, code function.Code, paramCount int, returnsValue bool, v1, v2 int64) (int64, error) {
	ctx := &function.Context{M: m, API: api, Log: log}
	return function.Call(code, paramCount, returnsValue, function.Data{Value1: v1, Value2: v2}, ctx)
}

// indirect resolves IND_DAT/SET_IND's "$N" pointer indirection:
// the value at data cell ptr names the real address.
func indirect(m *machine.Machine, ptr int64) (int64, error) {
	v, err := m.DataCell(ptr)
	if err != nil {
		return 0, err
	}
	addr := int64(v)
	if err := checkDataAddr(m, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

// indexed resolves IDX_DAT/SET_IDX's two-index addressing: data[idx1]+data[idx2].
func indexed(m *machine.Machine, idx1, idx2 int64) (int64, error) {
	v1, err := m.DataCell(idx1)
	if err != nil {
		return 0, err
	}
	v2, err := m.DataCell(idx2)
	if err != nil {
		return 0, err
	}
	addr := int64(v1) + int64(v2)
	if err := checkDataAddr(m, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

func checkDataAddr(m *machine.Machine, addr int64) error {
	if addr < 0 || addr >= m.NumDataCells() {
		return atverrors.ErrInvalidAddress
	}
	return nil
}

func applyUnary(m *machine.Machine, d *decoder, fn func(uint64) uint64) error {
	addr, err := d.readDataAddr()
	if err != nil {
		return err
	}
	v, err := m.DataCell(addr)
	if err != nil {
		return err
	}
	return m.SetDataCell(addr, fn(v))
}

func applyBinary(m *machine.Machine, d *decoder, fn func(a, b uint64) (uint64, error)) error {
	dest, src, err := d.readDataAddr2()
	if err != nil {
		return err
	}
	a, err := m.DataCell(dest)
	if err != nil {
		return err
	}
	b, err := m.DataCell(src)
	if err != nil {
		return err
	}
	result, err := fn(a, b)
	if err != nil {
		return err
	}
	return m.SetDataCell(dest, result)
}

func branchTaken(code opcode.Code, v1, v2 int64) bool {
	switch code {
	case opcode.BGT:
		return v1 > v2
	case opcode.BLT:
		return v1 < v2
	case opcode.BGE:
		return v1 >= v2
	case opcode.BLE:
		return v1 <= v2
	case opcode.BEQ:
		return v1 == v2
	case opcode.BNE:
		return v1 != v2
	default:
		return false
	}
}
