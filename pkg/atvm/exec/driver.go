package exec

import (
	"github.com/ciyamat/atvm/pkg/atvm/atverrors"
	"github.com/ciyamat/atvm/pkg/atvm/host"
	"github.com/ciyamat/atvm/pkg/atvm/machine"
	"github.com/ciyamat/atvm/pkg/atvmlog"
)

// RunRound executes one block round for m against the given host API:
// three pre-round gates that can return without executing a single opcode,
// a reset step that clears sleep/stop/freeze state once the gates are
// passed, a metered main loop that charges fee_per_step per opcode and
// traps errors via on_error_address, and a post-round disposition step.
func RunRound(m *machine.Machine, api host.API, log atvmlog.Logger) {
	if m.IsFinished {
		return
	}

	m.CurrentBlockHeight = api.CurrentBlockHeight()
	m.CurrentBalance = api.CurrentBalance(m)

	if m.IsFrozen {
		threshold := uint64(0)
		if m.FrozenBalance != nil {
			threshold = uint64(*m.FrozenBalance)
		}
		if m.CurrentBalance <= threshold {
			return
		}
	}

	if m.IsSleeping && m.SleepUntilHeight != nil && m.CurrentBlockHeight < uint32(*m.SleepUntilHeight) {
		return
	}

	if m.IsSleeping {
		m.IsFirstOpcodeAfterSleeping = true
	}
	m.IsSleeping = false
	m.SleepUntilHeight = nil
	m.IsStopped = false
	m.IsFrozen = false
	m.FrozenBalance = nil
	m.Steps = 0

	maxSteps := api.MaxStepsPerRound()
	feePerStep := api.FeePerStep()

	for !m.IsSleeping && !m.IsStopped && !m.IsFrozen && !m.IsFinished {
		opByte, ok := peekOpcode(m)
		if !ok {
			m.IsFinished = true
			m.HadFatalError = true
			api.OnFatalError(m, atverrors.ErrCodeSegment)
			break
		}

		s := api.OpcodeSteps(opByte)
		if m.Steps+s > maxSteps {
			m.IsSleeping = true
			break
		}

		fee := uint64(s) * feePerStep
		if m.CurrentBalance < fee {
			m.IsFrozen = true
			fb := int64(m.CurrentBalance)
			m.FrozenBalance = &fb
			break
		}

		m.CurrentBalance -= fee
		m.Steps += s

		if err := executeOpcode(m, api, log); err != nil {
			if m.OnErrorAddress != nil {
				m.PC = *m.OnErrorAddress
			} else {
				m.IsFinished = true
				m.HadFatalError = true
				api.OnFatalError(m, err)
				break
			}
		}

		m.IsFirstOpcodeAfterSleeping = false
	}

	if m.IsStopped {
		m.PC = m.OnStopAddress
	}
	if m.IsFinished {
		api.OnFinished(m.CurrentBalance, m)
		m.CurrentBalance = 0
	}
	m.PreviousBalance = m.CurrentBalance
}

// peekOpcode reports the opcode byte at the current PC without consuming
// it, used only to ask the host for its per-opcode step cost before
// committing to execute it.
func peekOpcode(m *machine.Machine) (byte, bool) {
	if m.PC < 0 || int(m.PC) >= len(m.Code) {
		return 0, false
	}
	return m.Code[m.PC], true
}
