// Package host defines the API boundary the VM core calls into and ships
// MapAPI, an in-memory reference implementation used by the CLI and the
// test suite. MapAPI is explicitly not part of the consensus-critical core
// — it exists only so the round driver in pkg/atvm/exec has something real
// to run end to end against, the way an executor exercises a virtual
// machine against a backing accounts database.
package host

import "github.com/ciyamat/atvm/pkg/atvm/machine"

// API is the full set of host-provided operations the VM calls during
// execution.
type API interface {
	CurrentBlockHeight() uint32
	CurrentBalance(m *machine.Machine) uint64
	PreviousBlockHeight() uint32
	CreationBlockHeight(m *machine.Machine) uint32

	PutPreviousBlockHashIntoA(m *machine.Machine)
	PutTransactionAfterTimestampIntoA(timestamp uint64, m *machine.Machine)
	TypeFromTxInA(m *machine.Machine) int64
	AmountFromTxInA(m *machine.Machine) int64
	TimestampFromTxInA(m *machine.Machine) int64
	GenerateRandomUsingTxInA(m *machine.Machine) int64
	PutMessageFromTxInAIntoB(m *machine.Machine)
	PutAddressFromTxInAIntoB(m *machine.Machine)
	PutCreatorIntoB(m *machine.Machine)

	PayAmountToB(amount uint64, m *machine.Machine)
	MessageAToB(m *machine.Machine)
	AddMinutesToTimestamp(timestamp uint64, minutes uint32) int64

	FeePerStep() uint64
	MaxStepsPerRound() uint32
	OpcodeSteps(opcode byte) uint32

	OnFatalError(m *machine.Machine, err error)
	OnFinished(remainingBalance uint64, m *machine.Machine)

	// PlatformSpecificPostCheckExecute handles the 0x0500-0x06FF passthrough
	// range; rawFunctionCode carries the full 16-bit function code.
	PlatformSpecificPostCheckExecute(value1, value2 int64, m *machine.Machine, rawFunctionCode uint16) (int64, error)
}
