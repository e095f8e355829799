// Package atverrors defines the error kinds the automated-transaction VM can
// raise during decode or execution, and the VMError wrapper the round driver
// uses to recover a faulting opcode's position.
package atverrors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, one per fatal-error category.
var (
	// ErrIllegalOperation covers unknown opcode bytes, unknown function
	// codes, and function calls whose declared param/return shape doesn't
	// match the descriptor.
	ErrIllegalOperation = errors.New("illegal operation")

	// ErrCodeSegment is raised when the decoder runs out of code bytes
	// while fetching an opcode's operands.
	ErrCodeSegment = errors.New("ran out of code segment")

	// ErrInvalidAddress is raised when a code or data address operand,
	// including a computed indirect address, falls outside its segment.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrStackBounds is raised on call-stack or user-stack overflow/underflow.
	ErrStackBounds = errors.New("stack bounds exceeded")

	// ErrArithmetic is raised on division or modulo by zero.
	ErrArithmetic = errors.New("arithmetic error")

	// ErrExecution is the catch-all raised by function codes, e.g. a hash
	// read that would overrun the data segment.
	ErrExecution = errors.New("execution error")
)

// VMError wraps a sentinel error with the machine position at which it
// occurred, a host-facing error wrapper shape common to bytecode
// interpreters that need to report a faulting position alongside the
// underlying error kind.
type VMError struct {
	Err    error
	PC     uint32
	Opcode byte
	Addr   int64
	HasAddr bool
}

// New builds a VMError with no address context.
func New(err error, pc uint32, opcode byte) *VMError {
	return &VMError{Err: err, PC: pc, Opcode: opcode}
}

// NewWithAddr builds a VMError carrying the offending address.
func NewWithAddr(err error, pc uint32, opcode byte, addr int64) *VMError {
	return &VMError{Err: err, PC: pc, Opcode: opcode, Addr: addr, HasAddr: true}
}

func (e *VMError) Error() string {
	if e.HasAddr {
		return fmt.Sprintf("at PC=%04x opcode=0x%02x addr=%d: %v", e.PC, e.Opcode, e.Addr, e.Err)
	}
	return fmt.Sprintf("at PC=%04x opcode=0x%02x: %v", e.PC, e.Opcode, e.Err)
}

func (e *VMError) Unwrap() error {
	return e.Err
}

func (e *VMError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
