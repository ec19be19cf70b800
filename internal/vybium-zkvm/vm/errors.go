package vm

import (
	"errors"
	"fmt"
)

// FaultKind classifies an execution fault
type FaultKind int

const (
	// FaultUnknown represents an unclassified fault
	FaultUnknown FaultKind = iota

	// FaultParseOpcode represents an instruction word that does not decode
	FaultParseOpcode

	// FaultU32RangeCheck represents a value outside [0, 2^32)
	FaultU32RangeCheck

	// FaultAssert represents a failed ASSERT
	FaultAssert

	// FaultMemoryVisit represents an uninitialized read or an out-of-range address
	FaultMemoryVisit

	// FaultTapeVisit represents a tape address outside the written tape
	FaultTapeVisit

	// FaultPcVisit represents a program counter outside the program
	FaultPcVisit

	// FaultTloadFlag represents a TLOAD flag other than 0 or 1
	FaultTloadFlag

	// FaultStorageLayer represents a malformed Merkle path from the storage backend
	FaultStorageLayer

	// FaultCodeNotFound represents a contract call to an address with no program
	FaultCodeNotFound

	// FaultStepLimit represents a transaction exceeding the configured step limit
	FaultStepLimit

	// FaultCjmpFlag represents a CJMP condition other than 0 or 1
	FaultCjmpFlag
)

// String returns the fault name
func (k FaultKind) String() string {
	switch k {
	case FaultParseOpcode:
		return "decode binary opcode fail"
	case FaultU32RangeCheck:
		return "u32 range check fail"
	case FaultAssert:
		return "assert fail"
	case FaultMemoryVisit:
		return "memory visit invalid"
	case FaultTapeVisit:
		return "tape visit invalid"
	case FaultPcVisit:
		return "pc visit invalid"
	case FaultTloadFlag:
		return "tload flag invalid"
	case FaultStorageLayer:
		return "storage tree layer invalid"
	case FaultCodeNotFound:
		return "contract code not found"
	case FaultStepLimit:
		return "step limit exceeded"
	case FaultCjmpFlag:
		return "cjmp flag invalid"
	default:
		return "unknown fault"
	}
}

// ExecError is a fatal execution fault. It identifies the faulting
// transaction, clock and program counter.
type ExecError struct {
	Kind   FaultKind
	TxIdx  uint64
	Clk    uint64
	Pc     uint64
	Addr   uint64 // memory/tape/pc address when relevant
	Reg    int    // register index for assert faults
	Value  uint64 // offending value when relevant
	Detail string
}

// Error returns the error message
func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s at tx %d clk %d pc %d", e.Kind, e.TxIdx, e.Clk, e.Pc)
	switch e.Kind {
	case FaultMemoryVisit, FaultTapeVisit, FaultPcVisit:
		msg += fmt.Sprintf(", addr %d", e.Addr)
	case FaultAssert:
		msg += fmt.Sprintf(", reg %d value %d", e.Reg, e.Value)
	case FaultU32RangeCheck, FaultTloadFlag, FaultCjmpFlag:
		msg += fmt.Sprintf(", value %d", e.Value)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches any ExecError of the same kind
func (e *ExecError) Is(target error) bool {
	t, ok := target.(*ExecError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is matching
var (
	ErrParseOpcode       = &ExecError{Kind: FaultParseOpcode}
	ErrU32RangeCheck     = &ExecError{Kind: FaultU32RangeCheck}
	ErrAssert            = &ExecError{Kind: FaultAssert}
	ErrMemoryVisit       = &ExecError{Kind: FaultMemoryVisit}
	ErrTapeVisit         = &ExecError{Kind: FaultTapeVisit}
	ErrPcVisit           = &ExecError{Kind: FaultPcVisit}
	ErrTloadFlag         = &ExecError{Kind: FaultTloadFlag}
	ErrStorageLayer      = &ExecError{Kind: FaultStorageLayer}
	ErrCodeNotFound      = &ExecError{Kind: FaultCodeNotFound}
	ErrStepLimit         = &ExecError{Kind: FaultStepLimit}
	ErrCjmpFlag          = &ExecError{Kind: FaultCjmpFlag}
	ErrInvariantViolated = errors.New("trace invariant violated")
)
