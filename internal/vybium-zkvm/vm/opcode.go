// Package vm provides the Vybium zkVM execution engine. It interprets
// decoded instructions and records every step, together with the side
// logs the table generators consume.
package vm

import (
	"fmt"
	"strings"
)

// Opcode identifies one instruction of the closed instruction set
type Opcode uint8

// Vybium zkVM Instruction Set Architecture (ISA)
const (
	// ========== Field Arithmetic ==========

	// ADD sets dst = op0 + op1
	ADD Opcode = iota

	// MUL sets dst = op0 * op1
	MUL

	// EQ sets dst = 1 if op0 == op1, else 0
	EQ

	// NEQ sets dst = 1 if op0 != op1, else 0
	NEQ

	// ASSERT faults unless op0 == op1
	ASSERT

	// MOV sets dst = op1
	MOV

	// NOT sets dst = (p - 1) - op1
	NOT

	// ========== Control Flow ==========

	// JMP sets pc = op1
	JMP

	// CJMP sets pc = op1 when op0 == 1
	CJMP

	// CALL saves the return pc at [fp-1] and jumps to op1
	CALL

	// RET restores pc from [fp-1] and fp from [fp-2]
	RET

	// END terminates the transaction, or returns from a nested contract call
	END

	// ========== Memory ==========

	// MLOAD sets dst = mem[op0 + op1]
	MLOAD

	// MSTORE sets mem[op0 + op1] = dst
	MSTORE

	// ========== Builtins ==========

	// RC faults unless op1 < 2^32
	RC

	// AND sets dst = op0 & op1 on u32 operands
	AND

	// OR sets dst = op0 | op1 on u32 operands
	OR

	// XOR sets dst = op0 ^ op1 on u32 operands
	XOR

	// GTE sets dst = 1 if op0 >= op1 on u32 operands
	GTE

	// POSEIDON hashes mem[op0 .. op0+op1) into mem[dst .. dst+4)
	POSEIDON

	// ========== Storage ==========

	// SLOAD reads the slot keyed by mem[op0..op0+4) into mem[op1..op1+4)
	SLOAD

	// SSTORE writes mem[op1..op1+4) to the slot keyed by mem[op0..op0+4)
	SSTORE

	// ========== Tape ==========

	// TLOAD reads from the transaction tape; op0 is the addressing flag
	TLOAD

	// TSTORE appends mem[op0 .. op0+op1) to the tape
	TSTORE

	// ========== Contract Calls ==========

	// SCCALL calls the contract whose address is at mem[op0..op0+4)
	SCCALL

	// NumOpcodes is the size of the instruction set
	NumOpcodes = int(SCCALL) + 1
)

// opcodeShift is the bit position of the first opcode flag in an instruction word
const opcodeShift = 16

var opcodeNames = [NumOpcodes]string{
	ADD: "add", MUL: "mul", EQ: "eq", NEQ: "neq", ASSERT: "assert",
	MOV: "mov", NOT: "not", JMP: "jmp", CJMP: "cjmp", CALL: "call",
	RET: "ret", END: "end", MLOAD: "mload", MSTORE: "mstore", RC: "range",
	AND: "and", OR: "or", XOR: "xor", GTE: "gte", POSEIDON: "poseidon",
	SLOAD: "sload", SSTORE: "sstore", TLOAD: "tload", TSTORE: "tstore",
	SCCALL: "sccall",
}

// String returns the assembler mnemonic
func (op Opcode) String() string {
	if int(op) >= NumOpcodes {
		return fmt.Sprintf("opcode(%d)", uint8(op))
	}
	return opcodeNames[op]
}

// BitMask returns the opcode's one-hot flag within an instruction word.
// The CPU table's opcode column holds this value.
func (op Opcode) BitMask() uint64 {
	return 1 << (opcodeShift + uint(op))
}

// ParseOpcode resolves a mnemonic
func ParseOpcode(name string) (Opcode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range opcodeNames {
		if n == name {
			return Opcode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mnemonic %q", ErrParseOpcode, name)
}

// IsU32Builtin reports whether the opcode requires u32 operands
func (op Opcode) IsU32Builtin() bool {
	switch op {
	case AND, OR, XOR, GTE:
		return true
	default:
		return false
	}
}
