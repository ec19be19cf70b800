package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

// operand slots in assembler order
type slot int

const (
	slotDst slot = iota
	slotOp0
	slotOp1
)

var operandShapes = [NumOpcodes][]slot{
	ADD:      {slotDst, slotOp0, slotOp1},
	MUL:      {slotDst, slotOp0, slotOp1},
	EQ:       {slotDst, slotOp0, slotOp1},
	NEQ:      {slotDst, slotOp0, slotOp1},
	ASSERT:   {slotOp0, slotOp1},
	MOV:      {slotDst, slotOp1},
	NOT:      {slotDst, slotOp1},
	JMP:      {slotOp1},
	CJMP:     {slotOp0, slotOp1},
	CALL:     {slotOp1},
	RET:      {},
	END:      {},
	MLOAD:    {slotDst, slotOp0, slotOp1},
	MSTORE:   {slotOp0, slotOp1, slotDst},
	RC:       {slotOp1},
	AND:      {slotDst, slotOp0, slotOp1},
	OR:       {slotDst, slotOp0, slotOp1},
	XOR:      {slotDst, slotOp0, slotOp1},
	GTE:      {slotDst, slotOp0, slotOp1},
	POSEIDON: {slotDst, slotOp0, slotOp1},
	SLOAD:    {slotOp0, slotOp1},
	SSTORE:   {slotOp0, slotOp1},
	TLOAD:    {slotDst, slotOp0, slotOp1},
	TSTORE:   {slotOp0, slotOp1},
	SCCALL:   {slotOp0, slotOp1},
}

// Assemble builds an instruction from its opcode and operands in
// assembler order. Operands are register indices, except the op1 slot which
// may instead be an immediate via Imm.
func Assemble(op Opcode, operands ...Operand) (Instruction, error) {
	shape := operandShapes[op]
	if len(operands) != len(shape) {
		return Instruction{}, fmt.Errorf("%s takes %d operands, got %d", op, len(shape), len(operands))
	}

	inst := Instruction{Opcode: op, Op0: NoRegister, Op1: NoRegister, Dst: NoRegister}
	for i, s := range shape {
		o := operands[i]
		if o.imm && s != slotOp1 {
			return Instruction{}, fmt.Errorf("%s: only op1 may be an immediate", op)
		}
		if !o.imm && (o.reg < 0 || o.reg >= core.NumRegisters) {
			return Instruction{}, fmt.Errorf("%s: register r%d out of range", op, o.reg)
		}
		switch s {
		case slotDst:
			inst.Dst = o.reg
		case slotOp0:
			inst.Op0 = o.reg
		case slotOp1:
			if o.imm {
				inst.Op1Imm = true
				inst.Imm = o.value
			} else {
				inst.Op1 = o.reg
			}
		}
	}
	return inst, nil
}

// MustAssemble is Assemble for statically known programs
func MustAssemble(op Opcode, operands ...Operand) Instruction {
	inst, err := Assemble(op, operands...)
	if err != nil {
		panic(err)
	}
	return inst
}

// Operand is an assembler operand
type Operand struct {
	reg   int
	imm   bool
	value field.Element
}

// Reg is a register operand
func Reg(r int) Operand {
	return Operand{reg: r}
}

// Imm is an immediate operand; negative values wrap into the field
func Imm(v int64) Operand {
	return Operand{imm: true, value: core.FromInt(v)}
}

// ParseInstruction parses one line of assembler, e.g. "add r1 r2 7"
func ParseInstruction(line string) (Instruction, error) {
	fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
	if len(fields) == 0 {
		return Instruction{}, fmt.Errorf("empty instruction")
	}
	op, err := ParseOpcode(fields[0])
	if err != nil {
		return Instruction{}, err
	}

	operands := make([]Operand, 0, len(fields)-1)
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "r") {
			r, err := strconv.Atoi(f[1:])
			if err != nil {
				return Instruction{}, fmt.Errorf("bad register %q: %w", f, err)
			}
			operands = append(operands, Reg(r))
			continue
		}
		v, err := strconv.ParseInt(f, 0, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("bad immediate %q: %w", f, err)
		}
		operands = append(operands, Imm(v))
	}
	return Assemble(op, operands...)
}

// ParseProgram parses assembler lines; blank lines and ';' comments are skipped
func ParseProgram(addr core.Address, source string) (*Program, error) {
	var insts []Instruction
	for n, line := range strings.Split(source, "\n") {
		if i := strings.Index(line, ";"); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		inst, err := ParseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		insts = append(insts, inst)
	}
	return NewProgram(addr, insts), nil
}
