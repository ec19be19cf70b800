package vm

import (
	"fmt"
	"math/bits"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

// NoRegister marks an unused operand slot
const NoRegister = -1

// Instruction word layout
const (
	dstShift   = 0
	op1Shift   = 5
	op0Shift   = 10
	immFlagBit = 15
	regMask    = 0x1F
)

// Instruction is a decoded instruction
type Instruction struct {
	Opcode Opcode
	Op0    int // register index or NoRegister
	Op1    int // register index, or NoRegister when Op1Imm is set
	Dst    int // register index or NoRegister
	Op1Imm bool
	Imm    field.Element
}

// Size returns the number of program words the instruction occupies
func (inst Instruction) Size() uint64 {
	if inst.Op1Imm {
		return 2
	}
	return 1
}

func encodeReg(r int) uint64 {
	if r == NoRegister {
		return 0
	}
	return uint64(r + 1)
}

func decodeReg(code uint64) (int, error) {
	if code == 0 {
		return NoRegister, nil
	}
	if code > core.NumRegisters {
		return 0, fmt.Errorf("register code %d out of range", code)
	}
	return int(code - 1), nil
}

// Word encodes the instruction word (without the immediate)
func (inst Instruction) Word() uint64 {
	w := encodeReg(inst.Dst)<<dstShift |
		encodeReg(inst.Op1)<<op1Shift |
		encodeReg(inst.Op0)<<op0Shift |
		inst.Opcode.BitMask()
	if inst.Op1Imm {
		w |= 1 << immFlagBit
	}
	return w
}

// DecodeWord decodes an instruction word; imm is used when the word
// carries the immediate flag.
func DecodeWord(word uint64, imm field.Element) (Instruction, error) {
	flags := word >> opcodeShift
	if bits.OnesCount64(flags) != 1 {
		return Instruction{}, fmt.Errorf("%w: word %#x has %d opcode flags", ErrParseOpcode, word, bits.OnesCount64(flags))
	}
	op := Opcode(bits.TrailingZeros64(flags))
	if int(op) >= NumOpcodes {
		return Instruction{}, fmt.Errorf("%w: word %#x", ErrParseOpcode, word)
	}

	inst := Instruction{Opcode: op, Op1Imm: word&(1<<immFlagBit) != 0}

	var err error
	if inst.Dst, err = decodeReg((word >> dstShift) & regMask); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrParseOpcode, err)
	}
	if inst.Op0, err = decodeReg((word >> op0Shift) & regMask); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrParseOpcode, err)
	}
	if inst.Op1, err = decodeReg((word >> op1Shift) & regMask); err != nil {
		return Instruction{}, fmt.Errorf("%w: %v", ErrParseOpcode, err)
	}
	if inst.Op1Imm {
		if inst.Op1 != NoRegister {
			return Instruction{}, fmt.Errorf("%w: word %#x has both op1 register and immediate", ErrParseOpcode, word)
		}
		inst.Imm = imm
	}
	return inst, nil
}

// String renders the instruction in assembler syntax
func (inst Instruction) String() string {
	s := inst.Opcode.String()
	for _, r := range []int{inst.Dst, inst.Op0} {
		if r != NoRegister {
			s += fmt.Sprintf(" r%d", r)
		}
	}
	if inst.Op1Imm {
		s += fmt.Sprintf(" %d", inst.Imm.Value())
	} else if inst.Op1 != NoRegister {
		s += fmt.Sprintf(" r%d", inst.Op1)
	}
	return s
}

// Program is a contract's bytecode together with its decoded instructions
type Program struct {
	Address core.Address
	Code    []field.Element
	insts   map[uint64]Instruction
}

// NewProgram assembles instructions into bytecode
func NewProgram(addr core.Address, insts []Instruction) *Program {
	p := &Program{Address: addr, insts: make(map[uint64]Instruction, len(insts))}
	for _, inst := range insts {
		p.insts[uint64(len(p.Code))] = inst
		p.Code = append(p.Code, field.New(inst.Word()))
		if inst.Op1Imm {
			p.Code = append(p.Code, inst.Imm)
		}
	}
	return p
}

// DecodeProgram decodes raw bytecode
func DecodeProgram(addr core.Address, code []field.Element) (*Program, error) {
	p := &Program{Address: addr, Code: code, insts: make(map[uint64]Instruction)}
	for pc := 0; pc < len(code); {
		word := code[pc].Value()
		var imm field.Element
		if word&(1<<immFlagBit) != 0 {
			if pc+1 >= len(code) {
				return nil, fmt.Errorf("%w: immediate missing at pc %d", ErrParseOpcode, pc)
			}
			imm = code[pc+1]
		}
		inst, err := DecodeWord(word, imm)
		if err != nil {
			return nil, fmt.Errorf("pc %d: %w", pc, err)
		}
		p.insts[uint64(pc)] = inst
		pc += int(inst.Size())
	}
	return p, nil
}

// Fetch returns the instruction starting at pc
func (p *Program) Fetch(pc uint64) (Instruction, bool) {
	inst, ok := p.insts[pc]
	return inst, ok
}

// Len returns the number of program words
func (p *Program) Len() int {
	return len(p.Code)
}
