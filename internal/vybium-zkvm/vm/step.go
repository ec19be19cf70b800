package vm

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

// RegisterSelector holds the one-hot register selection of each operand
type RegisterSelector struct {
	Op0 [core.NumRegisters]bool
	Op1 [core.NumRegisters]bool
	Dst [core.NumRegisters]bool
}

func oneHot(r int) [core.NumRegisters]bool {
	var sel [core.NumRegisters]bool
	if r != NoRegister {
		sel[r] = true
	}
	return sel
}

// Step is one trace row: a primary instruction row or one of its ext lines
type Step struct {
	// identity
	TxIdx     uint64
	EnvIdx    uint64
	CallScCnt uint64

	// context
	AddrStorage core.Address
	AddrCode    core.Address

	// control
	Pc          uint64
	Clk         uint64
	Tp          uint64
	Instruction uint64
	Opcode      Opcode
	Op1Imm      bool
	ImmVal      field.Element

	// registers before the instruction, and operand values
	Regs     [core.NumRegisters]field.Element
	Selector RegisterSelector
	Op0      field.Element
	Op1      field.Element
	Dst      field.Element
	Aux0     field.Element
	Aux1     field.Element

	// extension markers
	IsExtLine        bool
	ExtCnt           uint64
	StorageAccessIdx uint64

	// Word is the storage tree key on storage rows and the callee address
	// on SCCALL rows
	Word core.Word
}

// ExtLength returns the number of ext lines of this row's instruction
func (s *Step) ExtLength() uint64 {
	return ExtLength(s.Opcode, s.EnvIdx, s.Op0, s.Op1)
}

// IsNextLineDiffInst reports whether the next row starts a new instruction
func (s *Step) IsNextLineDiffInst() bool {
	return s.ExtCnt == s.ExtLength()
}

// IsNextLineSameTx is false only on a top-level END
func (s *Step) IsNextLineSameTx() bool {
	return !(s.EnvIdx == 0 && s.Opcode == END)
}

// Filters are the derived lookup filters of a row
type Filters struct {
	IsEntrySc            bool // top-level environment
	IsSccallExtLine      bool // SCCALL code lookup
	IsSccallTapeCaller   bool // SCCALL writes the caller address to the tape
	IsSccallTapeCallee   bool // SCCALL writes the callee address to the tape
	IsStorageExtLine     bool
	FilterSccallEnd      bool // nested END return line
	FilterTapeLooking    bool // TLOAD/TSTORE tape access
	FilterLookingProg    bool // instruction fetch
	FilterLookingProgImm bool // immediate fetch
}

// Filters derives the row's lookup filters from its own fields
func (s *Step) Filters() Filters {
	f := Filters{IsEntrySc: s.EnvIdx == 0}

	if !s.IsExtLine {
		f.FilterLookingProg = true
		f.FilterLookingProgImm = s.Op1Imm
		return f
	}

	switch s.Opcode {
	case SCCALL:
		f.IsSccallExtLine = s.ExtCnt == 1
		f.IsSccallTapeCaller = s.ExtCnt == 2
		f.IsSccallTapeCallee = s.ExtCnt == 3
	case SLOAD, SSTORE:
		f.IsStorageExtLine = true
	case END:
		f.FilterSccallEnd = true
	case TLOAD, TSTORE:
		f.FilterTapeLooking = true
	}
	return f
}

// extLine derives the k-th continuation row of a primary row
func (s *Step) extLine(k uint64) Step {
	row := *s
	row.IsExtLine = true
	row.ExtCnt = k
	row.Aux0 = field.Zero
	row.Aux1 = field.Zero
	return row
}
