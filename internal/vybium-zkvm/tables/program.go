package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// Program table columns
const (
	ProgAddr         = 0
	ProgPc           = ProgAddr + core.WordLength
	ProgValue        = ProgPc + 1
	ProgMultiplicity = ProgValue + 1
	ProgIsPadding    = ProgMultiplicity + 1
	progRawCols      = ProgIsPadding + 1
	ProgCompressed   = progRawCols
	ProgNumCols      = ProgCompressed + 1
)

var programColumnNames = func() []string {
	var n columnNames
	n.group(ProgAddr, "addr", core.WordLength)
	n.add(ProgPc, "pc")
	n.add(ProgValue, "value")
	n.add(ProgMultiplicity, "multiplicity")
	n.add(ProgIsPadding, "is_padding")
	n.add(ProgCompressed, "compress")
	return n
}()

type fetchKey struct {
	addr core.Address
	pc   uint64
}

// GenerateProgram builds one row per program word. The multiplicity
// counts how often the CPU fetched the word as an instruction or an
// immediate.
func GenerateProgram(programs []*vm.Program, txs []*vm.Trace) *PhasedTable {
	fetches := make(map[fetchKey]uint64)
	for _, tx := range txs {
		for i := range tx.Steps {
			s := &tx.Steps[i]
			f := s.Filters()
			if f.FilterLookingProg {
				fetches[fetchKey{s.AddrCode, s.Pc}]++
			}
			if f.FilterLookingProgImm {
				fetches[fetchKey{s.AddrCode, s.Pc + 1}]++
			}
		}
	}

	n := 0
	for _, p := range programs {
		n += len(p.Code)
	}
	t := NewTable(Program, programColumnNames, rowsFor(n))

	row := 0
	for _, p := range programs {
		for pc, word := range p.Code {
			t.SetSlice(row, ProgAddr, p.Address[:])
			t.SetU64(row, ProgPc, uint64(pc))
			t.Set(row, ProgValue, word)
			t.SetU64(row, ProgMultiplicity, fetches[fetchKey{p.Address, uint64(pc)}])
			row++
		}
	}
	t.padWith(n, func(r int) { t.Set(r, ProgIsPadding, field.One) })

	return &PhasedTable{table: t, rawCols: progRawCols, compress: compressProgram}
}

// compressProgram folds (addr, pc, value) with powers of beta
func compressProgram(t *Table, beta field.Element) {
	for row := 0; row < t.Height(); row++ {
		acc := field.Zero
		for col := ProgValue; col >= ProgAddr; col-- {
			acc = acc.Mul(beta).Add(t.Get(row, col))
		}
		t.Set(row, ProgCompressed, acc)
	}
}

// ProgramChunk table columns
const (
	PgcAddr      = 0
	PgcStartPc   = PgcAddr + core.WordLength
	PgcValues    = PgcStartPc + 1
	PgcIsValid   = PgcValues + poseidon.Rate
	PgcIsFirst   = PgcIsValid + poseidon.Rate
	PgcIsResult  = PgcIsFirst + 1
	PgcInput     = PgcIsResult + 1
	PgcOutput    = PgcInput + poseidon.Width
	PgcIsPadding = PgcOutput + poseidon.Width
	PgcNumCols   = PgcIsPadding + 1
)

var programChunkColumnNames = func() []string {
	var n columnNames
	n.group(PgcAddr, "addr", core.WordLength)
	n.add(PgcStartPc, "start_pc")
	n.group(PgcValues, "value", poseidon.Rate)
	n.group(PgcIsValid, "is_valid", poseidon.Rate)
	n.add(PgcIsFirst, "is_first")
	n.add(PgcIsResult, "is_result")
	n.group(PgcInput, "input", poseidon.Width)
	n.group(PgcOutput, "output", poseidon.Width)
	n.add(PgcIsPadding, "is_padding")
	return n
}()

// GenerateProgramChunk builds one row per 8-word chunk of every program
// hash
func GenerateProgramChunk(chunks []vm.ProgramChunkEvent) *Table {
	t := NewTable(ProgramChunk, programChunkColumnNames, rowsFor(len(chunks)))
	for i, ch := range chunks {
		t.SetSlice(i, PgcAddr, ch.Address[:])
		t.SetU64(i, PgcStartPc, ch.StartPc)
		t.SetSlice(i, PgcValues, ch.Values[:])
		for k := 0; k < poseidon.Rate; k++ {
			t.SetBool(i, PgcIsValid+k, k < ch.Valid)
		}
		t.SetBool(i, PgcIsFirst, ch.IsFirst)
		t.SetBool(i, PgcIsResult, ch.IsResult)
		t.SetSlice(i, PgcInput, ch.States.Input[:])
		t.SetSlice(i, PgcOutput, ch.States.Output[:])
	}
	t.padWith(len(chunks), func(r int) { t.Set(r, PgcIsPadding, field.One) })
	return t
}
