package ctl

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// TableWithColumns is one side of a lookup: the projected columns of a
// table, counted with the filter as multiplicity
type TableWithColumns struct {
	Table   tables.TableID
	Columns []Column
	Filter  Column
}

// CrossTableLookup asserts that the rows projected by all Looking sides,
// taken together, form the same multiset as the Looked side
type CrossTableLookup struct {
	Name    string
	Looking []TableWithColumns
	Looked  TableWithColumns
}

func side(id tables.TableID, filter Column, cols ...[]Column) TableWithColumns {
	var all []Column
	for _, c := range cols {
		all = append(all, c...)
	}
	return TableWithColumns{Table: id, Columns: all, Filter: filter}
}

func opcodeConst(op vm.Opcode) Column {
	return Constant(field.New(op.BitMask()))
}

func sel(op vm.Opcode) int {
	return tables.SelectorColumn(op)
}

// Betas are the compression challenges of the two-phase tables. The
// Bitwise and Program lookups project the compressed columns, so their
// looking sides fold the CPU operands with the same challenge.
type Betas struct {
	Bitwise field.Element
	Program field.Element
}

// AllCrossTableLookups returns every lookup of the trace in a fixed order
func AllCrossTableLookups(betas Betas) []CrossTableLookup {
	return []CrossTableLookup{
		ctlCpuMemory(),
		ctlMemoryRangeCheck(),
		ctlCpuBitwise(betas.Bitwise),
		ctlCpuCmp(),
		ctlCmpRangeCheck(),
		ctlCpuRangeCheck(),
		ctlCpuTape(),
		ctlCpuStorageHash(),
		ctlCpuPoseidonChunk(),
		ctlPoseidonChunkMemory(),
		ctlPoseidonChunkPoseidon(),
		ctlStorageKeyPoseidon(),
		ctlStorageLeafPoseidon(),
		ctlProgramChunkPoseidon(),
		ctlCpuProgram(betas.Program),
		ctlCpuScCall(),
		ctlCpuScCallEnd(),
	}
}

// (tx, env, clk, opcode, addr, value, is_write)
func ctlCpuMemory() CrossTableLookup {
	head := Singles(tables.CpuTx, tables.CpuEnv, tables.CpuClk, tables.CpuOpcode)
	access := side(tables.Cpu, Sum(sel(vm.MSTORE), sel(vm.MLOAD)),
		head, Singles(tables.CpuAux0, tables.CpuDst, sel(vm.MSTORE)))
	savedPc := side(tables.Cpu, Sum(sel(vm.CALL), sel(vm.RET)),
		head,
		[]Column{Offset(tables.CpuRegs+core.FramePointerRegister, -1), Single(tables.CpuAux0), Single(sel(vm.CALL))})
	savedFp := side(tables.Cpu, Sum(sel(vm.CALL), sel(vm.RET)),
		head,
		[]Column{Offset(tables.CpuRegs+core.FramePointerRegister, -2), Single(tables.CpuAux1), Constant(field.Zero)})

	return CrossTableLookup{
		Name:    "cpu_memory",
		Looking: []TableWithColumns{access, savedPc, savedFp},
		Looked: side(tables.Memory, Single(tables.MemFilterForCpu),
			Singles(tables.MemTx, tables.MemEnv, tables.MemClk, tables.MemOpcode,
				tables.MemAddr, tables.MemValue, tables.MemIsWrite)),
	}
}

func ctlMemoryRangeCheck() CrossTableLookup {
	return CrossTableLookup{
		Name:    "memory_rangecheck",
		Looking: []TableWithColumns{side(tables.Memory, Single(tables.MemFilterLookingRc), Singles(tables.MemRcValue))},
		Looked:  side(tables.RangeCheck, Single(tables.RcFilterMemory), Singles(tables.RcVal)),
	}
}

// (tag, op0 + β·op1 + β²·res). The limb compressions recombine in base
// 256 into the folded operands.
func ctlCpuBitwise(beta field.Element) CrossTableLookup {
	var limbs []int
	for k := 0; k < tables.BitwiseLimbs; k++ {
		limbs = append(limbs, tables.BitCompressed+k)
	}
	return CrossTableLookup{
		Name: "cpu_bitwise",
		Looking: []TableWithColumns{side(tables.Cpu, Sum(sel(vm.AND), sel(vm.OR), sel(vm.XOR)),
			[]Column{Single(tables.CpuOpcode), Fold(beta, Singles(tables.CpuOp0, tables.CpuOp1, tables.CpuDst)...)})},
		Looked: side(tables.Bitwise, OneMinus(tables.BitIsPadding),
			[]Column{Single(tables.BitTag), Fold(field.New(256), Singles(limbs...)...)}),
	}
}

func ctlCpuCmp() CrossTableLookup {
	return CrossTableLookup{
		Name:    "cpu_cmp",
		Looking: []TableWithColumns{side(tables.Cpu, Single(sel(vm.GTE)), Singles(tables.CpuOp0, tables.CpuOp1, tables.CpuDst))},
		Looked:  side(tables.Cmp, OneMinus(tables.CmpIsPadding), Singles(tables.CmpOp0, tables.CmpOp1, tables.CmpGte)),
	}
}

func ctlCmpRangeCheck() CrossTableLookup {
	return CrossTableLookup{
		Name:    "cmp_rangecheck",
		Looking: []TableWithColumns{side(tables.Cmp, Single(tables.CmpFilterLookingRc), Singles(tables.CmpAbsDiff))},
		Looked:  side(tables.RangeCheck, Single(tables.RcFilterCmp), Singles(tables.RcVal)),
	}
}

func ctlCpuRangeCheck() CrossTableLookup {
	return CrossTableLookup{
		Name:    "cpu_rangecheck",
		Looking: []TableWithColumns{side(tables.Cpu, Single(sel(vm.RC)), Singles(tables.CpuOp1))},
		Looked:  side(tables.RangeCheck, Single(tables.RcFilterCpu), Singles(tables.RcVal)),
	}
}

// (tx, opcode, addr, value)
func ctlCpuTape() CrossTableLookup {
	head := Singles(tables.CpuTx, tables.CpuOpcode)
	looking := []TableWithColumns{
		side(tables.Cpu, Single(tables.CpuTapeLooking), head, Singles(tables.CpuAux0, tables.CpuAux1)),
	}
	for i := 0; i < core.WordLength; i++ {
		looking = append(looking, side(tables.Cpu, Single(tables.CpuSccallCaller),
			head, []Column{Offset(tables.CpuTp, int64(i)), Single(tables.CpuAddrStorage + i)}))
	}
	for i := 0; i < core.WordLength; i++ {
		looking = append(looking, side(tables.Cpu, Single(tables.CpuSccallCallee),
			head, []Column{Offset(tables.CpuTp, int64(i)), Single(tables.CpuWord + i)}))
	}
	return CrossTableLookup{
		Name:    "cpu_tape",
		Looking: looking,
		Looked: side(tables.Tape, Single(tables.TapeFilterLooked),
			Singles(tables.TapeTx, tables.TapeOpcode, tables.TapeAddr, tables.TapeValue)),
	}
}

func ctlCpuStorageHash() CrossTableLookup {
	return CrossTableLookup{
		Name: "cpu_storage_hash",
		Looking: []TableWithColumns{side(tables.Cpu, Single(tables.CpuIsStorageExt),
			Singles(tables.CpuStorageIdx), WordAt(tables.CpuWord))},
		Looked: side(tables.StorageHash, Single(tables.ShIsLayer256),
			Singles(tables.ShIdx), WordAt(tables.ShAddr)),
	}
}

func ctlCpuPoseidonChunk() CrossTableLookup {
	return CrossTableLookup{
		Name: "cpu_poseidon_chunk",
		Looking: []TableWithColumns{side(tables.Cpu, Single(sel(vm.POSEIDON)),
			Singles(tables.CpuTx, tables.CpuEnv, tables.CpuClk, tables.CpuOp0, tables.CpuOp1, tables.CpuDst))},
		Looked: side(tables.PoseidonChunk, Single(tables.PchIsResult),
			Singles(tables.PchTx, tables.PchEnv, tables.PchClk, tables.PchOp0, tables.PchOp1, tables.PchDst)),
	}
}

// Every absorbed lane is a memory read and every digest limb a write
func ctlPoseidonChunkMemory() CrossTableLookup {
	head := []Column{Single(tables.PchTx), Single(tables.PchEnv), Single(tables.PchClk), opcodeConst(vm.POSEIDON)}
	var looking []TableWithColumns
	for i := 0; i < poseidon.Rate; i++ {
		addr := Sum(tables.PchOp0, tables.PchAccBase).Plus(field.New(uint64(i)))
		looking = append(looking, side(tables.PoseidonChunk, Single(tables.PchIsValid+i),
			head, []Column{addr, Single(tables.PchValues + i), Constant(field.Zero)}))
	}
	for j := 0; j < core.WordLength; j++ {
		looking = append(looking, side(tables.PoseidonChunk, Single(tables.PchIsResult),
			head, []Column{Offset(tables.PchDst, int64(j)), Single(tables.PchOutput + j), Constant(field.One)}))
	}
	return CrossTableLookup{
		Name:    "poseidon_chunk_memory",
		Looking: looking,
		Looked: side(tables.Memory, Single(tables.MemFilterForPoseidon),
			Singles(tables.MemTx, tables.MemEnv, tables.MemClk, tables.MemOpcode,
				tables.MemAddr, tables.MemValue, tables.MemIsWrite)),
	}
}

func poseidonSide(filter int) TableWithColumns {
	return side(tables.Poseidon, Single(filter),
		Range(tables.PosInput, poseidon.Width), Range(tables.PosOutput, poseidon.Width))
}

func ctlPoseidonChunkPoseidon() CrossTableLookup {
	return CrossTableLookup{
		Name: "poseidon_chunk_poseidon",
		Looking: []TableWithColumns{side(tables.PoseidonChunk, OneMinus(tables.PchIsPadding),
			Range(tables.PchInput, poseidon.Width), Range(tables.PchOutput, poseidon.Width))},
		Looked: poseidonSide(tables.PosFilterChunk),
	}
}

// storageHashInputSide projects a zero capacity, two input words and the
// digest, against the first four output lanes of a permutation
func storageHashInputSide(filter Column, left, right, digest int) TableWithColumns {
	zeros := []Column{Constant(field.Zero), Constant(field.Zero), Constant(field.Zero), Constant(field.Zero)}
	return side(tables.StorageHash, filter, zeros, WordAt(left), WordAt(right), WordAt(digest))
}

func poseidonDigestSide(filter int) TableWithColumns {
	return side(tables.Poseidon, Single(filter),
		Range(tables.PosInput, poseidon.Width), Range(tables.PosOutput, core.WordLength))
}

func ctlStorageKeyPoseidon() CrossTableLookup {
	return CrossTableLookup{
		Name:    "storage_key_poseidon",
		Looking: []TableWithColumns{storageHashInputSide(Single(tables.ShIsLayer256), tables.ShContract, tables.ShKey, tables.ShAddr)},
		Looked:  poseidonDigestSide(tables.PosFilterStorageKey),
	}
}

func ctlStorageLeafPoseidon() CrossTableLookup {
	return CrossTableLookup{
		Name:    "storage_leaf_poseidon",
		Looking: []TableWithColumns{storageHashInputSide(Single(tables.ShLookingLeaf), tables.ShAddr, tables.ShValue, tables.ShPath)},
		Looked:  poseidonDigestSide(tables.PosFilterStorageLeaf),
	}
}

func ctlProgramChunkPoseidon() CrossTableLookup {
	return CrossTableLookup{
		Name: "program_chunk_poseidon",
		Looking: []TableWithColumns{side(tables.ProgramChunk, OneMinus(tables.PgcIsPadding),
			Range(tables.PgcInput, poseidon.Width), Range(tables.PgcOutput, poseidon.Width))},
		Looked: poseidonSide(tables.PosFilterProgramChunk),
	}
}

// (addr_code, pc, word) folded with β against the compressed program row
func ctlCpuProgram(beta field.Element) CrossTableLookup {
	fetch := append(WordAt(tables.CpuAddrCode), Single(tables.CpuPc), Single(tables.CpuInst))
	imm := append(WordAt(tables.CpuAddrCode), Offset(tables.CpuPc, 1), Single(tables.CpuImmVal))
	return CrossTableLookup{
		Name: "cpu_program",
		Looking: []TableWithColumns{
			side(tables.Cpu, Single(tables.CpuProgLooking), []Column{Fold(beta, fetch...)}),
			side(tables.Cpu, Single(tables.CpuProgImm), []Column{Fold(beta, imm...)}),
		},
		Looked: side(tables.Program, Single(tables.ProgMultiplicity), Singles(tables.ProgCompressed)),
	}
}

func ctlCpuScCall() CrossTableLookup {
	return CrossTableLookup{
		Name: "cpu_sccall",
		Looking: []TableWithColumns{side(tables.Cpu, Single(tables.CpuIsSccallExt),
			Singles(tables.CpuTx, tables.CpuEnv, tables.CpuCallScCnt),
			WordAt(tables.CpuAddrStorage), WordAt(tables.CpuAddrCode), WordAt(tables.CpuWord),
			Singles(tables.CpuClk))},
		Looked: side(tables.ScCall, OneMinus(tables.ScIsPadding),
			Singles(tables.ScTx, tables.ScCallerEnv, tables.ScCalleeEnv),
			WordAt(tables.ScCallerStorage), WordAt(tables.ScCallerCode), WordAt(tables.ScCalleeCode),
			Singles(tables.ScClkCall)),
	}
}

func ctlCpuScCallEnd() CrossTableLookup {
	return CrossTableLookup{
		Name: "cpu_sccall_end",
		Looking: []TableWithColumns{side(tables.Cpu, Single(tables.CpuSccallEnd),
			Singles(tables.CpuTx, tables.CpuEnv, tables.CpuClk))},
		Looked: side(tables.ScCall, OneMinus(tables.ScIsPadding),
			Singles(tables.ScTx, tables.ScCalleeEnv, tables.ScClkCalleeEnd)),
	}
}
