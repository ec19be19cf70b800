package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// CPU table columns
const (
	CpuTx = iota
	CpuEnv
	CpuCallScCnt
	CpuAddrStorage
	CpuAddrCode     = CpuAddrStorage + core.WordLength
	CpuPc           = CpuAddrCode + core.WordLength
	CpuClk          = CpuPc + 1
	CpuTp           = CpuClk + 1
	CpuInst         = CpuTp + 1
	CpuOpcode       = CpuInst + 1
	CpuOp1Imm       = CpuOpcode + 1
	CpuImmVal       = CpuOp1Imm + 1
	CpuRegs         = CpuImmVal + 1
	CpuOp0          = CpuRegs + core.NumRegisters
	CpuOp1          = CpuOp0 + 1
	CpuDst          = CpuOp1 + 1
	CpuAux0         = CpuDst + 1
	CpuAux1         = CpuAux0 + 1
	CpuSelOp0       = CpuAux1 + 1
	CpuSelOp1       = CpuSelOp0 + core.NumRegisters
	CpuSelDst       = CpuSelOp1 + core.NumRegisters
	CpuIsExtLine    = CpuSelDst + core.NumRegisters
	CpuExtCnt       = CpuIsExtLine + 1
	CpuStorageIdx   = CpuExtCnt + 1
	CpuWord         = CpuStorageIdx + 1
	CpuOpSelectors  = CpuWord + core.WordLength
	CpuIsEntrySc    = CpuOpSelectors + vm.NumOpcodes
	CpuIsSccallExt  = CpuIsEntrySc + 1
	CpuSccallCaller = CpuIsSccallExt + 1
	CpuSccallCallee = CpuSccallCaller + 1
	CpuIsStorageExt = CpuSccallCallee + 1
	CpuSccallEnd    = CpuIsStorageExt + 1
	CpuTapeLooking  = CpuSccallEnd + 1
	CpuProgLooking  = CpuTapeLooking + 1
	CpuProgImm      = CpuProgLooking + 1
	CpuDiffInst     = CpuProgImm + 1
	CpuSameTx       = CpuDiffInst + 1
	CpuIsPadding    = CpuSameTx + 1
	CpuNumCols      = CpuIsPadding + 1
)

// selectorColumn maps every opcode to its selector column
var selectorColumn = func() [vm.NumOpcodes]int {
	var cols [vm.NumOpcodes]int
	for op := range cols {
		cols[op] = CpuOpSelectors + op
	}
	return cols
}()

// SelectorColumn returns the CPU selector column of op
func SelectorColumn(op vm.Opcode) int {
	return selectorColumn[op]
}

var cpuColumnNames = func() []string {
	var n columnNames
	n.add(CpuTx, "tx_idx")
	n.add(CpuEnv, "env_idx")
	n.add(CpuCallScCnt, "call_sc_cnt")
	n.group(CpuAddrStorage, "addr_storage", core.WordLength)
	n.group(CpuAddrCode, "addr_code", core.WordLength)
	n.add(CpuPc, "pc")
	n.add(CpuClk, "clk")
	n.add(CpuTp, "tp")
	n.add(CpuInst, "instruction")
	n.add(CpuOpcode, "opcode")
	n.add(CpuOp1Imm, "op1_imm")
	n.add(CpuImmVal, "imm_val")
	n.group(CpuRegs, "reg", core.NumRegisters)
	n.add(CpuOp0, "op0")
	n.add(CpuOp1, "op1")
	n.add(CpuDst, "dst")
	n.add(CpuAux0, "aux0")
	n.add(CpuAux1, "aux1")
	n.group(CpuSelOp0, "sel_op0", core.NumRegisters)
	n.group(CpuSelOp1, "sel_op1", core.NumRegisters)
	n.group(CpuSelDst, "sel_dst", core.NumRegisters)
	n.add(CpuIsExtLine, "is_ext_line")
	n.add(CpuExtCnt, "ext_cnt")
	n.add(CpuStorageIdx, "storage_access_idx")
	n.group(CpuWord, "word", core.WordLength)
	for op := 0; op < vm.NumOpcodes; op++ {
		n.add(CpuOpSelectors+op, "s_"+vm.Opcode(op).String())
	}
	n.add(CpuIsEntrySc, "is_entry_sc")
	n.add(CpuIsSccallExt, "is_sccall_ext_line")
	n.add(CpuSccallCaller, "is_sccall_tape_caller")
	n.add(CpuSccallCallee, "is_sccall_tape_callee")
	n.add(CpuIsStorageExt, "is_storage_ext_line")
	n.add(CpuSccallEnd, "filter_sccall_end")
	n.add(CpuTapeLooking, "filter_tape_looking")
	n.add(CpuProgLooking, "filter_looking_prog")
	n.add(CpuProgImm, "filter_looking_prog_imm")
	n.add(CpuDiffInst, "is_next_line_diff_inst")
	n.add(CpuSameTx, "is_next_line_same_tx")
	n.add(CpuIsPadding, "is_padding")
	return n
}()

// GenerateCpu builds the CPU table from the steps of every transaction
func GenerateCpu(txs []*vm.Trace) *Table {
	n := 0
	for _, tx := range txs {
		n += len(tx.Steps)
	}
	t := NewTable(Cpu, cpuColumnNames, rowsFor(n))

	row := 0
	for _, tx := range txs {
		for i := range tx.Steps {
			writeCpuRow(t, row, &tx.Steps[i])
			row++
		}
	}

	if n > 0 {
		t.padWith(n, func(r int) { padCpuRow(t, r, n-1) })
	} else {
		t.padWith(0, func(r int) { padCpuRow(t, r, -1) })
	}
	return t
}

func writeCpuRow(t *Table, row int, s *vm.Step) {
	t.SetU64(row, CpuTx, s.TxIdx)
	t.SetU64(row, CpuEnv, s.EnvIdx)
	t.SetU64(row, CpuCallScCnt, s.CallScCnt)
	t.SetSlice(row, CpuAddrStorage, s.AddrStorage[:])
	t.SetSlice(row, CpuAddrCode, s.AddrCode[:])
	t.SetU64(row, CpuPc, s.Pc)
	t.SetU64(row, CpuClk, s.Clk)
	t.SetU64(row, CpuTp, s.Tp)
	t.SetU64(row, CpuInst, s.Instruction)
	t.SetU64(row, CpuOpcode, s.Opcode.BitMask())
	t.SetBool(row, CpuOp1Imm, s.Op1Imm)
	t.Set(row, CpuImmVal, s.ImmVal)
	t.SetSlice(row, CpuRegs, s.Regs[:])
	t.Set(row, CpuOp0, s.Op0)
	t.Set(row, CpuOp1, s.Op1)
	t.Set(row, CpuDst, s.Dst)
	t.Set(row, CpuAux0, s.Aux0)
	t.Set(row, CpuAux1, s.Aux1)
	for r := 0; r < core.NumRegisters; r++ {
		t.SetBool(row, CpuSelOp0+r, s.Selector.Op0[r])
		t.SetBool(row, CpuSelOp1+r, s.Selector.Op1[r])
		t.SetBool(row, CpuSelDst+r, s.Selector.Dst[r])
	}
	t.SetBool(row, CpuIsExtLine, s.IsExtLine)
	t.SetU64(row, CpuExtCnt, s.ExtCnt)
	t.SetU64(row, CpuStorageIdx, s.StorageAccessIdx)
	t.SetSlice(row, CpuWord, s.Word[:])
	t.Set(row, SelectorColumn(s.Opcode), field.One)

	f := s.Filters()
	t.SetBool(row, CpuIsEntrySc, f.IsEntrySc)
	t.SetBool(row, CpuIsSccallExt, f.IsSccallExtLine)
	t.SetBool(row, CpuSccallCaller, f.IsSccallTapeCaller)
	t.SetBool(row, CpuSccallCallee, f.IsSccallTapeCallee)
	t.SetBool(row, CpuIsStorageExt, f.IsStorageExtLine)
	t.SetBool(row, CpuSccallEnd, f.FilterSccallEnd)
	t.SetBool(row, CpuTapeLooking, f.FilterTapeLooking)
	t.SetBool(row, CpuProgLooking, f.FilterLookingProg)
	t.SetBool(row, CpuProgImm, f.FilterLookingProgImm)
	t.SetBool(row, CpuDiffInst, s.IsNextLineDiffInst())
	t.SetBool(row, CpuSameTx, s.IsNextLineSameTx())
}

// padCpuRow replicates the last real row as an idle END row. With no
// real row the padding starts from zero.
func padCpuRow(t *Table, row, last int) {
	if last >= 0 {
		t.copyRow(row, last)
	}
	t.Set(row, CpuIsExtLine, field.Zero)
	t.Set(row, CpuExtCnt, field.Zero)
	t.SetU64(row, CpuOpcode, vm.END.BitMask())
	for op := 0; op < vm.NumOpcodes; op++ {
		t.Set(row, CpuOpSelectors+op, field.Zero)
	}
	t.Set(row, SelectorColumn(vm.END), field.One)
	for _, col := range []int{
		CpuIsSccallExt, CpuSccallCaller, CpuSccallCallee, CpuIsStorageExt,
		CpuSccallEnd, CpuTapeLooking, CpuProgLooking, CpuProgImm,
	} {
		t.Set(row, col, field.Zero)
	}
	t.Set(row, CpuIsEntrySc, field.One)
	t.Set(row, CpuDiffInst, field.One)
	t.Set(row, CpuSameTx, field.Zero)
	t.Set(row, CpuIsPadding, field.One)
}
