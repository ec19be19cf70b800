package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// PoseidonChunk table columns
const (
	PchTx = iota
	PchEnv
	PchClk
	PchOp0
	PchOp1
	PchDst
	PchAccBase
	PchValues
	PchIsValid   = PchValues + poseidon.Rate
	PchIsFirst   = PchIsValid + poseidon.Rate
	PchIsResult  = PchIsFirst + 1
	PchInput     = PchIsResult + 1
	PchOutput    = PchInput + poseidon.Width
	PchIsPadding = PchOutput + poseidon.Width
	PchNumCols   = PchIsPadding + 1
)

var poseidonChunkColumnNames = func() []string {
	var n columnNames
	n.add(PchTx, "tx_idx")
	n.add(PchEnv, "env_idx")
	n.add(PchClk, "clk")
	n.add(PchOp0, "op0")
	n.add(PchOp1, "op1")
	n.add(PchDst, "dst")
	n.add(PchAccBase, "acc_base")
	n.group(PchValues, "value", poseidon.Rate)
	n.group(PchIsValid, "is_valid", poseidon.Rate)
	n.add(PchIsFirst, "is_first")
	n.add(PchIsResult, "is_result")
	n.group(PchInput, "input", poseidon.Width)
	n.group(PchOutput, "output", poseidon.Width)
	n.add(PchIsPadding, "is_padding")
	return n
}()

// GeneratePoseidonChunk builds one row per chunk absorbed by a POSEIDON
// instruction
func GeneratePoseidonChunk(txs []*vm.Trace) *Table {
	var events []vm.PoseidonChunkEvent
	for _, tx := range txs {
		events = append(events, tx.PoseidonChunks...)
	}
	t := NewTable(PoseidonChunk, poseidonChunkColumnNames, rowsFor(len(events)))

	for i, ev := range events {
		t.SetU64(i, PchTx, ev.TxIdx)
		t.SetU64(i, PchEnv, ev.EnvIdx)
		t.SetU64(i, PchClk, ev.Clk)
		t.SetU64(i, PchOp0, ev.Op0)
		t.SetU64(i, PchOp1, ev.Op1)
		t.SetU64(i, PchDst, ev.Dst)
		t.SetU64(i, PchAccBase, ev.AccBase)
		t.SetSlice(i, PchValues, ev.Values[:])
		for k := 0; k < poseidon.Rate; k++ {
			t.SetBool(i, PchIsValid+k, k < ev.Valid)
		}
		t.SetBool(i, PchIsFirst, ev.IsFirst)
		t.SetBool(i, PchIsResult, ev.IsResult)
		t.SetSlice(i, PchInput, ev.States.Input[:])
		t.SetSlice(i, PchOutput, ev.States.Output[:])
	}
	t.padWith(len(events), func(r int) { t.Set(r, PchIsPadding, field.One) })
	return t
}
