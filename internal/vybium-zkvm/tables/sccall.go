package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// ScCall table columns
const (
	ScTx = iota
	ScCallerEnv
	ScCalleeEnv
	ScCallerStorage
	ScCallerCode   = ScCallerStorage + core.WordLength
	ScCalleeStore  = ScCallerCode + core.WordLength
	ScCalleeCode   = ScCalleeStore + core.WordLength
	ScClkCall      = ScCalleeCode + core.WordLength
	ScClkCalleeEnd = ScClkCall + 1
	ScDelegate     = ScClkCalleeEnd + 1
	ScIsPadding    = ScDelegate + 1
	ScNumCols      = ScIsPadding + 1
)

var scCallColumnNames = func() []string {
	var n columnNames
	n.add(ScTx, "tx_idx")
	n.add(ScCallerEnv, "caller_env_idx")
	n.add(ScCalleeEnv, "callee_env_idx")
	n.group(ScCallerStorage, "caller_storage", core.WordLength)
	n.group(ScCallerCode, "caller_code", core.WordLength)
	n.group(ScCalleeStore, "callee_storage", core.WordLength)
	n.group(ScCalleeCode, "callee_code", core.WordLength)
	n.add(ScClkCall, "clk_caller_call")
	n.add(ScClkCalleeEnd, "clk_callee_end")
	n.add(ScDelegate, "is_delegate")
	n.add(ScIsPadding, "is_padding")
	return n
}()

// GenerateScCall builds one row per cross-contract call
func GenerateScCall(txs []*vm.Trace) *Table {
	var events []vm.ScCallEvent
	for _, tx := range txs {
		events = append(events, tx.ScCalls...)
	}
	t := NewTable(ScCall, scCallColumnNames, rowsFor(len(events)))

	for i, ev := range events {
		t.SetU64(i, ScTx, ev.TxIdx)
		t.SetU64(i, ScCallerEnv, ev.CallerEnv)
		t.SetU64(i, ScCalleeEnv, ev.CalleeEnv)
		t.SetSlice(i, ScCallerStorage, ev.CallerStorage[:])
		t.SetSlice(i, ScCallerCode, ev.CallerCode[:])
		t.SetSlice(i, ScCalleeStore, ev.CalleeStorage[:])
		t.SetSlice(i, ScCalleeCode, ev.CalleeCode[:])
		t.SetU64(i, ScClkCall, ev.ClkCall)
		t.SetU64(i, ScClkCalleeEnd, ev.ClkCalleeEnd)
		t.SetBool(i, ScDelegate, ev.Delegate)
	}
	t.padWith(len(events), func(r int) { t.Set(r, ScIsPadding, field.One) })
	return t
}
