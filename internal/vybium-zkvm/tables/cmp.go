package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// Cmp table columns
const (
	CmpOp0 = iota
	CmpOp1
	CmpGte
	CmpAbsDiff
	CmpFilterLookingRc
	CmpIsPadding
	CmpNumCols
)

var cmpColumnNames = func() []string {
	var n columnNames
	n.add(CmpOp0, "op0")
	n.add(CmpOp1, "op1")
	n.add(CmpGte, "gte")
	n.add(CmpAbsDiff, "abs_diff")
	n.add(CmpFilterLookingRc, "filter_looking_rc")
	n.add(CmpIsPadding, "is_padding")
	return n
}()

// GenerateCmp builds the Cmp table from GTE operands
func GenerateCmp(txs []*vm.Trace) *Table {
	var events []vm.CmpEvent
	for _, tx := range txs {
		events = append(events, tx.Cmp...)
	}
	t := NewTable(Cmp, cmpColumnNames, rowsFor(len(events)))

	for i, ev := range events {
		t.SetU64(i, CmpOp0, ev.Op0)
		t.SetU64(i, CmpOp1, ev.Op1)
		t.SetBool(i, CmpGte, ev.Gte)
		t.SetU64(i, CmpAbsDiff, ev.Diff)
		t.Set(i, CmpFilterLookingRc, field.One)
	}
	t.padWith(len(events), func(r int) { t.Set(r, CmpIsPadding, field.One) })
	return t
}
