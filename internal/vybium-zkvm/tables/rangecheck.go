package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// RangeCheck table columns
const (
	RcVal = iota
	RcLimbLo
	RcLimbHi
	RcFilterCpu
	RcFilterMemory
	RcFilterCmp
	RcIsPadding
	RcNumCols
)

var rangeCheckColumnNames = func() []string {
	var n columnNames
	n.add(RcVal, "val")
	n.add(RcLimbLo, "limb_lo")
	n.add(RcLimbHi, "limb_hi")
	n.add(RcFilterCpu, "filter_looked_for_cpu")
	n.add(RcFilterMemory, "filter_looked_for_memory")
	n.add(RcFilterCmp, "filter_looked_for_cmp")
	n.add(RcIsPadding, "is_padding")
	return n
}()

type rangeCheckRow struct {
	value  uint64
	filter int
}

// GenerateRangeCheck builds the RangeCheck table from RC operands, memory
// gaps and comparison differences
func GenerateRangeCheck(txs []*vm.Trace) *Table {
	var rows []rangeCheckRow
	for _, tx := range txs {
		for _, ev := range tx.RangeChecks {
			rows = append(rows, rangeCheckRow{ev.Value, RcFilterCpu})
		}
	}
	memory := sortedMemory(txs)
	for i := range memory {
		if v, ok := memoryRangeCheck(memory, i); ok {
			rows = append(rows, rangeCheckRow{v, RcFilterMemory})
		}
	}
	for _, tx := range txs {
		for _, ev := range tx.Cmp {
			rows = append(rows, rangeCheckRow{ev.Diff, RcFilterCmp})
		}
	}

	t := NewTable(RangeCheck, rangeCheckColumnNames, rowsFor(len(rows)))
	for i, r := range rows {
		t.SetU64(i, RcVal, r.value)
		t.SetU64(i, RcLimbLo, r.value&0xffff)
		t.SetU64(i, RcLimbHi, r.value>>16)
		t.Set(i, r.filter, field.One)
	}
	t.padWith(len(rows), func(r int) { t.Set(r, RcIsPadding, field.One) })
	return t
}
