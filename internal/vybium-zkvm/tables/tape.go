package tables

import (
	"sort"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// Tape table columns
const (
	TapeTx = iota
	TapeAddr
	TapeValue
	TapeOpcode
	TapeIsInit
	TapeFilterLooked
	TapeIsPadding
	TapeNumCols
)

var tapeColumnNames = func() []string {
	var n columnNames
	n.add(TapeTx, "tx_idx")
	n.add(TapeAddr, "addr")
	n.add(TapeValue, "value")
	n.add(TapeOpcode, "opcode")
	n.add(TapeIsInit, "is_init")
	n.add(TapeFilterLooked, "filter_looked")
	n.add(TapeIsPadding, "is_padding")
	return n
}()

// GenerateTape builds the Tape table ordered by (tx, addr), keeping
// access order per cell
func GenerateTape(txs []*vm.Trace) *Table {
	var events []vm.TapeEvent
	for _, tx := range txs {
		events = append(events, tx.Tape...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].TxIdx != events[j].TxIdx {
			return events[i].TxIdx < events[j].TxIdx
		}
		return events[i].Addr < events[j].Addr
	})

	t := NewTable(Tape, tapeColumnNames, rowsFor(len(events)))
	for i, ev := range events {
		t.SetU64(i, TapeTx, ev.TxIdx)
		t.SetU64(i, TapeAddr, ev.Addr)
		t.Set(i, TapeValue, ev.Value)
		t.SetBool(i, TapeIsInit, ev.IsInit)
		if !ev.IsInit {
			t.SetU64(i, TapeOpcode, ev.Opcode.BitMask())
			t.Set(i, TapeFilterLooked, field.One)
		}
	}
	t.padWith(len(events), func(r int) { t.Set(r, TapeIsPadding, field.One) })
	return t
}
