package tables

import (
	"sort"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// Memory table columns
const (
	MemTx = iota
	MemEnv
	MemAddr
	MemClk
	MemOpcode
	MemIsWrite
	MemValue
	MemRcValue
	MemFilterLookingRc
	MemFilterForCpu
	MemFilterForPoseidon
	MemIsPadding
	MemNumCols
)

var memColumnNames = func() []string {
	var n columnNames
	n.add(MemTx, "tx_idx")
	n.add(MemEnv, "env_idx")
	n.add(MemAddr, "addr")
	n.add(MemClk, "clk")
	n.add(MemOpcode, "opcode")
	n.add(MemIsWrite, "is_write")
	n.add(MemValue, "value")
	n.add(MemRcValue, "rc_value")
	n.add(MemFilterLookingRc, "filter_looking_rc")
	n.add(MemFilterForCpu, "filter_looked_for_main")
	n.add(MemFilterForPoseidon, "filter_looked_for_poseidon")
	n.add(MemIsPadding, "is_padding")
	return n
}()

// sortedMemory returns every memory event of the batch ordered by
// (tx, env, addr, clk), keeping access order within a clock
func sortedMemory(txs []*vm.Trace) []vm.MemoryEvent {
	var events []vm.MemoryEvent
	for _, tx := range txs {
		events = append(events, tx.Memory...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.TxIdx != b.TxIdx {
			return a.TxIdx < b.TxIdx
		}
		if a.EnvIdx != b.EnvIdx {
			return a.EnvIdx < b.EnvIdx
		}
		if a.Addr != b.Addr {
			return a.Addr < b.Addr
		}
		return a.Clk < b.Clk
	})
	return events
}

// memoryRangeCheck returns the range-checked gap between event i and its
// predecessor: the clock gap for the same cell, the address gap minus one
// for the next cell of the same environment.
func memoryRangeCheck(events []vm.MemoryEvent, i int) (uint64, bool) {
	if i == 0 {
		return 0, false
	}
	prev, cur := events[i-1], events[i]
	if prev.TxIdx != cur.TxIdx || prev.EnvIdx != cur.EnvIdx {
		return 0, false
	}
	if prev.Addr == cur.Addr {
		return cur.Clk - prev.Clk, true
	}
	return cur.Addr - prev.Addr - 1, true
}

// GenerateMemory builds the Memory table
func GenerateMemory(txs []*vm.Trace) *Table {
	events := sortedMemory(txs)
	t := NewTable(Memory, memColumnNames, rowsFor(len(events)))

	for i, ev := range events {
		t.SetU64(i, MemTx, ev.TxIdx)
		t.SetU64(i, MemEnv, ev.EnvIdx)
		t.SetU64(i, MemAddr, ev.Addr)
		t.SetU64(i, MemClk, ev.Clk)
		t.SetU64(i, MemOpcode, ev.Opcode.BitMask())
		t.SetBool(i, MemIsWrite, ev.IsWrite)
		t.Set(i, MemValue, ev.Value)
		if rc, ok := memoryRangeCheck(events, i); ok {
			t.SetU64(i, MemRcValue, rc)
			t.Set(i, MemFilterLookingRc, field.One)
		}
		t.SetBool(i, MemFilterForCpu, ev.Consumer == vm.MemoryLookedByCPU)
		t.SetBool(i, MemFilterForPoseidon, ev.Consumer == vm.MemoryLookedByPoseidon)
	}

	last := len(events) - 1
	t.padWith(len(events), func(r int) {
		if last >= 0 {
			t.copyRow(r, last)
		}
		t.Set(r, MemFilterLookingRc, field.Zero)
		t.Set(r, MemFilterForCpu, field.Zero)
		t.Set(r, MemFilterForPoseidon, field.Zero)
		t.Set(r, MemIsPadding, field.One)
	})
	return t
}
