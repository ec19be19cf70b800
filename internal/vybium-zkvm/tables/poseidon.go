package tables

import (
	"strconv"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// Offsets of a permutation record within a block of columns
const (
	roundInput   = 0
	roundFull0   = roundInput + poseidon.Width
	roundPartial = roundFull0 + (poseidon.HalfFullRounds-1)*poseidon.Width
	roundFull1   = roundPartial + poseidon.PartialRounds
	roundOutput  = roundFull1 + poseidon.HalfFullRounds*poseidon.Width

	// RoundStateCols is the width of a permutation record
	RoundStateCols = roundOutput + poseidon.Width
)

// Poseidon table columns
const (
	PosInput              = roundInput
	PosOutput             = roundOutput
	PosFilterChunk        = RoundStateCols
	PosFilterStorageKey   = PosFilterChunk + 1
	PosFilterStorageLeaf  = PosFilterStorageKey + 1
	PosFilterProgramChunk = PosFilterStorageLeaf + 1
	PosIsPadding          = PosFilterProgramChunk + 1
	PosNumCols            = PosIsPadding + 1
)

func addRoundStateNames(n *columnNames, base int) {
	n.group(base+roundInput, "input", poseidon.Width)
	for r := 1; r < poseidon.HalfFullRounds; r++ {
		n.group(base+roundFull0+(r-1)*poseidon.Width, "full_0_"+strconv.Itoa(r), poseidon.Width)
	}
	n.group(base+roundPartial, "partial", poseidon.PartialRounds)
	for r := 0; r < poseidon.HalfFullRounds; r++ {
		n.group(base+roundFull1+r*poseidon.Width, "full_1_"+strconv.Itoa(r), poseidon.Width)
	}
	n.group(base+roundOutput, "output", poseidon.Width)
}

// writeRoundStates stores a permutation record at columns [base, base+RoundStateCols)
func writeRoundStates(t *Table, row, base int, rs *poseidon.RoundStates) {
	t.SetSlice(row, base+roundInput, rs.Input[:])
	for r := range rs.Full0 {
		t.SetSlice(row, base+roundFull0+r*poseidon.Width, rs.Full0[r][:])
	}
	t.SetSlice(row, base+roundPartial, rs.Partial[:])
	for r := range rs.Full1 {
		t.SetSlice(row, base+roundFull1+r*poseidon.Width, rs.Full1[r][:])
	}
	t.SetSlice(row, base+roundOutput, rs.Output[:])
}

var poseidonColumnNames = func() []string {
	var n columnNames
	addRoundStateNames(&n, 0)
	n.add(PosFilterChunk, "filter_looked_for_chunk")
	n.add(PosFilterStorageKey, "filter_looked_for_storage_key")
	n.add(PosFilterStorageLeaf, "filter_looked_for_storage_leaf")
	n.add(PosFilterProgramChunk, "filter_looked_for_program_chunk")
	n.add(PosIsPadding, "is_padding")
	return n
}()

var poseidonFilter = map[vm.PoseidonConsumer]int{
	vm.PoseidonForChunk:        PosFilterChunk,
	vm.PoseidonForStorageKey:   PosFilterStorageKey,
	vm.PoseidonForStorageLeaf:  PosFilterStorageLeaf,
	vm.PoseidonForProgramChunk: PosFilterProgramChunk,
}

// zeroPermutation is the padding record: the permutation of the zero state
var zeroPermutation = poseidon.Trace(poseidon.State{})

// GeneratePoseidon builds the Poseidon table from the permutation logs of
// every transaction followed by the program chunk permutations
func GeneratePoseidon(txs []*vm.Trace, programChunks []vm.ProgramChunkEvent) *Table {
	var events []vm.PoseidonEvent
	for _, tx := range txs {
		events = append(events, tx.Poseidon...)
	}
	for _, ch := range programChunks {
		events = append(events, vm.PoseidonEvent{Consumer: vm.PoseidonForProgramChunk, States: ch.States})
	}

	t := NewTable(Poseidon, poseidonColumnNames, rowsFor(len(events)))
	for i := range events {
		writeRoundStates(t, i, 0, &events[i].States)
		t.Set(i, poseidonFilter[events[i].Consumer], field.One)
	}
	t.padWith(len(events), func(r int) {
		writeRoundStates(t, r, 0, &zeroPermutation)
		t.Set(r, PosIsPadding, field.One)
	})
	return t
}
