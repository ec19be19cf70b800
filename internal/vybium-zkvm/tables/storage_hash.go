package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// StorageHash table columns. Each access spans TreeHeight rows, one per
// layer from the root's children (layer 1) down to the leaf (layer 256).
const (
	ShIdx = iota
	ShLayer
	ShLayerBit
	ShAddrAcc
	ShIsLayer64
	ShIsLayer128
	ShIsLayer192
	ShIsLayer256
	ShAddr
	ShContract    = ShAddr + core.WordLength
	ShKey         = ShContract + core.WordLength
	ShValue       = ShKey + core.WordLength
	ShPath        = ShValue + core.WordLength
	ShSibling     = ShPath + core.WordLength
	ShDelta       = ShSibling + core.WordLength
	ShRounds      = ShDelta + core.WordLength
	ShInput       = ShRounds + roundInput
	ShOutput      = ShRounds + roundOutput
	ShLookingLeaf = ShRounds + RoundStateCols
	ShIsPadding   = ShLookingLeaf + 1
	ShNumCols     = ShIsPadding + 1
)

var storageHashColumnNames = func() []string {
	var n columnNames
	n.add(ShIdx, "idx_storage")
	n.add(ShLayer, "layer")
	n.add(ShLayerBit, "layer_bit")
	n.add(ShAddrAcc, "addr_acc")
	n.add(ShIsLayer64, "is_layer64")
	n.add(ShIsLayer128, "is_layer128")
	n.add(ShIsLayer192, "is_layer192")
	n.add(ShIsLayer256, "is_layer256")
	n.group(ShAddr, "addr", core.WordLength)
	n.group(ShContract, "contract", core.WordLength)
	n.group(ShKey, "key", core.WordLength)
	n.group(ShValue, "value", core.WordLength)
	n.group(ShPath, "path", core.WordLength)
	n.group(ShSibling, "sibling", core.WordLength)
	n.group(ShDelta, "delta", core.WordLength)
	addRoundStateNames(&n, ShRounds)
	n.add(ShLookingLeaf, "filter_looking_leaf")
	n.add(ShIsPadding, "is_padding")
	return n
}()

var layerFlag = map[int]int{64: ShIsLayer64, 128: ShIsLayer128, 192: ShIsLayer192, 256: ShIsLayer256}

// GenerateStorageHash builds the StorageHash table from every storage
// access of the batch, in access order
func GenerateStorageHash(txs []*vm.Trace) *Table {
	var accesses []vm.StorageAccess
	for _, tx := range txs {
		accesses = append(accesses, tx.Storage...)
	}
	n := len(accesses) * core.TreeHeight
	t := NewTable(StorageHash, storageHashColumnNames, rowsFor(n))

	row := 0
	for i := range accesses {
		writeStoragePath(t, row, &accesses[i])
		row += core.TreeHeight
	}

	var frozen field.Element
	if n > 0 {
		frozen = t.Get(n-1, ShAddrAcc)
	}
	t.padWith(n, func(r int) {
		writeRoundStates(t, r, ShRounds, &zeroPermutation)
		t.Set(r, ShAddrAcc, frozen)
		t.Set(r, ShIsPadding, field.One)
	})
	return t
}

// writeStoragePath writes the TreeHeight rows of one access. Row L holds
// the path node at depth L, its sibling and their parent at depth L-1 as
// the permutation output. Rows are folded from the leaf up.
func writeStoragePath(t *Table, first int, acc *vm.StorageAccess) {
	var addrAcc [core.TreeHeight + 1]field.Element
	for layer := 1; layer <= core.TreeHeight; layer++ {
		bit := field.New(acc.TreeKey.Bit(layer - 1))
		if (layer-1)%core.LayerClassSize == 0 {
			addrAcc[layer] = bit
		} else {
			addrAcc[layer] = addrAcc[layer-1].Add(addrAcc[layer-1]).Add(bit)
		}
	}

	path := acc.Leaf
	for layer := core.TreeHeight; layer >= 1; layer-- {
		row := first + layer - 1
		bit := acc.TreeKey.Bit(layer - 1)
		sibling := acc.Siblings[layer-1]

		t.SetU64(row, ShIdx, acc.Idx)
		t.SetU64(row, ShLayer, uint64(layer))
		t.SetU64(row, ShLayerBit, bit)
		t.Set(row, ShAddrAcc, addrAcc[layer])
		if col, ok := layerFlag[layer]; ok {
			t.Set(row, col, field.One)
		}
		t.SetSlice(row, ShAddr, acc.TreeKey[:])
		t.SetSlice(row, ShContract, acc.Contract[:])
		t.SetSlice(row, ShKey, acc.Key[:])
		t.SetSlice(row, ShValue, acc.Value[:])
		t.SetSlice(row, ShPath, path[:])
		t.SetSlice(row, ShSibling, sibling[:])

		var state poseidon.State
		state[0] = field.One
		bitF := field.New(bit)
		for k := 0; k < core.WordLength; k++ {
			delta := bitF.Mul(sibling[k].Sub(path[k]))
			t.Set(row, ShDelta+k, delta)
			state[4+k] = path[k].Add(delta)
			state[8+k] = sibling[k].Sub(delta)
		}
		rs := poseidon.Trace(state)
		writeRoundStates(t, row, ShRounds, &rs)

		if layer == core.TreeHeight {
			t.SetBool(row, ShLookingLeaf, acc.LeafHashed)
		}
		path = core.WordFromSlice(rs.Output[:core.WordLength])
	}
}
