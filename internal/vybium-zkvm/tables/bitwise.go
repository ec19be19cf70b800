package tables

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// BitwiseLimbs is the number of byte limbs of a u32 operand
const BitwiseLimbs = 4

// Bitwise table columns
const (
	BitTag = iota
	BitOp0
	BitOp1
	BitRes
	BitOp0Limbs
	BitOp1Limbs   = BitOp0Limbs + BitwiseLimbs
	BitResLimbs   = BitOp1Limbs + BitwiseLimbs
	BitIsPadding  = BitResLimbs + BitwiseLimbs
	bitRawCols    = BitIsPadding + 1
	BitCompressed = bitRawCols
	BitNumCols    = BitCompressed + BitwiseLimbs
)

var bitwiseColumnNames = func() []string {
	var n columnNames
	n.add(BitTag, "tag")
	n.add(BitOp0, "op0")
	n.add(BitOp1, "op1")
	n.add(BitRes, "res")
	n.group(BitOp0Limbs, "op0_limb", BitwiseLimbs)
	n.group(BitOp1Limbs, "op1_limb", BitwiseLimbs)
	n.group(BitResLimbs, "res_limb", BitwiseLimbs)
	n.add(BitIsPadding, "is_padding")
	n.group(BitCompressed, "compress_limb", BitwiseLimbs)
	return n
}()

func byteLimb(v uint64, k int) field.Element {
	return field.New((v >> (8 * k)) & 0xff)
}

// GenerateBitwise builds the raw Bitwise table. The compressed limb
// columns are filled once the compression challenge is known.
func GenerateBitwise(txs []*vm.Trace) *PhasedTable {
	var events []vm.BitwiseEvent
	for _, tx := range txs {
		events = append(events, tx.Bitwise...)
	}
	t := NewTable(Bitwise, bitwiseColumnNames, rowsFor(len(events)))

	for i, ev := range events {
		t.SetU64(i, BitTag, ev.Opcode.BitMask())
		t.SetU64(i, BitOp0, ev.Op0)
		t.SetU64(i, BitOp1, ev.Op1)
		t.SetU64(i, BitRes, ev.Res)
		for k := 0; k < BitwiseLimbs; k++ {
			t.Set(i, BitOp0Limbs+k, byteLimb(ev.Op0, k))
			t.Set(i, BitOp1Limbs+k, byteLimb(ev.Op1, k))
			t.Set(i, BitResLimbs+k, byteLimb(ev.Res, k))
		}
	}
	t.padWith(len(events), func(r int) { t.Set(r, BitIsPadding, field.One) })

	return &PhasedTable{table: t, rawCols: bitRawCols, compress: compressBitwise}
}

// compressBitwise sets compress_k = op0_k + beta*op1_k + beta^2*res_k
func compressBitwise(t *Table, beta field.Element) {
	beta2 := beta.Mul(beta)
	for row := 0; row < t.Height(); row++ {
		for k := 0; k < BitwiseLimbs; k++ {
			v := t.Get(row, BitOp0Limbs+k).
				Add(beta.Mul(t.Get(row, BitOp1Limbs+k))).
				Add(beta2.Mul(t.Get(row, BitResLimbs+k)))
			t.Set(row, BitCompressed+k, v)
		}
	}
}
