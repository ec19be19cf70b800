// Package core holds the primitive types shared by the execution engine,
// the table generators and the storage tree.
package core

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
)

const (
	// NumRegisters is the size of the general-purpose register file
	NumRegisters = 16

	// FramePointerRegister is used by CALL/RET for the saved return pc and fp
	FramePointerRegister = NumRegisters - 1

	// WordLength is the number of field elements in a Word
	WordLength = 4

	// TreeHeight is the depth of the storage Merkle tree
	TreeHeight = 256

	// LayerClassSize is the number of tree layers covered by one Word limb
	LayerClassSize = 64

	// U32Limit bounds memory addresses and u32 builtin operands
	U32Limit uint64 = 1 << 32
)

// Word is a 4-limb value: storage keys, values, tree nodes and addresses
type Word [WordLength]field.Element

// Address identifies a contract (storage) or a program (code)
type Address = Word

// ZeroWord is the all-zero word
var ZeroWord = Word{field.Zero, field.Zero, field.Zero, field.Zero}

// NewWord builds a Word from canonical limb values
func NewWord(a, b, c, d uint64) Word {
	return Word{field.New(a), field.New(b), field.New(c), field.New(d)}
}

// WordFromSlice copies the first four elements of s into a Word
func WordFromSlice(s []field.Element) Word {
	var w Word
	copy(w[:], s)
	return w
}

// IsZero reports whether every limb is zero
func (w Word) IsZero() bool {
	for _, limb := range w {
		if !limb.IsZero() {
			return false
		}
	}
	return true
}

// Values returns the canonical limb values
func (w Word) Values() [WordLength]uint64 {
	var out [WordLength]uint64
	for i, limb := range w {
		out[i] = limb.Value()
	}
	return out
}

// String renders the word as hex limbs
func (w Word) String() string {
	v := w.Values()
	return fmt.Sprintf("[%#x %#x %#x %#x]", v[0], v[1], v[2], v[3])
}

// Bit returns the i-th bit of the word in tree-path order: limb 0 first,
// most significant bit first within a limb.
func (w Word) Bit(i int) uint64 {
	limb := w[i/LayerClassSize].Value()
	return (limb >> (LayerClassSize - 1 - i%LayerClassSize)) & 1
}

// Bool converts a boolean to 0/1 in the field
func Bool(b bool) field.Element {
	if b {
		return field.One
	}
	return field.Zero
}

// NegOne is p-1
var NegOne = field.Zero.Sub(field.One)

// FromInt maps a signed offset into the field (negative values wrap mod p)
func FromInt(v int64) field.Element {
	if v >= 0 {
		return field.New(uint64(v))
	}
	return field.Zero.Sub(field.New(uint64(-v)))
}

// Less orders words limb by limb
func (w Word) Less(o Word) bool {
	a, b := w.Values(), o.Values()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
