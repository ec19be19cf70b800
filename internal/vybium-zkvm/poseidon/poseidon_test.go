package poseidon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

func sequentialState() State {
	var s State
	for i := range s {
		s[i] = field.New(uint64(i))
	}
	return s
}

func TestRoundConstantsCanonical(t *testing.T) {
	seen := make(map[field.Element]bool)
	for _, c := range roundConstants {
		require.Less(t, c.Value(), uint64(field.P))
		seen[c] = true
	}
	// collisions in 360 samples of a 64-bit field would point at a broken XOF read
	assert.Len(t, seen, len(roundConstants))
}

func TestPermuteDeterministic(t *testing.T) {
	in := sequentialState()
	a := Permute(in)
	b := Permute(in)
	assert.Equal(t, a, b)
	assert.NotEqual(t, in, a)
}

func TestTraceMatchesPermute(t *testing.T) {
	in := sequentialState()
	rs := Trace(in)

	assert.Equal(t, in, rs.Input)
	assert.Equal(t, Permute(in), rs.Output)

	// the first recorded partial S-box input is lane 0 of the state entering
	// the partial rounds plus that round's constant
	state := in
	for r := 0; r < HalfFullRounds; r++ {
		addConstants(&state, r)
		for i := range state {
			state[i] = sbox(state[i])
		}
		state = mds(state)
	}
	expected := state[0].Add(roundConstants[HalfFullRounds*Width])
	assert.Equal(t, expected, rs.Partial[0])
}

func TestHashWordsKinds(t *testing.T) {
	left := core.NewWord(1, 2, 3, 4)
	right := core.NewWord(5, 6, 7, 8)

	normal, nrs := HashWords(Normal, left, right)
	variant, vrs := HashWords(Variant, left, right)

	assert.NotEqual(t, normal, variant)
	assert.True(t, nrs.Input[0].IsZero())
	assert.Equal(t, field.One, vrs.Input[0])
	assert.Equal(t, left[0], vrs.Input[4])
	assert.Equal(t, right[3], vrs.Input[11])
	assert.Equal(t, core.WordFromSlice(vrs.Output[:4]), variant)
}

func TestSpongeOverwrite(t *testing.T) {
	inputs := make([]field.Element, 10)
	for i := range inputs {
		inputs[i] = field.New(uint64(100 + i))
	}

	var s Sponge
	first := s.Absorb(inputs[:8])
	second := s.Absorb(inputs[8:])

	// lanes 2..11 of the second input carry over from the first output
	for i := 2; i < Width; i++ {
		assert.Equal(t, first.Output[i], second.Input[i])
	}
	assert.Equal(t, inputs[8], second.Input[0])
	assert.Equal(t, s.Squeeze(), HashNoPad(inputs))
}

func TestHashNoPadEmpty(t *testing.T) {
	permuted := Permute(State{})
	expected := core.WordFromSlice(permuted[:4])
	assert.Equal(t, expected, HashNoPad(nil))
}

func TestAbsorbRejectsLongChunk(t *testing.T) {
	var s Sponge
	assert.Panics(t, func() {
		s.Absorb(make([]field.Element, Rate+1))
	})
}
