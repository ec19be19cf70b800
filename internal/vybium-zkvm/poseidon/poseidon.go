// Package poseidon implements the width-12 Poseidon permutation over the
// Goldilocks field used by the hashing opcodes, the storage tree and the
// program hash. Every permutation can be traced: the table generators need
// each S-box input materialized as a column.
package poseidon

import (
	"encoding/binary"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

const (
	// Width is the permutation state size
	Width = 12

	// Rate is the number of state elements absorbed per permutation
	Rate = 8

	// HalfFullRounds is the number of full rounds before and after the partial rounds
	HalfFullRounds = 4

	// PartialRounds is the number of partial rounds
	PartialRounds = 22

	// TotalRounds is the number of rounds of one permutation
	TotalRounds = 2*HalfFullRounds + PartialRounds

	constantsDomain = "vybium-zkvm/poseidon-goldilocks/round-constants"
)

var (
	// mdsCirc and mdsDiag define the circulant-plus-diagonal MDS layer
	mdsCirc = [Width]uint64{17, 15, 41, 16, 2, 28, 13, 13, 39, 18, 34, 20}
	mdsDiag = [Width]uint64{8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	roundConstants = deriveRoundConstants()
)

// State is one permutation state
type State [Width]field.Element

// RoundStates captures every intermediate state of one permutation
type RoundStates struct {
	Input State

	// Full0 holds the state after the constant layer of first-half rounds 1..3
	Full0 [HalfFullRounds - 1]State

	// Partial holds the S-box input of each partial round
	Partial [PartialRounds]field.Element

	// Full1 holds the state after the constant layer of second-half rounds 0..3
	Full1 [HalfFullRounds]State

	Output State
}

// deriveRoundConstants expands a fixed domain string with SHAKE256 and
// rejection-samples canonical field elements.
func deriveRoundConstants() [TotalRounds * Width]field.Element {
	var out [TotalRounds * Width]field.Element

	xof := sha3.NewShake256()
	_, _ = xof.Write([]byte(constantsDomain))

	var buf [8]byte
	for i := 0; i < len(out); {
		_, _ = xof.Read(buf[:])
		v := binary.LittleEndian.Uint64(buf[:])
		if v >= field.P {
			continue
		}
		out[i] = field.New(v)
		i++
	}
	return out
}

func sbox(x field.Element) field.Element {
	x2 := x.Mul(x)
	x3 := x2.Mul(x)
	x4 := x2.Mul(x2)
	return x4.Mul(x3)
}

func addConstants(state *State, round int) {
	for i := 0; i < Width; i++ {
		state[i] = state[i].Add(roundConstants[round*Width+i])
	}
}

func mds(state State) State {
	var out State
	for r := 0; r < Width; r++ {
		acc := state[r].Mul(field.New(mdsDiag[r]))
		for i := 0; i < Width; i++ {
			acc = acc.Add(state[(i+r)%Width].Mul(field.New(mdsCirc[i])))
		}
		out[r] = acc
	}
	return out
}

// Trace runs the permutation and records its round states
func Trace(input State) RoundStates {
	rs := RoundStates{Input: input}
	state := input
	round := 0

	for r := 0; r < HalfFullRounds; r++ {
		addConstants(&state, round)
		if r > 0 {
			rs.Full0[r-1] = state
		}
		for i := range state {
			state[i] = sbox(state[i])
		}
		state = mds(state)
		round++
	}

	for r := 0; r < PartialRounds; r++ {
		addConstants(&state, round)
		rs.Partial[r] = state[0]
		state[0] = sbox(state[0])
		state = mds(state)
		round++
	}

	for r := 0; r < HalfFullRounds; r++ {
		addConstants(&state, round)
		rs.Full1[r] = state
		for i := range state {
			state[i] = sbox(state[i])
		}
		state = mds(state)
		round++
	}

	rs.Output = state
	return rs
}

// Permute applies the permutation
func Permute(input State) State {
	return Trace(input).Output
}

// Kind selects the capacity marker of a two-to-one hash
type Kind int

const (
	// Normal leaves the capacity zero (leaves, tree keys)
	Normal Kind = iota

	// Variant sets state[0] = 1 (internal tree nodes)
	Variant
)

// HashWords hashes two words into one: state = cap ‖ left ‖ right
func HashWords(kind Kind, left, right core.Word) (core.Word, RoundStates) {
	var state State
	if kind == Variant {
		state[0] = field.One
	}
	copy(state[4:8], left[:])
	copy(state[8:12], right[:])

	rs := Trace(state)
	return core.WordFromSlice(rs.Output[:core.WordLength]), rs
}

// Sponge absorbs field elements in overwrite mode, eight at a time
type Sponge struct {
	state State
}

// Absorb overwrites the rate with chunk (at most Rate elements) and
// permutes. Lanes past len(chunk) keep their previous value.
func (s *Sponge) Absorb(chunk []field.Element) RoundStates {
	if len(chunk) > Rate {
		panic("poseidon: chunk longer than rate")
	}
	copy(s.state[:len(chunk)], chunk)
	rs := Trace(s.state)
	s.state = rs.Output
	return rs
}

// State returns the current sponge state
func (s *Sponge) State() State {
	return s.state
}

// Squeeze returns the first four elements of the state
func (s *Sponge) Squeeze() core.Word {
	return core.WordFromSlice(s.state[:core.WordLength])
}

// HashNoPad hashes inputs with the sponge. Empty input still runs one
// permutation over the zero state.
func HashNoPad(inputs []field.Element) core.Word {
	var s Sponge
	if len(inputs) == 0 {
		s.Absorb(nil)
		return s.Squeeze()
	}
	for start := 0; start < len(inputs); start += Rate {
		end := start + Rate
		if end > len(inputs) {
			end = len(inputs)
		}
		s.Absorb(inputs[start:end])
	}
	return s.Squeeze()
}
