package vm

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
)

// MemoryConsumer names the table that looks up a memory access
type MemoryConsumer int

const (
	// MemoryLookedByNone marks accesses no table looks up (storage, tape, sccall operands)
	MemoryLookedByNone MemoryConsumer = iota

	// MemoryLookedByCPU marks MLOAD/MSTORE/CALL/RET accesses
	MemoryLookedByCPU

	// MemoryLookedByPoseidon marks POSEIDON chunk reads and digest writes
	MemoryLookedByPoseidon
)

// MemoryEvent is one memory access
type MemoryEvent struct {
	TxIdx    uint64
	EnvIdx   uint64
	Addr     uint64
	Clk      uint64
	Opcode   Opcode
	IsWrite  bool
	Value    field.Element
	Consumer MemoryConsumer
}

// StorageAccess is one SLOAD/SSTORE with the Merkle path it touched
type StorageAccess struct {
	Idx      uint64 // starts at 1, one per access across the batch
	TxIdx    uint64
	Clk      uint64
	Opcode   Opcode
	Contract core.Address
	Key      core.Word
	TreeKey  core.Word
	PreValue core.Word
	Value    core.Word
	PreRoot  core.Word
	Root     core.Word

	// Leaf and Siblings describe the path after the access
	Leaf       core.Word
	LeafHashed bool
	Siblings   [core.TreeHeight]core.Word
}

// TapeEvent is one tape cell initialization or access
type TapeEvent struct {
	TxIdx  uint64
	Addr   uint64
	Value  field.Element
	IsInit bool
	Opcode Opcode // zero value is meaningless when IsInit is set
	Clk    uint64
}

// ScCallEvent is one cross-contract call
type ScCallEvent struct {
	TxIdx         uint64
	CallerEnv     uint64
	CalleeEnv     uint64
	CallerStorage core.Address
	CallerCode    core.Address
	CalleeStorage core.Address
	CalleeCode    core.Address
	ClkCall       uint64 // clock of the code-lookup ext line
	ClkCalleeEnd  uint64 // clock of the callee's END ext line
	Delegate      bool
}

// RangeCheckEvent is one RC instruction operand
type RangeCheckEvent struct {
	Value uint64
}

// BitwiseEvent is one AND/OR/XOR
type BitwiseEvent struct {
	Opcode Opcode
	Op0    uint64
	Op1    uint64
	Res    uint64
}

// CmpEvent is one GTE. Diff is op0-op1 when Gte, else op1-op0-1.
type CmpEvent struct {
	Op0  uint64
	Op1  uint64
	Gte  bool
	Diff uint64
}

// PoseidonConsumer names the table that looks up a permutation
type PoseidonConsumer int

const (
	// PoseidonForChunk is a POSEIDON instruction chunk
	PoseidonForChunk PoseidonConsumer = iota

	// PoseidonForStorageKey derives a storage tree key
	PoseidonForStorageKey

	// PoseidonForStorageLeaf hashes a storage leaf
	PoseidonForStorageLeaf

	// PoseidonForProgramChunk hashes program bytecode
	PoseidonForProgramChunk
)

// PoseidonEvent is one permutation
type PoseidonEvent struct {
	Consumer PoseidonConsumer
	States   poseidon.RoundStates
}

// PoseidonChunkEvent is one absorbed chunk of a POSEIDON instruction
type PoseidonChunkEvent struct {
	TxIdx    uint64
	EnvIdx   uint64
	Clk      uint64
	Op0      uint64 // source address
	Op1      uint64 // input length
	Dst      uint64 // digest address
	AccBase  uint64 // offset of this chunk's first element
	Values   [poseidon.Rate]field.Element
	Valid    int
	IsFirst  bool
	IsResult bool
	States   poseidon.RoundStates
}

// ProgramChunkEvent is one absorbed chunk of a program's bytecode hash
type ProgramChunkEvent struct {
	Address  core.Address
	StartPc  uint64
	Values   [poseidon.Rate]field.Element
	Valid    int
	IsFirst  bool
	IsResult bool
	States   poseidon.RoundStates
}

// Trace is the execution record of one transaction. It is immutable once
// returned by the engine.
type Trace struct {
	TxIdx          uint64
	Steps          []Step
	Memory         []MemoryEvent
	Storage        []StorageAccess
	Tape           []TapeEvent
	ScCalls        []ScCallEvent
	RangeChecks    []RangeCheckEvent
	Bitwise        []BitwiseEvent
	Cmp            []CmpEvent
	Poseidon       []PoseidonEvent
	PoseidonChunks []PoseidonChunkEvent
	RootBefore     core.Word
	RootAfter      core.Word
}

// Batch is the execution record of consecutive transactions
type Batch struct {
	Txs           []*Trace
	Programs      []*Program // every program executed, ordered by address
	ProgramChunks []ProgramChunkEvent
	RootBefore    core.Word
	RootAfter     core.Word
}

// ProgramHash hashes a program's bytecode and returns the chunk log
func ProgramHash(prog *Program) (core.Word, []ProgramChunkEvent) {
	var sponge poseidon.Sponge
	var events []ProgramChunkEvent

	code := prog.Code
	for start := 0; start == 0 || start < len(code); start += poseidon.Rate {
		end := start + poseidon.Rate
		if end > len(code) {
			end = len(code)
		}
		ev := ProgramChunkEvent{
			Address: prog.Address,
			StartPc: uint64(start),
			Valid:   end - start,
			IsFirst: start == 0,
		}
		copy(ev.Values[:], code[start:end])
		ev.States = sponge.Absorb(code[start:end])
		ev.IsResult = end >= len(code)
		events = append(events, ev)
	}
	return sponge.Squeeze(), events
}
