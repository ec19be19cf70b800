package ctl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

var (
	contractA = core.NewWord(0xA, 0, 0, 0)
	contractB = core.NewWord(0xB, 0, 0, 0)
	callerC   = core.NewWord(0xC, 0, 0, 0)
)

// caller touches every table; the subroutine at pc 30 runs the builtins
const callerSource = `
	mstore r15 -2 r15 ; pc 0
	call 30           ; pc 2
	mov r2 100        ; pc 4
	mov r14 0xB       ; pc 6
	mstore r2 0 r14   ; pc 8
	mstore r2 1 r0    ; pc 10
	mstore r2 2 r0    ; pc 12
	mstore r2 3 r0    ; pc 14
	sstore r2 r2      ; pc 16
	sload r2 r2       ; pc 17
	sccall r2 0       ; pc 18
	mov r3 200        ; pc 19
	poseidon r3 r2 4  ; pc 21
	mov r5 1          ; pc 23
	mov r6 300        ; pc 25
	tload r6 r5 2     ; pc 27
	end               ; pc 29
	mov r4 12         ; pc 30
	and r7 r4 10      ; pc 32
	gte r8 r4 10      ; pc 34
	range r4          ; pc 36
	ret               ; pc 37
`

const calleeSource = `
	tload r1 r0 8
	mov r2 50
	mstore r2 0 r1
	tstore r2 1
	end
`

func buildTables(t *testing.T, txs int) (*[tables.NumTables]*tables.Table, Betas) {
	t.Helper()
	tree, err := storage.OpenTree("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	p := vm.NewProcess(utils.DefaultConfig(), tree)
	for addr, src := range map[core.Address]string{contractA: callerSource, contractB: calleeSource} {
		prog, err := vm.ParseProgram(addr, src)
		require.NoError(t, err)
		p.Deploy(prog)
	}
	var inputs []vm.TxInput
	for i := 0; i < txs; i++ {
		inputs = append(inputs, vm.TxInput{Contract: contractA, Caller: callerC, Origin: callerC})
	}
	batch, err := p.ExecuteBatch(context.Background(), inputs)
	require.NoError(t, err)

	bitwise := tables.GenerateBitwise(batch.Txs)
	program := tables.GenerateProgram(batch.Programs, batch.Txs)
	betas := Betas{Bitwise: bitwise.Beta(), Program: program.Beta()}
	bitwise.SetCompressChallenge(betas.Bitwise)
	program.SetCompressChallenge(betas.Program)

	var all [tables.NumTables]*tables.Table
	all[tables.Cpu] = tables.GenerateCpu(batch.Txs)
	all[tables.Memory] = tables.GenerateMemory(batch.Txs)
	all[tables.Bitwise], err = bitwise.Finalize()
	require.NoError(t, err)
	all[tables.Cmp] = tables.GenerateCmp(batch.Txs)
	all[tables.RangeCheck] = tables.GenerateRangeCheck(batch.Txs)
	all[tables.Poseidon] = tables.GeneratePoseidon(batch.Txs, batch.ProgramChunks)
	all[tables.PoseidonChunk] = tables.GeneratePoseidonChunk(batch.Txs)
	all[tables.StorageHash] = tables.GenerateStorageHash(batch.Txs)
	all[tables.Tape] = tables.GenerateTape(batch.Txs)
	all[tables.ScCall] = tables.GenerateScCall(batch.Txs)
	all[tables.Program], err = program.Finalize()
	require.NoError(t, err)
	all[tables.ProgramChunk] = tables.GenerateProgramChunk(batch.ProgramChunks)
	return &all, betas
}

func TestLookupDeclarations(t *testing.T) {
	lookups := AllCrossTableLookups(Betas{Bitwise: field.New(3), Program: field.New(5)})
	require.Len(t, lookups, 17)

	names := map[string]bool{}
	for _, l := range lookups {
		assert.False(t, names[l.Name], "duplicate lookup %s", l.Name)
		names[l.Name] = true
		require.NotEmpty(t, l.Looking, l.Name)
		for _, s := range l.Looking {
			assert.Len(t, s.Columns, len(l.Looked.Columns), l.Name)
		}
	}
	assert.Len(t, lookups[6].Looking, 1+2*core.WordLength)
}

func TestColumnEval(t *testing.T) {
	tbl := tables.NewTable(tables.Cmp, []string{"a", "b"}, 2)
	tbl.SetU64(0, 0, 5)
	tbl.SetU64(0, 1, 1)

	assert.Equal(t, field.New(5), Single(0).Eval(tbl, 0))
	assert.Equal(t, field.New(6), Sum(0, 1).Eval(tbl, 0))
	assert.Equal(t, field.Zero, OneMinus(1).Eval(tbl, 0))
	assert.Equal(t, field.One, OneMinus(1).Eval(tbl, 1))
	assert.Equal(t, field.New(3), Offset(0, -2).Eval(tbl, 0))
	assert.Equal(t, core.NegOne, Offset(0, -1).Eval(tbl, 1))
	assert.Equal(t, field.New(9), Constant(field.New(9)).Eval(tbl, 1))
}

func TestColumnFold(t *testing.T) {
	tbl := tables.NewTable(tables.Cmp, []string{"a", "b"}, 1)
	tbl.SetU64(0, 0, 2)
	tbl.SetU64(0, 1, 3)

	// 2 + 10·(3+1) + 100·7
	folded := Fold(field.New(10), Single(0), Offset(1, 1), Constant(field.New(7)))
	assert.Equal(t, field.New(742), folded.Eval(tbl, 0))
	assert.Equal(t, field.New(6), Single(1).Scale(field.New(2)).Eval(tbl, 0))
}

func TestChallengeCombine(t *testing.T) {
	ch := Challenge{Beta: field.New(10), Gamma: field.New(7)}
	assert.Equal(t, field.New(321), ch.Combine([]field.Element{field.New(1), field.New(2), field.New(3)}))

	a := DeriveChallenges(field.New(42), NumChallenges)
	b := DeriveChallenges(field.New(42), NumChallenges)
	require.Len(t, a, NumChallenges)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a[0].Beta, a[0].Gamma)
	assert.NotEqual(t, a[0], a[1])
}

func TestLookupsHoldOnExecution(t *testing.T) {
	for _, txs := range []int{1, 3} {
		all, betas := buildTables(t, txs)
		lookups := AllCrossTableLookups(betas)

		require.NoError(t, CheckMultisets(all, lookups))

		challenges := DeriveChallenges(field.New(uint64(txs)), NumChallenges)
		data, err := ComputeRunningSums(all, lookups, challenges)
		require.NoError(t, err)
		require.Len(t, data, len(lookups))
		for _, d := range data {
			require.Len(t, d.Looked, NumChallenges)
			assert.Len(t, d.Looked[0].Z, all[d.Looked[0].Table].Height())
		}
		require.NoError(t, Verify(data))
	}
}

func TestLookupsExerciseEveryTable(t *testing.T) {
	all, betas := buildTables(t, 1)
	for _, l := range AllCrossTableLookups(betas) {
		looked := all[l.Looked.Table]
		total := field.Zero
		for row := 0; row < looked.Height(); row++ {
			total = total.Add(l.Looked.Filter.Eval(looked, row))
		}
		assert.False(t, total.IsZero(), "lookup %s has no looked rows", l.Name)
	}
}

func TestTamperedMemoryIsDetected(t *testing.T) {
	all, betas := buildTables(t, 1)
	mem := all[tables.Memory]
	for row := 0; row < mem.Height(); row++ {
		if mem.Get(row, tables.MemFilterForCpu).Equal(field.One) {
			mem.Set(row, tables.MemValue, mem.Get(row, tables.MemValue).Add(field.One))
			break
		}
	}

	lookups := AllCrossTableLookups(betas)
	err := CheckMultisets(all, lookups)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupMismatch))

	data, err := ComputeRunningSums(all, lookups, DeriveChallenges(field.New(1), NumChallenges))
	require.NoError(t, err)
	err = Verify(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookupMismatch))
	assert.Contains(t, err.Error(), "cpu_memory")
}

func TestMissingTable(t *testing.T) {
	all, betas := buildTables(t, 1)
	all[tables.Tape] = nil
	err := CheckMultisets(all, AllCrossTableLookups(betas))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tape table missing")
}

func TestCompressedColumnsAreBound(t *testing.T) {
	t.Run("BitwiseLimb", func(t *testing.T) {
		all, betas := buildTables(t, 1)
		bw := all[tables.Bitwise]
		bw.Set(0, tables.BitCompressed, bw.Get(0, tables.BitCompressed).Add(field.One))

		err := CheckMultisets(all, AllCrossTableLookups(betas))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLookupMismatch))
		assert.Contains(t, err.Error(), "cpu_bitwise")
	})

	t.Run("ProgramCompress", func(t *testing.T) {
		all, betas := buildTables(t, 1)
		prog := all[tables.Program]
		prog.Set(0, tables.ProgCompressed, prog.Get(0, tables.ProgCompressed).Add(field.One))

		err := CheckMultisets(all, AllCrossTableLookups(betas))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cpu_program")
	})

	t.Run("WrongChallenge", func(t *testing.T) {
		all, betas := buildTables(t, 1)
		betas.Program = betas.Program.Add(field.One)

		err := CheckMultisets(all, AllCrossTableLookups(betas))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cpu_program")
	})
}
