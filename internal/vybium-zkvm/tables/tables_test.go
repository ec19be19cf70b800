package tables

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

var (
	contractA = core.NewWord(0xA, 0, 0, 0)
	contractB = core.NewWord(0xB, 0, 0, 0)
)

const storageProgram = `
	mov r2 100
	mov r3 200
	mov r14 1
	mstore r2 0 r14
	mstore r2 1 r14
	mstore r2 2 r14
	mstore r2 3 r14
	mov r14 0xdeadbeef
	mstore r3 0 r14
	mstore r3 1 r14
	mstore r3 2 r14
	mstore r3 3 r14
	sstore r2 r3
	sload r2 r3
	mov r4 12
	mov r5 10
	and r6 r4 r5
	gte r7 r4 r5
	range r4
	end
`

func executeBatch(t *testing.T, programs map[core.Address]string, txs ...core.Address) (*vm.Batch, *storage.Tree) {
	t.Helper()
	tree, err := storage.OpenTree("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	p := vm.NewProcess(utils.DefaultConfig(), tree)
	for addr, src := range programs {
		prog, err := vm.ParseProgram(addr, src)
		require.NoError(t, err)
		p.Deploy(prog)
	}
	var inputs []vm.TxInput
	for _, addr := range txs {
		inputs = append(inputs, vm.TxInput{Contract: addr})
	}
	batch, err := p.ExecuteBatch(context.Background(), inputs)
	require.NoError(t, err)
	return batch, tree
}

func allTables(t *testing.T, batch *vm.Batch) []*Table {
	t.Helper()
	bitwise := GenerateBitwise(batch.Txs)
	bitwise.SetCompressChallenge(bitwise.Beta())
	bt, err := bitwise.Finalize()
	require.NoError(t, err)

	program := GenerateProgram(batch.Programs, batch.Txs)
	program.SetCompressChallenge(program.Beta())
	pt, err := program.Finalize()
	require.NoError(t, err)

	return []*Table{
		GenerateCpu(batch.Txs),
		GenerateMemory(batch.Txs),
		bt,
		GenerateCmp(batch.Txs),
		GenerateRangeCheck(batch.Txs),
		GeneratePoseidon(batch.Txs, batch.ProgramChunks),
		GeneratePoseidonChunk(batch.Txs),
		GenerateStorageHash(batch.Txs),
		GenerateTape(batch.Txs),
		GenerateScCall(batch.Txs),
		pt,
		GenerateProgramChunk(batch.ProgramChunks),
	}
}

func TestTableIDs(t *testing.T) {
	assert.Equal(t, 12, NumTables)
	assert.Equal(t, "Cpu", Cpu.String())
	assert.Equal(t, "ProgramChunk", ProgramChunk.String())
	assert.Equal(t, "Unknown", TableID(99).String())
	ids := AllTables()
	require.Len(t, ids, NumTables)
	assert.Equal(t, StorageHash, ids[7])
}

func TestColumnLayouts(t *testing.T) {
	widths := map[TableID]struct {
		names []string
		cols  int
	}{
		Cpu:           {cpuColumnNames, CpuNumCols},
		Memory:        {memColumnNames, MemNumCols},
		Bitwise:       {bitwiseColumnNames, BitNumCols},
		Cmp:           {cmpColumnNames, CmpNumCols},
		RangeCheck:    {rangeCheckColumnNames, RcNumCols},
		Poseidon:      {poseidonColumnNames, PosNumCols},
		PoseidonChunk: {poseidonChunkColumnNames, PchNumCols},
		StorageHash:   {storageHashColumnNames, ShNumCols},
		Tape:          {tapeColumnNames, TapeNumCols},
		ScCall:        {scCallColumnNames, ScNumCols},
		Program:       {programColumnNames, ProgNumCols},
		ProgramChunk:  {programChunkColumnNames, PgcNumCols},
	}
	for id, w := range widths {
		t.Run(id.String(), func(t *testing.T) {
			assert.Len(t, w.names, w.cols)
			seen := map[string]bool{}
			for _, name := range w.names {
				assert.False(t, seen[name], "duplicate column %s", name)
				seen[name] = true
			}
		})
	}
	assert.Equal(t, CpuOpSelectors+int(vm.SSTORE), SelectorColumn(vm.SSTORE))
}

func TestHeightsArePowersOfTwo(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: storageProgram}, contractA, contractA)
	for _, tbl := range allTables(t, batch) {
		t.Run(tbl.ID.String(), func(t *testing.T) {
			assert.True(t, utils.IsPowerOfTwo(tbl.Height()), "height %d", tbl.Height())
			for _, col := range tbl.PolynomialValues() {
				assert.Len(t, col, tbl.Height())
			}
		})
	}
}

func TestEmptyBatchTables(t *testing.T) {
	empty := &vm.Batch{}
	cpu := GenerateCpu(empty.Txs)
	require.Equal(t, 1, cpu.Height())
	assert.Equal(t, field.One, cpu.Get(0, CpuIsPadding))
	assert.Equal(t, field.One, cpu.Get(0, SelectorColumn(vm.END)))

	sh := GenerateStorageHash(empty.Txs)
	require.Equal(t, 1, sh.Height())
	assert.Equal(t, zeroPermutation.Output[0], sh.Get(0, ShOutput))
}

func TestCpuPadding(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: "mov r1 3\nmov r2 4\nadd r3 r1 r2\nend"}, contractA)
	cpu := GenerateCpu(batch.Txs)
	n := len(batch.Txs[0].Steps)
	require.Equal(t, 4, n)
	require.Equal(t, 4, cpu.Height())

	batch, _ = executeBatch(t, map[core.Address]string{contractA: "mov r1 3\nmov r2 4\nadd r3 r1 r2\nmov r4 1\nend"}, contractA)
	cpu = GenerateCpu(batch.Txs)
	n = len(batch.Txs[0].Steps)
	require.Equal(t, 8, cpu.Height())

	for r := n; r < cpu.Height(); r++ {
		assert.Equal(t, field.One, cpu.Get(r, CpuIsPadding))
		assert.Equal(t, field.One, cpu.Get(r, SelectorColumn(vm.END)))
		assert.Equal(t, field.Zero, cpu.Get(r, SelectorColumn(vm.MOV)))
		assert.Equal(t, field.New(vm.END.BitMask()), cpu.Get(r, CpuOpcode))
		assert.Equal(t, field.One, cpu.Get(r, CpuIsEntrySc))
		assert.Equal(t, field.One, cpu.Get(r, CpuDiffInst))
		assert.Equal(t, field.Zero, cpu.Get(r, CpuSameTx))
		assert.Equal(t, field.Zero, cpu.Get(r, CpuProgLooking))
		assert.Equal(t, cpu.Get(n-1, CpuRegs+4), cpu.Get(r, CpuRegs+4))
	}
	assert.Equal(t, field.Zero, cpu.Get(n-1, CpuIsPadding))
	assert.Equal(t, field.Zero, cpu.Get(n-1, CpuSameTx))
}

func TestMemoryOrderingAndRangeCheck(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: `
		mov r1 7
		mov r2 50
		mstore r2 3 r1
		mstore r2 0 r1
		mload r3 r2 3
		end
	`}, contractA)
	mem := GenerateMemory(batch.Txs)

	// (addr 50, clk 3), (addr 53, clk 2), (addr 53, clk 4)
	assert.Equal(t, field.New(50), mem.Get(0, MemAddr))
	assert.Equal(t, field.New(53), mem.Get(1, MemAddr))
	assert.Equal(t, field.New(2), mem.Get(1, MemClk))
	assert.Equal(t, field.New(4), mem.Get(2, MemClk))

	assert.Equal(t, field.Zero, mem.Get(0, MemFilterLookingRc))
	assert.Equal(t, field.One, mem.Get(1, MemFilterLookingRc))
	assert.Equal(t, field.New(2), mem.Get(1, MemRcValue))
	assert.Equal(t, field.New(2), mem.Get(2, MemRcValue))

	require.Equal(t, 4, mem.Height())
	assert.Equal(t, field.One, mem.Get(3, MemIsPadding))
	assert.Equal(t, field.Zero, mem.Get(3, MemFilterForCpu))
	assert.Equal(t, mem.Get(2, MemAddr), mem.Get(3, MemAddr))

	rc := GenerateRangeCheck(batch.Txs)
	memRows := 0
	for r := 0; r < rc.Height(); r++ {
		if rc.Get(r, RcFilterMemory).Equal(field.One) {
			memRows++
		}
	}
	assert.Equal(t, 2, memRows)
}

func TestBitwiseTwoPhase(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: storageProgram}, contractA)
	bitwise := GenerateBitwise(batch.Txs)

	_, err := bitwise.Finalize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChallengeUnavailable))

	beta := bitwise.Beta()
	assert.Equal(t, beta, GenerateBitwise(batch.Txs).Beta())

	bitwise.SetCompressChallenge(beta)
	tbl, err := bitwise.Finalize()
	require.NoError(t, err)

	// 12 & 10 = 8, single byte limb
	want := field.New(12).Add(beta.Mul(field.New(10))).Add(beta.Mul(beta).Mul(field.New(8)))
	assert.Equal(t, want, tbl.Get(0, BitCompressed))
	assert.Equal(t, field.Zero, tbl.Get(0, BitCompressed+1))
	assert.Equal(t, field.New(vm.AND.BitMask()), tbl.Get(0, BitTag))
}

func TestStorageHashLayers(t *testing.T) {
	batch, tree := executeBatch(t, map[core.Address]string{contractA: storageProgram}, contractA)
	sh := GenerateStorageHash(batch.Txs)
	require.Len(t, batch.Txs[0].Storage, 2)
	require.Equal(t, 2*core.TreeHeight, sh.Height())

	for a, access := range batch.Txs[0].Storage {
		base := a * core.TreeHeight
		treeKey := access.TreeKey.Values()

		assert.Equal(t, field.New(access.Idx), sh.Get(base, ShIdx))
		for k, layer := range []int{64, 128, 192, 256} {
			row := base + layer - 1
			assert.Equal(t, field.New(treeKey[k]), sh.Get(row, ShAddrAcc), "layer %d", layer)
		}
		assert.Equal(t, field.One, sh.Get(base+255, ShIsLayer256))
		assert.Equal(t, field.One, sh.Get(base+63, ShIsLayer64))
		assert.Equal(t, field.Zero, sh.Get(base+64, ShIsLayer64))
		assert.Equal(t, field.New(access.TreeKey.Bit(64)), sh.Get(base+64, ShAddrAcc))

		// row 1 output is the root; row L path is row L+1 output
		root := tree.Root()
		for k := 0; k < core.WordLength; k++ {
			assert.Equal(t, root[k], sh.Get(base, ShOutput+k))
		}
		for layer := 1; layer < core.TreeHeight; layer++ {
			for k := 0; k < core.WordLength; k++ {
				require.Equal(t, sh.Get(base+layer, ShOutput+k), sh.Get(base+layer-1, ShPath+k))
			}
		}
		assert.Equal(t, access.Leaf[0], sh.Get(base+255, ShPath))
		assert.Equal(t, field.One, sh.Get(base+255, ShLookingLeaf))
		assert.Equal(t, field.One, sh.Get(base, ShInput))
	}
}

func TestStorageHashPadding(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: `
		mov r2 100
		mstore r2 0 r0
		mstore r2 1 r0
		mstore r2 2 r0
		mstore r2 3 r0
		sload r2 r2
		sload r2 r2
		sload r2 r2
		end
	`}, contractA)
	sh := GenerateStorageHash(batch.Txs)
	n := 3 * core.TreeHeight
	require.Equal(t, 4*core.TreeHeight, sh.Height())
	assert.Equal(t, field.New(3), sh.Get(n-1, ShIdx))
	assert.Equal(t, field.Zero, sh.Get(n-1, ShLookingLeaf))

	for _, r := range []int{n, n + 1, sh.Height() - 1} {
		assert.Equal(t, field.Zero, sh.Get(r, ShIdx))
		assert.Equal(t, field.One, sh.Get(r, ShIsPadding))
		assert.Equal(t, field.Zero, sh.Get(r, ShIsLayer256))
		assert.Equal(t, sh.Get(n-1, ShAddrAcc), sh.Get(r, ShAddrAcc))
		assert.Equal(t, zeroPermutation.Output[3], sh.Get(r, ShOutput+3))
	}
}

func TestPoseidonConsumers(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: storageProgram}, contractA)
	pos := GeneratePoseidon(batch.Txs, batch.ProgramChunks)

	counts := map[int]int{}
	for r := 0; r < pos.Height(); r++ {
		for _, col := range []int{PosFilterChunk, PosFilterStorageKey, PosFilterStorageLeaf, PosFilterProgramChunk, PosIsPadding} {
			if pos.Get(r, col).Equal(field.One) {
				counts[col]++
			}
		}
	}
	assert.Equal(t, 2, counts[PosFilterStorageKey])
	assert.Equal(t, 2, counts[PosFilterStorageLeaf])
	assert.Equal(t, len(batch.ProgramChunks), counts[PosFilterProgramChunk])
	assert.Equal(t, pos.Height(), counts[PosFilterStorageKey]+counts[PosFilterStorageLeaf]+counts[PosFilterProgramChunk]+counts[PosIsPadding])

	rs := batch.Txs[0].Poseidon[0].States
	assert.Equal(t, rs.Partial[5], pos.Get(0, roundPartial+5))
	assert.Equal(t, rs.Full1[2][7], pos.Get(0, roundFull1+2*poseidon.Width+7))
}

func TestProgramMultiplicity(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: "mov r1 2\nadd r1 r1 1\nend"}, contractA, contractA)
	program := GenerateProgram(batch.Programs, batch.Txs)
	raw := program.Raw()

	require.Equal(t, 8, raw.Height())
	// mov r1 2 (pc 0,1), add r1 r1 1 (pc 2,3), end (pc 4); each fetched twice
	for pc := 0; pc < 5; pc++ {
		assert.Equal(t, field.New(2), raw.Get(pc, ProgMultiplicity), "pc %d", pc)
	}
	assert.Equal(t, field.One, raw.Get(5, ProgIsPadding))

	program.SetCompressChallenge(field.New(3))
	tbl, err := program.Finalize()
	require.NoError(t, err)
	// value*3^5 + pc*3^4 + addr0 with addr = 0xA
	word := raw.Get(2, ProgValue)
	want := word.Mul(field.New(243)).Add(field.New(2 * 81)).Add(field.New(0xA))
	assert.Equal(t, want, tbl.Get(2, ProgCompressed))
}

func TestScCallAndTape(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{
		contractB: "end",
		contractA: `
			mov r2 100
			mov r1 0xB
			mstore r2 0 r1
			mstore r2 1 r0
			mstore r2 2 r0
			mstore r2 3 r0
			sccall r2 0
			end
		`,
	}, contractA)
	sc := GenerateScCall(batch.Txs)
	assert.Equal(t, field.One, sc.Get(0, ScCalleeEnv))
	assert.Equal(t, field.New(0xB), sc.Get(0, ScCalleeCode))
	assert.Equal(t, field.New(0xB), sc.Get(0, ScCalleeStore))
	require.Equal(t, 1, sc.Height())
	assert.Equal(t, field.Zero, sc.Get(0, ScIsPadding))

	tape := GenerateTape(batch.Txs)
	looked := 0
	for r := 0; r < tape.Height(); r++ {
		if tape.Get(r, TapeFilterLooked).Equal(field.One) {
			looked++
			assert.Equal(t, field.New(vm.SCCALL.BitMask()), tape.Get(r, TapeOpcode))
		}
	}
	assert.Equal(t, 8, looked)
	assert.Equal(t, field.One, tape.Get(0, TapeIsInit))
}

func TestDigestDeterministic(t *testing.T) {
	batch, _ := executeBatch(t, map[core.Address]string{contractA: storageProgram}, contractA)
	a := GenerateCpu(batch.Txs)
	b := GenerateCpu(batch.Txs)
	assert.Equal(t, a.Digest(), b.Digest())

	b.Set(0, CpuClk, field.New(99))
	assert.NotEqual(t, a.Digest(), b.Digest())
}
