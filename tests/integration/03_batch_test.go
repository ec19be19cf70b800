package integration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/ctl"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	vybiumzkvm "github.com/vybium/vybium-zkvm/pkg/vybium-zkvm"
)

func batchInputs() []vybiumzkvm.TxInput {
	return []vybiumzkvm.TxInput{
		{Contract: contractA, Caller: origin, Origin: origin},
		{Contract: contractA, Caller: origin, Origin: origin, Calldata: []field.Element{field.New(5), field.New(6)}},
		{Contract: contractA, Caller: origin, Origin: origin},
	}
}

// Test03_MultiTxBatch runs three transactions through one batch and checks
// the batch-wide tables and the determinism of generation.
func Test03_MultiTxBatch(t *testing.T) {
	t.Log("=== Test 03: Multi-transaction batch ===")
	metadata := vybiumzkvm.BlockMetadata{BlockNumber: 42, BlockTimestamp: 1700000000, ChainID: 1027, Coinbase: origin}

	t.Log("Step 1: Executing batch...")
	exec := deployPair(t, nil)
	batch, err := exec.Execute(context.Background(), batchInputs())
	require.NoError(t, err)
	require.Len(t, batch.Txs, 3)

	t.Log("Step 2: Generating traces...")
	traces, err := exec.GenerateTraces(context.Background(), batch, metadata)
	require.NoError(t, err)
	assert.Equal(t, metadata, traces.PublicValues.BlockMetadata)
	require.NoError(t, ctl.CheckMultisets(&traces.Tables, ctl.AllCrossTableLookups(traces.Betas())))

	t.Log("Step 3: Checking the CPU table covers every transaction...")
	cpu := traces.Tables[tables.Cpu]
	seen := map[uint64]bool{}
	for r := 0; r < cpu.Height(); r++ {
		if cpu.Get(r, tables.CpuIsPadding).IsZero() {
			seen[cpu.Get(r, tables.CpuTx).Value()] = true
		}
	}
	assert.Len(t, seen, 3)

	t.Log("Step 4: Checking the state root...")
	reference, err := storage.OpenTree("")
	require.NoError(t, err)
	defer reference.Close()
	key := vybiumzkvm.NewWord(0xB, 0, 0, 0)
	want, err := reference.Write(contractA, key, key)
	require.NoError(t, err)
	assert.Equal(t, want, traces.PublicValues.TrieRootsAfter.StateRoot)
	assert.Equal(t, storage.EmptyRoot(), traces.PublicValues.TrieRootsBefore.StateRoot)

	t.Log("Step 5: Regenerating sequentially...")
	sequential := deployPair(t, vybiumzkvm.DefaultConfig().WithConcurrency(1))
	again, err := sequential.Run(context.Background(), batchInputs(), metadata)
	require.NoError(t, err)
	assert.Equal(t, traces.Digests, again.Digests)
	assert.Equal(t, traces.Challenges, again.Challenges)
}
