package vybiumzkvm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/ctl"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/generation"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

var contract = NewWord(0xA, 0, 0, 0)

const counterSource = `
	mov r2 100
	mov r3 200
	mstore r2 0 r0
	mstore r2 1 r0
	mstore r2 2 r0
	mstore r2 3 r0
	sload r2 r3
	mload r4 r3 0
	add r4 r4 1
	mstore r3 0 r4
	sstore r2 r3
	end
`

func openExecutor(t *testing.T, config *Config) *Executor {
	t.Helper()
	exec, err := NewExecutor(config)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, exec.Close()) })
	return exec
}

func TestErrors(t *testing.T) {
	t.Run("VMError", func(t *testing.T) {
		err := newError(ErrCodeExecution, "execution fault", vm.ErrAssert)
		assert.True(t, errors.Is(err, ErrExecution))
		assert.False(t, errors.Is(err, ErrStorage))
		assert.True(t, errors.Is(err, vm.ErrAssert))
		assert.Contains(t, err.Error(), "[execution]")
		assert.Contains(t, err.Error(), "caused by")
	})

	t.Run("WithoutCause", func(t *testing.T) {
		err := newError(ErrCodeInvalidInput, "empty transaction batch", nil)
		assert.Equal(t, "vybium-zkvm error [invalid input]: empty transaction batch", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("GenerationClassification", func(t *testing.T) {
		cases := []struct {
			cause error
			want  *VMError
		}{
			{fmt.Errorf("finalize: %w", tables.ErrChallengeUnavailable), ErrChallengeUnavailable},
			{fmt.Errorf("lookup cpu_cmp: %w", ctl.ErrLookupMismatch), ErrLookupMismatch},
			{fmt.Errorf("generate tables: %w", generation.ErrInvariant), ErrTraceGeneration},
			{errors.New("other"), ErrTraceGeneration},
		}
		for _, tc := range cases {
			assert.True(t, errors.Is(generationError(tc.cause), tc.want), tc.cause.Error())
		}
	})

	t.Run("ExecutionClassification", func(t *testing.T) {
		assert.True(t, errors.Is(executionError(vm.ErrStepLimit), ErrExecution))
		assert.True(t, errors.Is(executionError(context.Canceled), ErrExecution))
		assert.True(t, errors.Is(executionError(errors.New("storage write: closed")), ErrStorage))
	})
}

func TestInvalidConfig(t *testing.T) {
	_, err := NewExecutor(DefaultConfig().WithMaxSteps(0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewExecutorWithBackend(nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestDeployErrors(t *testing.T) {
	exec := openExecutor(t, nil)
	err := exec.Deploy(contract, "bogus r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = exec.Execute(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestRunCounter(t *testing.T) {
	exec := openExecutor(t, nil)
	require.NoError(t, exec.Deploy(contract, counterSource))

	txs := []TxInput{{Contract: contract}, {Contract: contract}, {Contract: contract}}
	traces, err := exec.Run(context.Background(), txs, BlockMetadata{BlockNumber: 1})
	require.NoError(t, err)

	assert.Equal(t, storage.EmptyRoot(), traces.PublicValues.TrieRootsBefore.StateRoot)
	assert.Equal(t, exec.StateRoot(), traces.PublicValues.TrieRootsAfter.StateRoot)
	assert.Len(t, traces.Lookups, len(ctl.AllCrossTableLookups(traces.Betas())))

	value, err := exec.tree.Read(contract, NewWord(0, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, NewWord(3, 0, 0, 0), value)

	sh := traces.Tables[tables.StorageHash]
	assert.Equal(t, 8*256, sh.Height())
}

func TestDeployCode(t *testing.T) {
	exec := openExecutor(t, nil)
	prog, err := vm.ParseProgram(contract, "mov r1 3\nend")
	require.NoError(t, err)
	require.NoError(t, exec.DeployCode(contract, prog.Code))

	batch, err := exec.Execute(context.Background(), []TxInput{{Contract: contract}})
	require.NoError(t, err)
	require.Len(t, batch.Txs, 1)
	assert.Len(t, batch.Txs[0].Steps, 2)
}

func TestExecutionFault(t *testing.T) {
	exec := openExecutor(t, nil)
	require.NoError(t, exec.Deploy(contract, "assert r0 1\nend"))

	_, err := exec.Run(context.Background(), []TxInput{{Contract: contract}}, BlockMetadata{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.True(t, errors.Is(err, vm.ErrAssert))

	var fault *vm.ExecError
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, uint64(0), fault.Pc)
}

func TestPersistentStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	config := DefaultConfig().WithStoragePath(dir)

	exec, err := NewExecutor(config)
	require.NoError(t, err)
	require.NoError(t, exec.Deploy(contract, counterSource))
	_, err = exec.Execute(context.Background(), []TxInput{{Contract: contract}})
	require.NoError(t, err)
	root := exec.StateRoot()
	require.NoError(t, exec.Close())

	reopened, err := NewExecutor(config)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, root, reopened.StateRoot())
}

func TestLoopToTape(t *testing.T) {
	exec := openExecutor(t, nil)
	require.NoError(t, exec.Deploy(contract, `
		mov r1 1
		mov r2 5
		mul r1 r1 r2
		add r2 r2 -1
		neq r3 r2 0
		cjmp r3 4
		mov r4 100
		mstore r4 0 r1
		tstore r4 1
		end
	`))

	batch, err := exec.Execute(context.Background(), []TxInput{{Contract: contract}})
	require.NoError(t, err)

	var out []uint64
	for _, ev := range batch.Txs[0].Tape {
		if ev.Opcode == vm.TSTORE {
			out = append(out, ev.Value.Value())
		}
	}
	assert.Equal(t, []uint64{120}, out)
}
