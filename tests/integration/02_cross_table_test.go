package integration_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/ctl"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	vybiumzkvm "github.com/vybium/vybium-zkvm/pkg/vybium-zkvm"
)

// callerSource calls a subroutine running the builtins, writes storage,
// calls contract B, hashes a word and reads back the tape
const callerSource = `
	mstore r15 -2 r15
	call 30
	mov r2 100
	mov r14 0xB
	mstore r2 0 r14
	mstore r2 1 r0
	mstore r2 2 r0
	mstore r2 3 r0
	sstore r2 r2
	sload r2 r2
	sccall r2 0
	mov r3 200
	poseidon r3 r2 4
	mov r5 1
	mov r6 300
	tload r6 r5 2
	end
	mov r4 12
	and r7 r4 10
	gte r8 r4 10
	range r4
	ret
`

const calleeSource = `
	tload r1 r0 8
	mov r2 50
	mstore r2 0 r1
	tstore r2 1
	end
`

func deployPair(t *testing.T, config *vybiumzkvm.Config) *vybiumzkvm.Executor {
	t.Helper()
	exec, err := vybiumzkvm.NewExecutor(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	require.NoError(t, exec.Deploy(contractA, callerSource))
	require.NoError(t, exec.Deploy(contractB, calleeSource))
	return exec
}

func paddingColumn(t *testing.T, tbl *tables.Table) int {
	t.Helper()
	for i, name := range tbl.Names() {
		if name == "is_padding" {
			return i
		}
	}
	t.Fatalf("%s has no is_padding column", tbl.ID)
	return -1
}

// Test02_CrossTableLookups executes CALL/RET, POSEIDON, TLOAD/TSTORE and
// SCCALL and checks all lookups two ways: running sums and multisets.
func Test02_CrossTableLookups(t *testing.T) {
	t.Log("=== Test 02: Cross-table lookups ===")
	exec := deployPair(t, nil)

	t.Log("Step 1: Executing and generating traces...")
	traces, err := exec.Run(context.Background(), []vybiumzkvm.TxInput{{Contract: contractA, Caller: origin, Origin: origin}}, vybiumzkvm.BlockMetadata{})
	require.NoError(t, err)

	t.Log("Step 2: Checking every table took part...")
	for _, id := range []tables.TableID{tables.Poseidon, tables.PoseidonChunk, tables.Tape, tables.ScCall, tables.Bitwise, tables.Cmp} {
		tbl := traces.Tables[id]
		col := paddingColumn(t, tbl)
		assert.True(t, tbl.Get(0, col).IsZero(), "%s row 0 is padding", id)
	}

	t.Log("Step 3: Verifying lookups...")
	lookups := ctl.AllCrossTableLookups(traces.Betas())
	require.NoError(t, ctl.Verify(traces.Lookups))
	require.NoError(t, ctl.CheckMultisets(&traces.Tables, lookups))

	t.Log("Step 4: Tampering with a looked tape cell...")
	tape := traces.Tables[tables.Tape]
	row := -1
	for r := 0; r < tape.Height(); r++ {
		if tape.Get(r, tables.TapeFilterLooked).Equal(field.One) {
			row = r
			break
		}
	}
	require.NotEqual(t, -1, row, "no looked tape row")
	tape.Set(row, tables.TapeValue, tape.Get(row, tables.TapeValue).Add(field.One))

	data, err := ctl.ComputeRunningSums(&traces.Tables, lookups, traces.Challenges)
	require.NoError(t, err)
	err = ctl.Verify(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ctl.ErrLookupMismatch))
	assert.Error(t, ctl.CheckMultisets(&traces.Tables, lookups))
}
