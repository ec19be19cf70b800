// Package vybiumzkvm executes contract transactions on the Vybium zkVM and
// generates the trace tables a STARK backend proves.
//
// # Features
//
// - Register machine with 25 opcodes over the Goldilocks field
// - Contract storage in a Poseidon sparse Merkle tree persisted in LevelDB
// - Cross-contract calls with fresh environments and a shared tape
// - Twelve trace tables generated concurrently
// - Cross-table lookups checked by log-derivative running sums
//
// # Quick Start
//
//	exec, err := vybiumzkvm.NewExecutor(vybiumzkvm.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer exec.Close()
//
//	contract := vybiumzkvm.NewWord(0xA, 0, 0, 0)
//	if err := exec.Deploy(contract, "mov r1 5\nadd r2 r1 r1\nend"); err != nil {
//		log.Fatal(err)
//	}
//
//	traces, err := exec.Run(ctx, []vybiumzkvm.TxInput{{Contract: contract}}, vybiumzkvm.BlockMetadata{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, id := range vybiumzkvm.AllTables() {
//		fmt.Println(id, traces.Tables[id].Height())
//	}
//
// # Errors
//
// Every error returned by this package is a *VMError. Match the code with
// errors.Is against the sentinels (ErrExecution, ErrLookupMismatch, ...)
// and the underlying fault with errors.As.
package vybiumzkvm
