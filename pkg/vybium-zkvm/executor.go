package vybiumzkvm

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/generation"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// Executor runs transaction batches against a storage backend and turns
// them into trace tables
type Executor struct {
	config  *Config
	backend Backend
	tree    *storage.Tree // owned tree, closed by Close
	process *vm.Process
	log     *logrus.Entry
}

// NewExecutor creates an executor over the LevelDB tree at
// config.StoragePath (in memory when empty). A nil config uses the
// defaults.
func NewExecutor(config *Config) (*Executor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, newError(ErrCodeInvalidConfig, "invalid configuration", err)
	}
	tree, err := storage.OpenTree(config.StoragePath)
	if err != nil {
		return nil, newError(ErrCodeStorage, "failed to open storage", err)
	}
	e := newExecutor(config, tree)
	e.tree = tree
	return e, nil
}

// NewExecutorWithBackend creates an executor over a caller-owned backend
func NewExecutorWithBackend(config *Config, backend Backend) (*Executor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, newError(ErrCodeInvalidConfig, "invalid configuration", err)
	}
	if backend == nil {
		return nil, newError(ErrCodeInvalidInput, "nil storage backend", nil)
	}
	return newExecutor(config, backend), nil
}

func newExecutor(config *Config, backend Backend) *Executor {
	return &Executor{
		config:  config.Clone(),
		backend: backend,
		process: vm.NewProcess(config.Clone(), backend),
		log:     logrus.WithField("component", "executor"),
	}
}

// Deploy assembles source and installs it at addr
func (e *Executor) Deploy(addr Address, source string) error {
	prog, err := vm.ParseProgram(addr, source)
	if err != nil {
		return newError(ErrCodeInvalidInput, "failed to assemble program", err)
	}
	e.process.Deploy(prog)
	e.log.WithFields(logrus.Fields{"address": addr.String(), "words": len(prog.Code)}).Debug("program deployed")
	return nil
}

// DeployCode decodes bytecode and installs it at addr
func (e *Executor) DeployCode(addr Address, code []FieldElement) error {
	prog, err := vm.DecodeProgram(addr, code)
	if err != nil {
		return newError(ErrCodeInvalidInput, "failed to decode program", err)
	}
	e.process.Deploy(prog)
	return nil
}

// Execute runs txs in order. A fault aborts the batch; transactions
// before it keep their storage effects.
func (e *Executor) Execute(ctx context.Context, txs []TxInput) (*Batch, error) {
	if len(txs) == 0 {
		return nil, newError(ErrCodeInvalidInput, "empty transaction batch", nil)
	}
	batch, err := e.process.ExecuteBatch(ctx, txs)
	if err != nil {
		return nil, executionError(err)
	}
	return batch, nil
}

// GenerateTraces builds the trace tables of an executed batch
func (e *Executor) GenerateTraces(ctx context.Context, batch *Batch, metadata BlockMetadata) (*Traces, error) {
	traces, err := generation.GenerateTraces(ctx, batch, metadata, e.config)
	if err != nil {
		return nil, generationError(err)
	}
	return traces, nil
}

// Run executes txs and generates their trace tables
func (e *Executor) Run(ctx context.Context, txs []TxInput, metadata BlockMetadata) (*Traces, error) {
	batch, err := e.Execute(ctx, txs)
	if err != nil {
		return nil, err
	}
	return e.GenerateTraces(ctx, batch, metadata)
}

// StateRoot returns the backend's current root
func (e *Executor) StateRoot() Word {
	return e.backend.Root()
}

// Close releases the storage the executor opened itself
func (e *Executor) Close() error {
	if e.tree == nil {
		return nil
	}
	if err := e.tree.Close(); err != nil {
		return newError(ErrCodeStorage, "failed to close storage", err)
	}
	return nil
}
