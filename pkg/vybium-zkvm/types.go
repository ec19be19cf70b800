package vybiumzkvm

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/generation"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// FieldElement is a Goldilocks field element
type FieldElement = field.Element

// Word is a four-limb value: storage keys, values and addresses
type Word = core.Word

// Address identifies a contract
type Address = core.Address

// Config holds execution and generation parameters
type Config = utils.Config

// TxInput is one transaction of a batch
type TxInput = vm.TxInput

// Batch is the execution record of a batch
type Batch = vm.Batch

// Program is an assembled contract
type Program = vm.Program

// Backend is a contract storage backend
type Backend = storage.Backend

// BlockMetadata describes the block a batch belongs to
type BlockMetadata = generation.BlockMetadata

// PublicValues accompany the trace tables
type PublicValues = generation.PublicValues

// Traces is the ordered set of trace tables with their public values
type Traces = generation.Traces

// TableID identifies a trace table
type TableID = tables.TableID

// NumTables is the number of trace tables
const NumTables = tables.NumTables

// NewWord builds a word from canonical limb values
func NewWord(a, b, c, d uint64) Word {
	return core.NewWord(a, b, c, d)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return utils.DefaultConfig()
}

// LoadConfig reads a config file with VYBIUM_ZKVM_* environment overrides
func LoadConfig(path string) (*Config, error) {
	cfg, err := utils.LoadConfig(path)
	if err != nil {
		return nil, newError(ErrCodeInvalidConfig, "failed to load config", err)
	}
	return cfg, nil
}

// AllTables lists the tables in output order
func AllTables() []TableID {
	return tables.AllTables()
}
