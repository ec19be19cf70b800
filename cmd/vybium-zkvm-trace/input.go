package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	vybiumzkvm "github.com/vybium/vybium-zkvm/pkg/vybium-zkvm"
)

// goldilocksModulus bounds canonical limb values
const goldilocksModulus = 0xFFFFFFFF00000001

// BatchInput is the JSON document the trace command reads
type BatchInput struct {
	Programs     []ProgramInput `json:"programs"`
	Transactions []TxJSON       `json:"transactions"`
	Block        BlockInput     `json:"block"`
}

// ProgramInput is one contract to deploy, as assembly source
type ProgramInput struct {
	Address []uint64 `json:"address"`
	Source  string   `json:"source"`
}

// TxJSON is one transaction. Missing caller and origin are zero.
type TxJSON struct {
	Contract []uint64 `json:"contract"`
	Caller   []uint64 `json:"caller,omitempty"`
	Origin   []uint64 `json:"origin,omitempty"`
	Calldata []uint64 `json:"calldata,omitempty"`
}

// BlockInput carries the block metadata
type BlockInput struct {
	BlockNumber    uint64   `json:"block_number"`
	BlockTimestamp uint64   `json:"block_timestamp"`
	ChainID        uint64   `json:"chain_id"`
	Coinbase       []uint64 `json:"coinbase,omitempty"`
}

// parsedBatch is a decoded input ready for the executor
type parsedBatch struct {
	programs map[vybiumzkvm.Address]string
	order    []vybiumzkvm.Address
	txs      []vybiumzkvm.TxInput
	metadata vybiumzkvm.BlockMetadata
}

func parseInput(r io.Reader) (*parsedBatch, error) {
	var in BatchInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if len(in.Transactions) == 0 {
		return nil, fmt.Errorf("input has no transactions")
	}

	out := &parsedBatch{programs: make(map[vybiumzkvm.Address]string)}
	for i, p := range in.Programs {
		addr, err := parseWord(p.Address)
		if err != nil {
			return nil, fmt.Errorf("program %d address: %w", i, err)
		}
		if _, dup := out.programs[addr]; dup {
			return nil, fmt.Errorf("program %d: duplicate address %s", i, addr)
		}
		out.programs[addr] = p.Source
		out.order = append(out.order, addr)
	}

	for i, tx := range in.Transactions {
		parsed, err := parseTx(tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		out.txs = append(out.txs, parsed)
	}

	coinbase, err := parseWord(in.Block.Coinbase)
	if err != nil {
		return nil, fmt.Errorf("block coinbase: %w", err)
	}
	out.metadata = vybiumzkvm.BlockMetadata{
		BlockNumber:    in.Block.BlockNumber,
		BlockTimestamp: in.Block.BlockTimestamp,
		ChainID:        in.Block.ChainID,
		Coinbase:       coinbase,
	}
	return out, nil
}

func parseTx(tx TxJSON) (vybiumzkvm.TxInput, error) {
	var out vybiumzkvm.TxInput
	var err error
	if len(tx.Contract) == 0 {
		return out, fmt.Errorf("missing contract")
	}
	if out.Contract, err = parseWord(tx.Contract); err != nil {
		return out, fmt.Errorf("contract: %w", err)
	}
	if out.Caller, err = parseWord(tx.Caller); err != nil {
		return out, fmt.Errorf("caller: %w", err)
	}
	if out.Origin, err = parseWord(tx.Origin); err != nil {
		return out, fmt.Errorf("origin: %w", err)
	}
	for _, v := range tx.Calldata {
		if v >= goldilocksModulus {
			return out, fmt.Errorf("calldata value %#x is not canonical", v)
		}
		out.Calldata = append(out.Calldata, field.New(v))
	}
	return out, nil
}

// parseWord reads up to four limbs, low limb first; missing limbs are zero
func parseWord(limbs []uint64) (vybiumzkvm.Word, error) {
	var w [4]uint64
	if len(limbs) > len(w) {
		return vybiumzkvm.Word{}, fmt.Errorf("word has %d limbs, at most %d allowed", len(limbs), len(w))
	}
	for i, v := range limbs {
		if v >= goldilocksModulus {
			return vybiumzkvm.Word{}, fmt.Errorf("limb %d (%#x) is not canonical", i, v)
		}
		w[i] = v
	}
	return vybiumzkvm.NewWord(w[0], w[1], w[2], w[3]), nil
}
