package vm

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

// Tape is the append-only transaction tape. It starts with the transaction
// context (origin, caller, calldata) and grows through TSTORE and SCCALL.
type Tape struct {
	txIdx  uint64
	cells  []field.Element
	events []TapeEvent
}

// NewTape initializes the tape with origin ‖ caller ‖ calldata
func NewTape(txIdx uint64, origin, caller core.Address, calldata []field.Element) *Tape {
	t := &Tape{txIdx: txIdx}
	for _, segment := range [][]field.Element{origin[:], caller[:], calldata} {
		for _, v := range segment {
			t.events = append(t.events, TapeEvent{
				TxIdx: txIdx, Addr: uint64(len(t.cells)), Value: v, IsInit: true,
			})
			t.cells = append(t.cells, v)
		}
	}
	return t
}

// Pointer returns the next free tape address
func (t *Tape) Pointer() uint64 {
	return uint64(len(t.cells))
}

// Read loads the cell at addr
func (t *Tape) Read(clk uint64, opcode Opcode, addr uint64) (field.Element, error) {
	if addr >= uint64(len(t.cells)) {
		return field.Zero, &ExecError{Kind: FaultTapeVisit, Clk: clk, Addr: addr}
	}
	v := t.cells[addr]
	t.events = append(t.events, TapeEvent{TxIdx: t.txIdx, Addr: addr, Value: v, Opcode: opcode, Clk: clk})
	return v, nil
}

// Append writes value at the tape pointer and returns its address
func (t *Tape) Append(clk uint64, opcode Opcode, value field.Element) uint64 {
	addr := uint64(len(t.cells))
	t.cells = append(t.cells, value)
	t.events = append(t.events, TapeEvent{TxIdx: t.txIdx, Addr: addr, Value: value, Opcode: opcode, Clk: clk})
	return addr
}

// Events returns the tape log
func (t *Tape) Events() []TapeEvent {
	return t.events
}
