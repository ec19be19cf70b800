package vm

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
)

type memKey struct {
	env  uint64
	addr uint64
}

// Memory is the per-environment random access memory of one transaction.
// Every access is appended to the event log; reads of cells never written
// are faults.
type Memory struct {
	txIdx  uint64
	cells  map[memKey]field.Element
	events []MemoryEvent
}

// NewMemory creates an empty memory for transaction txIdx
func NewMemory(txIdx uint64) *Memory {
	return &Memory{txIdx: txIdx, cells: make(map[memKey]field.Element)}
}

// memAccess carries the attribution of an access
type memAccess struct {
	env      uint64
	clk      uint64
	opcode   Opcode
	consumer MemoryConsumer
}

func checkAddress(addr field.Element) (uint64, bool) {
	a := addr.Value()
	return a, a < core.U32Limit
}

// Read returns the last value written at addr
func (m *Memory) Read(acc memAccess, addr field.Element) (field.Element, error) {
	a, ok := checkAddress(addr)
	if !ok {
		return field.Zero, &ExecError{Kind: FaultMemoryVisit, Clk: acc.clk, Addr: a, Detail: "address beyond u32"}
	}
	value, ok := m.cells[memKey{acc.env, a}]
	if !ok {
		return field.Zero, &ExecError{Kind: FaultMemoryVisit, Clk: acc.clk, Addr: a, Detail: "read of uninitialized memory"}
	}
	m.events = append(m.events, MemoryEvent{
		TxIdx: m.txIdx, EnvIdx: acc.env, Addr: a, Clk: acc.clk,
		Opcode: acc.opcode, Value: value, Consumer: acc.consumer,
	})
	return value, nil
}

// Write stores value at addr
func (m *Memory) Write(acc memAccess, addr, value field.Element) error {
	a, ok := checkAddress(addr)
	if !ok {
		return &ExecError{Kind: FaultMemoryVisit, Clk: acc.clk, Addr: a, Detail: "address beyond u32"}
	}
	m.cells[memKey{acc.env, a}] = value
	m.events = append(m.events, MemoryEvent{
		TxIdx: m.txIdx, EnvIdx: acc.env, Addr: a, Clk: acc.clk,
		Opcode: acc.opcode, IsWrite: true, Value: value, Consumer: acc.consumer,
	})
	return nil
}

// ReadWord reads four consecutive cells starting at base
func (m *Memory) ReadWord(acc memAccess, base field.Element) (core.Word, error) {
	var w core.Word
	for i := range w {
		v, err := m.Read(acc, base.Add(field.New(uint64(i))))
		if err != nil {
			return w, err
		}
		w[i] = v
	}
	return w, nil
}

// WriteWord writes four consecutive cells starting at base
func (m *Memory) WriteWord(acc memAccess, base field.Element, w core.Word) error {
	for i, v := range w {
		if err := m.Write(acc, base.Add(field.New(uint64(i))), v); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the access log
func (m *Memory) Events() []MemoryEvent {
	return m.events
}
