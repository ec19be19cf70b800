package vm

import (
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/poseidon"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
)

// execute applies inst to the frame. The primary row is updated in place
// and the returned builders produce the ext lines, in order.
func (m *machine) execute(f *frame, row *Step, inst Instruction) ([]rowBuilder, error) {
	switch inst.Opcode {
	case ADD:
		m.setDst(f, row, inst, row.Op0.Add(row.Op1))
	case MUL:
		m.setDst(f, row, inst, row.Op0.Mul(row.Op1))
	case EQ:
		m.setDst(f, row, inst, core.Bool(row.Op0.Equal(row.Op1)))
	case NEQ:
		m.setDst(f, row, inst, core.Bool(!row.Op0.Equal(row.Op1)))
	case ASSERT:
		if !row.Op0.Equal(row.Op1) {
			return nil, &ExecError{Kind: FaultAssert, Reg: inst.Op0, Value: row.Op0.Value()}
		}
	case MOV:
		m.setDst(f, row, inst, row.Op1)
	case NOT:
		m.setDst(f, row, inst, core.NegOne.Sub(row.Op1))

	case JMP:
		f.pc = row.Op1.Value()
	case CJMP:
		if flag := row.Op0.Value(); flag > 1 {
			return nil, &ExecError{Kind: FaultCjmpFlag, Reg: inst.Op0, Value: flag}
		}
		if row.Op0.Equal(field.One) {
			f.pc = row.Op1.Value()
		}
	case CALL:
		return nil, m.call(f, row, inst)
	case RET:
		return nil, m.ret(f, row)
	case END:
		return m.end(f), nil

	case MLOAD:
		addr := row.Op0.Add(row.Op1)
		v, err := m.mem.Read(m.access(f, row, MemoryLookedByCPU), addr)
		if err != nil {
			return nil, err
		}
		row.Aux0 = addr
		m.setDst(f, row, inst, v)
	case MSTORE:
		addr := row.Op0.Add(row.Op1)
		if err := m.mem.Write(m.access(f, row, MemoryLookedByCPU), addr, row.Dst); err != nil {
			return nil, err
		}
		row.Aux0 = addr

	case RC:
		v := row.Op1.Value()
		if v >= core.U32Limit {
			return nil, &ExecError{Kind: FaultU32RangeCheck, Value: v}
		}
		m.trace.RangeChecks = append(m.trace.RangeChecks, RangeCheckEvent{Value: v})
	case AND, OR, XOR:
		return nil, m.bitwise(f, row, inst)
	case GTE:
		return nil, m.gte(f, row, inst)

	case POSEIDON:
		return nil, m.poseidon(f, row)
	case SLOAD, SSTORE:
		return m.storage(f, row, inst.Opcode)
	case TLOAD:
		return m.tload(f, row, inst)
	case TSTORE:
		return m.tstore(f, row)
	case SCCALL:
		return m.sccall(f, row)

	default:
		return nil, &ExecError{Kind: FaultParseOpcode, Value: uint64(inst.Opcode)}
	}
	return nil, nil
}

func (m *machine) setDst(f *frame, row *Step, inst Instruction, v field.Element) {
	row.Dst = v
	if inst.Dst != NoRegister {
		f.regs[inst.Dst] = v
	}
}

func (m *machine) access(f *frame, row *Step, consumer MemoryConsumer) memAccess {
	return memAccess{env: f.env, clk: row.Clk, opcode: row.Opcode, consumer: consumer}
}

// call saves the return pc at fp-1, reads the caller frame pointer saved
// at fp-2 and jumps to op1
func (m *machine) call(f *frame, row *Step, inst Instruction) error {
	acc := m.access(f, row, MemoryLookedByCPU)
	fp := row.Regs[core.FramePointerRegister]

	retPc := field.New(row.Pc + inst.Size())
	if err := m.mem.Write(acc, fp.Sub(field.One), retPc); err != nil {
		return err
	}
	saved, err := m.mem.Read(acc, fp.Sub(field.New(2)))
	if err != nil {
		return err
	}
	row.Aux0 = retPc
	row.Aux1 = saved
	f.pc = row.Op1.Value()
	return nil
}

// ret restores pc from fp-1 and the frame pointer from fp-2
func (m *machine) ret(f *frame, row *Step) error {
	acc := m.access(f, row, MemoryLookedByCPU)
	fp := row.Regs[core.FramePointerRegister]

	pc, err := m.mem.Read(acc, fp.Sub(field.One))
	if err != nil {
		return err
	}
	saved, err := m.mem.Read(acc, fp.Sub(field.New(2)))
	if err != nil {
		return err
	}
	row.Aux0 = pc
	row.Aux1 = saved
	f.pc = pc.Value()
	f.regs[core.FramePointerRegister] = saved
	return nil
}

// end finishes the transaction at the top level, or returns to the caller
// environment through one ext line
func (m *machine) end(f *frame) []rowBuilder {
	if f.env == 0 {
		m.done = true
		return nil
	}
	return []rowBuilder{func(line *Step) error {
		m.trace.ScCalls[f.scCall].ClkCalleeEnd = line.Clk
		m.frames = m.frames[:len(m.frames)-1]
		return nil
	}}
}

func u32Operands(row *Step) (uint64, uint64, error) {
	a, b := row.Op0.Value(), row.Op1.Value()
	if a >= core.U32Limit {
		return 0, 0, &ExecError{Kind: FaultU32RangeCheck, Value: a}
	}
	if b >= core.U32Limit {
		return 0, 0, &ExecError{Kind: FaultU32RangeCheck, Value: b}
	}
	return a, b, nil
}

func (m *machine) bitwise(f *frame, row *Step, inst Instruction) error {
	a, b, err := u32Operands(row)
	if err != nil {
		return err
	}
	var res uint64
	switch inst.Opcode {
	case AND:
		res = a & b
	case OR:
		res = a | b
	case XOR:
		res = a ^ b
	}
	m.trace.Bitwise = append(m.trace.Bitwise, BitwiseEvent{Opcode: inst.Opcode, Op0: a, Op1: b, Res: res})
	m.setDst(f, row, inst, field.New(res))
	return nil
}

func (m *machine) gte(f *frame, row *Step, inst Instruction) error {
	a, b, err := u32Operands(row)
	if err != nil {
		return err
	}
	ev := CmpEvent{Op0: a, Op1: b, Gte: a >= b}
	if ev.Gte {
		ev.Diff = a - b
	} else {
		ev.Diff = b - a - 1
	}
	m.trace.Cmp = append(m.trace.Cmp, ev)
	m.setDst(f, row, inst, core.Bool(ev.Gte))
	return nil
}

// poseidon hashes op1 cells starting at op0 and writes the digest to the
// four cells starting at the address held in dst
func (m *machine) poseidon(f *frame, row *Step) error {
	acc := m.access(f, row, MemoryLookedByPoseidon)
	src, n, dst := row.Op0, row.Op1.Value(), row.Dst
	if n >= core.U32Limit {
		return &ExecError{Kind: FaultU32RangeCheck, Value: n, Detail: "poseidon input length"}
	}

	chunks := utils.CeilDiv(int(n), poseidon.Rate)
	if chunks == 0 {
		chunks = 1
	}

	var sponge poseidon.Sponge
	for c := 0; c < chunks; c++ {
		base := uint64(c * poseidon.Rate)
		valid := int(n - base)
		if n < base {
			valid = 0
		}
		if valid > poseidon.Rate {
			valid = poseidon.Rate
		}

		ev := PoseidonChunkEvent{
			TxIdx:    row.TxIdx,
			EnvIdx:   f.env,
			Clk:      row.Clk,
			Op0:      src.Value(),
			Op1:      n,
			Dst:      dst.Value(),
			AccBase:  base,
			Valid:    valid,
			IsFirst:  c == 0,
			IsResult: c == chunks-1,
		}
		for i := 0; i < valid; i++ {
			v, err := m.mem.Read(acc, src.Add(field.New(base+uint64(i))))
			if err != nil {
				return err
			}
			ev.Values[i] = v
		}
		ev.States = sponge.Absorb(ev.Values[:valid])
		m.trace.PoseidonChunks = append(m.trace.PoseidonChunks, ev)
		m.trace.Poseidon = append(m.trace.Poseidon, PoseidonEvent{Consumer: PoseidonForChunk, States: ev.States})
	}
	return m.mem.WriteWord(acc, dst, sponge.Squeeze())
}

// storage performs SLOAD/SSTORE: key at op0, value at op1. The backend
// path is checked against the recomputed tree key, leaf and root.
func (m *machine) storage(f *frame, row *Step, op Opcode) ([]rowBuilder, error) {
	acc := m.access(f, row, MemoryLookedByNone)
	backend := m.p.backend

	key, err := m.mem.ReadWord(acc, row.Op0)
	if err != nil {
		return nil, err
	}
	contract := f.addrStorage
	treeKey, keyStates := storage.TreeKey(contract, key)
	m.trace.Poseidon = append(m.trace.Poseidon, PoseidonEvent{Consumer: PoseidonForStorageKey, States: keyStates})

	preRoot := backend.Root()
	preValue, err := backend.Read(contract, key)
	if err != nil {
		return nil, fmt.Errorf("storage read: %w", err)
	}

	value, root := preValue, preRoot
	if op == SLOAD {
		if err := m.mem.WriteWord(acc, row.Op1, value); err != nil {
			return nil, err
		}
	} else {
		if value, err = m.mem.ReadWord(acc, row.Op1); err != nil {
			return nil, err
		}
		if root, err = backend.Write(contract, key, value); err != nil {
			return nil, fmt.Errorf("storage write: %w", err)
		}
		m.journal = append(m.journal, journalEntry{contract: contract, key: key, previous: preValue})
	}

	path, err := backend.Path(contract, key)
	if err != nil {
		return nil, fmt.Errorf("storage path: %w", err)
	}
	leaf, leafStates := storage.LeafHash(treeKey, value)
	if path.TreeKey != treeKey || path.Value != value || path.Leaf != leaf || path.Root != root || !path.Verify() {
		return nil, &ExecError{Kind: FaultStorageLayer, Detail: fmt.Sprintf("tree key %s", treeKey)}
	}
	if leafStates != nil {
		m.trace.Poseidon = append(m.trace.Poseidon, PoseidonEvent{Consumer: PoseidonForStorageLeaf, States: *leafStates})
	}

	m.storageIdx++
	m.trace.Storage = append(m.trace.Storage, StorageAccess{
		Idx:        m.storageIdx,
		TxIdx:      row.TxIdx,
		Clk:        row.Clk,
		Opcode:     op,
		Contract:   contract,
		Key:        key,
		TreeKey:    treeKey,
		PreValue:   preValue,
		Value:      value,
		PreRoot:    preRoot,
		Root:       root,
		Leaf:       leaf,
		LeafHashed: leafStates != nil,
		Siblings:   path.Siblings,
	})
	row.StorageAccessIdx = m.storageIdx
	row.Word = treeKey

	return []rowBuilder{func(*Step) error { return nil }}, nil
}

// tload reads the tape. With flag op0 = 0 it loads tape[op1] into dst;
// with flag 1 it copies the last op1 tape cells to memory at dst.
func (m *machine) tload(f *frame, row *Step, inst Instruction) ([]rowBuilder, error) {
	flag := row.Op0.Value()
	if flag > 1 {
		return nil, &ExecError{Kind: FaultTloadFlag, Value: flag}
	}

	if flag == 0 {
		addr := row.Op1.Value()
		v, err := m.tape.Read(row.Clk+1, TLOAD, addr)
		if err != nil {
			return nil, err
		}
		m.setDst(f, row, inst, v)
		return []rowBuilder{func(line *Step) error {
			line.Dst = v
			line.Aux0 = field.New(addr)
			line.Aux1 = v
			return nil
		}}, nil
	}

	n := row.Op1.Value()
	if err := m.checkExtCount(n); err != nil {
		return nil, err
	}
	tp := m.tape.Pointer()
	if n > tp {
		return nil, &ExecError{Kind: FaultTapeVisit, Addr: tp, Detail: fmt.Sprintf("load of %d cells", n)}
	}
	base := row.Dst
	builders := make([]rowBuilder, n)
	for i := range builders {
		addr := tp - n + uint64(i)
		dst := base.Add(field.New(uint64(i)))
		builders[i] = func(line *Step) error {
			v, err := m.tape.Read(line.Clk, TLOAD, addr)
			if err != nil {
				return err
			}
			acc := memAccess{env: f.env, clk: line.Clk, opcode: TLOAD, consumer: MemoryLookedByNone}
			if err := m.mem.Write(acc, dst, v); err != nil {
				return err
			}
			line.Aux0 = field.New(addr)
			line.Aux1 = v
			return nil
		}
	}
	return builders, nil
}

// checkExtCount bounds an operand-sized ext-line count before any line is
// built: it must fit in u32 and leave room for the primary row within the
// step limit
func (m *machine) checkExtCount(n uint64) error {
	if n >= core.U32Limit {
		return &ExecError{Kind: FaultU32RangeCheck, Value: n, Detail: "cell count"}
	}
	room := m.p.cfg.MaxSteps - len(m.trace.Steps) - 1
	if room < 0 || n > uint64(room) {
		return &ExecError{Kind: FaultStepLimit,
			Detail: fmt.Sprintf("%d ext lines exceed limit %d", n, m.p.cfg.MaxSteps)}
	}
	return nil
}

// tstore appends op1 memory cells starting at op0 to the tape
func (m *machine) tstore(f *frame, row *Step) ([]rowBuilder, error) {
	n := row.Op1.Value()
	if err := m.checkExtCount(n); err != nil {
		return nil, err
	}
	builders := make([]rowBuilder, n)
	for i := range builders {
		src := row.Op0.Add(field.New(uint64(i)))
		builders[i] = func(line *Step) error {
			acc := memAccess{env: f.env, clk: line.Clk, opcode: TSTORE, consumer: MemoryLookedByNone}
			v, err := m.mem.Read(acc, src)
			if err != nil {
				return err
			}
			line.Aux0 = field.New(m.tape.Append(line.Clk, TSTORE, v))
			line.Aux1 = v
			return nil
		}
	}
	return builders, nil
}

// sccall calls the contract whose address is at op0. A nonzero op1 runs
// the callee code against the caller's storage.
func (m *machine) sccall(f *frame, row *Step) ([]rowBuilder, error) {
	callee, err := m.mem.ReadWord(m.access(f, row, MemoryLookedByNone), row.Op0)
	if err != nil {
		return nil, err
	}
	if _, ok := m.p.programs[callee]; !ok {
		return nil, &ExecError{Kind: FaultCodeNotFound, Detail: fmt.Sprintf("code address %s", callee)}
	}

	delegate := !row.Op1.IsZero()
	calleeStorage := callee
	if delegate {
		calleeStorage = f.addrStorage
	}

	m.callScCnt++
	calleeEnv := m.callScCnt
	row.CallScCnt = calleeEnv
	row.Word = callee

	event := -1
	return []rowBuilder{
		func(line *Step) error {
			m.trace.ScCalls = append(m.trace.ScCalls, ScCallEvent{
				TxIdx:         row.TxIdx,
				CallerEnv:     f.env,
				CalleeEnv:     calleeEnv,
				CallerStorage: f.addrStorage,
				CallerCode:    f.addrCode,
				CalleeStorage: calleeStorage,
				CalleeCode:    callee,
				ClkCall:       line.Clk,
				Delegate:      delegate,
			})
			event = len(m.trace.ScCalls) - 1
			return nil
		},
		func(line *Step) error {
			for _, v := range f.addrStorage {
				m.tape.Append(line.Clk, SCCALL, v)
			}
			return nil
		},
		func(line *Step) error {
			for _, v := range callee {
				m.tape.Append(line.Clk, SCCALL, v)
			}
			next, err := m.p.newFrame(calleeEnv, calleeStorage, callee, event)
			if err != nil {
				return err
			}
			m.frames = append(m.frames, next)
			return nil
		},
	}, nil
}
