package vm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/storage"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
)

// TxInput is one transaction
type TxInput struct {
	Contract core.Address // entry contract: storage and code address
	Caller   core.Address
	Origin   core.Address
	Calldata []field.Element
}

// Process is the execution engine. It holds deployed programs, the storage
// backend and the counters that span a batch.
type Process struct {
	cfg        *utils.Config
	backend    storage.Backend
	programs   map[core.Address]*Program
	executed   map[core.Address]bool
	log        *logrus.Entry
	nextTx     uint64
	storageIdx uint64
}

// NewProcess creates an engine over backend
func NewProcess(cfg *utils.Config, backend storage.Backend) *Process {
	if cfg == nil {
		cfg = utils.DefaultConfig()
	}
	return &Process{
		cfg:      cfg,
		backend:  backend,
		programs: make(map[core.Address]*Program),
		executed: make(map[core.Address]bool),
		log:      logrus.WithField("component", "vm"),
	}
}

// WithLogger replaces the engine's log entry
func (p *Process) WithLogger(entry *logrus.Entry) *Process {
	p.log = entry
	return p
}

// Deploy registers a program under its address
func (p *Process) Deploy(prog *Program) {
	p.programs[prog.Address] = prog
}

// frame is one execution environment
type frame struct {
	env         uint64
	addrStorage core.Address
	addrCode    core.Address
	program     *Program
	regs        [core.NumRegisters]field.Element
	pc          uint64
	scCall      int // ScCallEvent that opened this environment, -1 at top level
}

type journalEntry struct {
	contract core.Address
	key      core.Word
	previous core.Word
}

// machine is the state of one transaction being interpreted
type machine struct {
	p          *Process
	ctx        context.Context
	trace      *Trace
	mem        *Memory
	tape       *Tape
	frames     []*frame
	clk        uint64
	callScCnt  uint64
	storageIdx uint64
	journal    []journalEntry
	done       bool
}

// rowBuilder fills one ext line and performs its side effects
type rowBuilder func(line *Step) error

func (p *Process) newFrame(env uint64, storageAddr, codeAddr core.Address, scCall int) (*frame, error) {
	prog, ok := p.programs[codeAddr]
	if !ok {
		return nil, &ExecError{Kind: FaultCodeNotFound, Detail: fmt.Sprintf("code address %s", codeAddr)}
	}
	p.executed[codeAddr] = true

	f := &frame{env: env, addrStorage: storageAddr, addrCode: codeAddr, program: prog, scCall: scCall}
	f.regs[core.FramePointerRegister] = field.New(p.cfg.InitialFramePointer)
	return f, nil
}

// ExecuteTx interprets one transaction. A fault aborts the transaction,
// reverts its storage writes and returns no trace.
func (p *Process) ExecuteTx(ctx context.Context, tx TxInput) (*Trace, error) {
	txIdx := p.nextTx
	m := &machine{
		p:          p,
		ctx:        ctx,
		trace:      &Trace{TxIdx: txIdx, RootBefore: p.backend.Root()},
		mem:        NewMemory(txIdx),
		tape:       NewTape(txIdx, tx.Origin, tx.Caller, tx.Calldata),
		storageIdx: p.storageIdx,
	}

	entry, err := p.newFrame(0, tx.Contract, tx.Contract, -1)
	if err != nil {
		var execErr *ExecError
		if errors.As(err, &execErr) {
			execErr.TxIdx = txIdx
		}
		return nil, err
	}
	m.frames = []*frame{entry}

	if err := m.run(); err != nil {
		if rerr := m.revert(); rerr != nil {
			return nil, fmt.Errorf("%w (revert failed: %v)", err, rerr)
		}
		p.log.WithFields(logrus.Fields{"tx": txIdx, "error": err}).Warn("transaction reverted")
		return nil, err
	}

	m.trace.Memory = m.mem.Events()
	m.trace.Tape = m.tape.Events()
	m.trace.RootAfter = p.backend.Root()

	p.nextTx++
	p.storageIdx = m.storageIdx

	p.log.WithFields(logrus.Fields{
		"tx":       txIdx,
		"steps":    len(m.trace.Steps),
		"memory":   len(m.trace.Memory),
		"storage":  len(m.trace.Storage),
		"sccalls":  len(m.trace.ScCalls),
		"poseidon": len(m.trace.Poseidon),
	}).Debug("transaction executed")

	return m.trace, nil
}

// ExecuteBatch interprets transactions in order. The first fault aborts
// the batch; transactions already executed keep their storage effects.
func (p *Process) ExecuteBatch(ctx context.Context, txs []TxInput) (*Batch, error) {
	batch := &Batch{RootBefore: p.backend.Root()}
	for i, tx := range txs {
		trace, err := p.ExecuteTx(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		batch.Txs = append(batch.Txs, trace)
	}
	batch.RootAfter = p.backend.Root()

	addrs := make([]core.Address, 0, len(p.executed))
	for addr := range p.executed {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	for _, addr := range addrs {
		prog := p.programs[addr]
		batch.Programs = append(batch.Programs, prog)
		_, chunks := ProgramHash(prog)
		batch.ProgramChunks = append(batch.ProgramChunks, chunks...)
	}
	return batch, nil
}

func (m *machine) frame() *frame {
	return m.frames[len(m.frames)-1]
}

func (m *machine) run() error {
	for !m.done {
		if m.clk%1024 == 0 {
			if err := m.ctx.Err(); err != nil {
				return err
			}
		}
		if err := m.step(); err != nil {
			return err
		}
	}
	return nil
}

// annotate stamps an execution fault with the faulting row
func (m *machine) annotate(err error, row *Step) error {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		execErr.TxIdx = row.TxIdx
		execErr.Clk = row.Clk
		execErr.Pc = row.Pc
	}
	return err
}

// primary builds the primary row of inst from the current frame
func (m *machine) primary(f *frame, inst Instruction) Step {
	row := Step{
		TxIdx:            m.trace.TxIdx,
		EnvIdx:           f.env,
		CallScCnt:        m.callScCnt,
		AddrStorage:      f.addrStorage,
		AddrCode:         f.addrCode,
		Pc:               f.pc,
		Clk:              m.clk,
		Tp:               m.tape.Pointer(),
		Instruction:      inst.Word(),
		Opcode:           inst.Opcode,
		Op1Imm:           inst.Op1Imm,
		Regs:             f.regs,
		StorageAccessIdx: m.storageIdx,
		Selector: RegisterSelector{
			Op0: oneHot(inst.Op0),
			Op1: oneHot(inst.Op1),
			Dst: oneHot(inst.Dst),
		},
	}
	if inst.Op0 != NoRegister {
		row.Op0 = f.regs[inst.Op0]
	}
	if inst.Op1Imm {
		row.ImmVal = inst.Imm
		row.Op1 = inst.Imm
	} else if inst.Op1 != NoRegister {
		row.Op1 = f.regs[inst.Op1]
	}
	if inst.Dst != NoRegister {
		row.Dst = f.regs[inst.Dst]
	}
	return row
}

// step interprets one instruction and emits its primary row and ext lines
func (m *machine) step() error {
	f := m.frame()
	inst, ok := f.program.Fetch(f.pc)
	if !ok {
		return &ExecError{Kind: FaultPcVisit, TxIdx: m.trace.TxIdx, Clk: m.clk, Pc: f.pc, Addr: f.pc}
	}

	row := m.primary(f, inst)
	f.pc += inst.Size()

	ext, err := m.execute(f, &row, inst)
	if err != nil {
		return m.annotate(err, &row)
	}
	if want := row.ExtLength(); uint64(len(ext)) != want {
		return fmt.Errorf("%w: %s at pc %d built %d ext lines, want %d",
			ErrInvariantViolated, inst.Opcode, row.Pc, len(ext), want)
	}

	lines := make([]Step, 0, len(ext))
	for k, build := range ext {
		line := row.extLine(uint64(k + 1))
		line.Clk = row.Clk + uint64(k+1)
		line.Tp = m.tape.Pointer()
		if err := build(&line); err != nil {
			return m.annotate(err, &line)
		}
		lines = append(lines, line)
	}

	if err := m.emit(row); err != nil {
		return err
	}
	for _, line := range lines {
		if err := m.emit(line); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) emit(row Step) error {
	if len(m.trace.Steps) >= m.p.cfg.MaxSteps {
		return &ExecError{Kind: FaultStepLimit, TxIdx: row.TxIdx, Clk: row.Clk, Pc: row.Pc,
			Detail: fmt.Sprintf("limit %d", m.p.cfg.MaxSteps)}
	}
	m.trace.Steps = append(m.trace.Steps, row)
	m.clk = row.Clk + 1
	return nil
}

// revert restores the storage values written by the transaction
func (m *machine) revert() error {
	for i := len(m.journal) - 1; i >= 0; i-- {
		e := m.journal[i]
		if _, err := m.p.backend.Write(e.contract, e.key, e.previous); err != nil {
			return err
		}
	}
	return nil
}
