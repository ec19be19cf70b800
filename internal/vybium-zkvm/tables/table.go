// Package tables turns execution logs into the column tables of the
// trace. Every table is an arena of named columns with its own
// power-of-two height.
package tables

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
)

// TableID uniquely identifies each table. The order is the output order
// of the trace generator.
type TableID int

const (
	// Cpu records one row per execution step
	Cpu TableID = iota

	// Memory ensures memory consistency
	Memory

	// Bitwise holds AND/OR/XOR operands with byte limbs
	Bitwise

	// Cmp holds GTE operands and their difference
	Cmp

	// RangeCheck collects every value that must fit in 32 bits
	RangeCheck

	// Poseidon records one row per permutation
	Poseidon

	// PoseidonChunk records the chunks absorbed by POSEIDON instructions
	PoseidonChunk

	// StorageHash records the Merkle path of every storage access
	StorageHash

	// Tape records tape initialization and accesses
	Tape

	// ScCall records cross-contract calls
	ScCall

	// Program provides the bytecode of every executed program
	Program

	// ProgramChunk computes program digests
	ProgramChunk

	// NumTables is the number of tables
	NumTables = int(ProgramChunk) + 1
)

// String returns the name of the table
func (id TableID) String() string {
	switch id {
	case Cpu:
		return "Cpu"
	case Memory:
		return "Memory"
	case Bitwise:
		return "Bitwise"
	case Cmp:
		return "Cmp"
	case RangeCheck:
		return "RangeCheck"
	case Poseidon:
		return "Poseidon"
	case PoseidonChunk:
		return "PoseidonChunk"
	case StorageHash:
		return "StorageHash"
	case Tape:
		return "Tape"
	case ScCall:
		return "ScCall"
	case Program:
		return "Program"
	case ProgramChunk:
		return "ProgramChunk"
	default:
		return "Unknown"
	}
}

// AllTables lists the tables in output order
func AllTables() []TableID {
	ids := make([]TableID, NumTables)
	for i := range ids {
		ids[i] = TableID(i)
	}
	return ids
}

// ErrChallengeUnavailable is returned when a two-phase table is finalized
// before its compression challenge is set
var ErrChallengeUnavailable = errors.New("compression challenge not set")

// PolynomialValues is one column evaluated over the table's rows
type PolynomialValues []field.Element

// Table is a column arena. All columns have the same length, Height().
type Table struct {
	ID      TableID
	names   []string
	columns [][]field.Element
	height  int
}

// NewTable allocates a table with rows zeroed rows
func NewTable(id TableID, names []string, rows int) *Table {
	t := &Table{ID: id, names: names, columns: make([][]field.Element, len(names)), height: rows}
	for i := range t.columns {
		t.columns[i] = make([]field.Element, rows)
	}
	return t
}

// Height returns the number of rows
func (t *Table) Height() int {
	return t.height
}

// Width returns the number of columns
func (t *Table) Width() int {
	return len(t.columns)
}

// Names returns the column names
func (t *Table) Names() []string {
	return t.names
}

// ColumnIndex resolves a column name
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, n := range t.names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Column returns a column
func (t *Table) Column(col int) []field.Element {
	return t.columns[col]
}

// Get returns one cell
func (t *Table) Get(row, col int) field.Element {
	return t.columns[col][row]
}

// Set writes one cell
func (t *Table) Set(row, col int, v field.Element) {
	t.columns[col][row] = v
}

// SetU64 writes a canonical value
func (t *Table) SetU64(row, col int, v uint64) {
	t.columns[col][row] = field.New(v)
}

// SetBool writes 0 or 1
func (t *Table) SetBool(row, col int, b bool) {
	if b {
		t.columns[col][row] = field.One
	} else {
		t.columns[col][row] = field.Zero
	}
}

// SetSlice writes consecutive columns starting at col
func (t *Table) SetSlice(row, col int, vs []field.Element) {
	for i, v := range vs {
		t.columns[col+i][row] = v
	}
}

// Row copies one row
func (t *Table) Row(row int) []field.Element {
	out := make([]field.Element, len(t.columns))
	for c := range t.columns {
		out[c] = t.columns[c][row]
	}
	return out
}

// PolynomialValues returns the columns
func (t *Table) PolynomialValues() []PolynomialValues {
	out := make([]PolynomialValues, len(t.columns))
	for i, col := range t.columns {
		out[i] = PolynomialValues(col)
	}
	return out
}

// Digest hashes every cell column by column
func (t *Table) Digest() field.Element {
	cells := make([]field.Element, 0, len(t.columns)*t.height+2)
	cells = append(cells, field.New(uint64(t.ID)), field.New(uint64(t.height)))
	for _, col := range t.columns {
		cells = append(cells, col...)
	}
	return hash.PoseidonHash(cells)
}

// rowsFor returns the padded height for n real rows
func rowsFor(n int) int {
	return utils.NextPowerOfTwo(n)
}

// padWith fills rows [from, height) by calling fill on each
func (t *Table) padWith(from int, fill func(row int)) {
	for row := from; row < t.height; row++ {
		fill(row)
	}
}

// copyRow copies every cell of src into dst
func (t *Table) copyRow(dst, src int) {
	for c := range t.columns {
		t.columns[c][dst] = t.columns[c][src]
	}
}

// columnNames builds a name list in lockstep with column index constants
type columnNames []string

func (n *columnNames) add(idx int, name string) {
	if idx != len(*n) {
		panic(fmt.Sprintf("tables: column %q declared at %d, expected %d", name, idx, len(*n)))
	}
	*n = append(*n, name)
}

func (n *columnNames) group(idx int, name string, width int) {
	for i := 0; i < width; i++ {
		n.add(idx+i, fmt.Sprintf("%s_%d", name, i))
	}
}

// PhasedTable is a table whose last columns depend on a compression
// challenge. The raw columns are available at once; the compressed ones
// are filled by Finalize after SetCompressChallenge.
type PhasedTable struct {
	table    *Table
	rawCols  int
	compress func(t *Table, beta field.Element)
	beta     field.Element
	ready    bool
}

// Raw returns the table with only its raw columns filled
func (p *PhasedTable) Raw() *Table {
	return p.table
}

// Beta derives the table's own challenge candidate from its raw columns
func (p *PhasedTable) Beta() field.Element {
	cells := make([]field.Element, 0, p.rawCols*p.table.height+1)
	cells = append(cells, field.New(uint64(p.table.ID)))
	for c := 0; c < p.rawCols; c++ {
		cells = append(cells, p.table.columns[c]...)
	}
	return hash.PoseidonHash(cells)
}

// SetCompressChallenge sets the compression challenge
func (p *PhasedTable) SetCompressChallenge(beta field.Element) {
	p.beta = beta
	p.ready = true
}

// Finalize fills the compressed columns
func (p *PhasedTable) Finalize() (*Table, error) {
	if !p.ready {
		return nil, fmt.Errorf("%s table: %w", p.table.ID, ErrChallengeUnavailable)
	}
	p.compress(p.table, p.beta)
	return p.table, nil
}
