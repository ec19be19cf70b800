package ctl

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
)

// NumChallenges is the number of independent challenge pairs every lookup
// is checked against
const NumChallenges = 2

// ErrLookupMismatch is returned when the two sides of a lookup disagree
var ErrLookupMismatch = errors.New("cross-table lookup mismatch")

// Challenge compresses a projected row as Σ beta^i·v_i and evaluates the
// log-derivative term filter/(gamma - compressed)
type Challenge struct {
	Beta  field.Element
	Gamma field.Element
}

// DeriveChallenges expands a seed into n challenge pairs
func DeriveChallenges(seed field.Element, n int) []Challenge {
	out := make([]Challenge, n)
	for i := range out {
		out[i] = Challenge{
			Beta:  hash.PoseidonHash([]field.Element{seed, field.New(uint64(2 * i))}),
			Gamma: hash.PoseidonHash([]field.Element{seed, field.New(uint64(2*i + 1))}),
		}
	}
	return out
}

// Combine compresses a projected row
func (c Challenge) Combine(values []field.Element) field.Element {
	acc := field.Zero
	for i := len(values) - 1; i >= 0; i-- {
		acc = acc.Mul(c.Beta).Add(values[i])
	}
	return acc
}

// ZData is the log-derivative running sum of one lookup side under one
// challenge. Z[i] = Z[i-1] + f_i/(gamma - combine(row_i)).
type ZData struct {
	Table     tables.TableID
	Challenge Challenge
	Z         tables.PolynomialValues
}

// Terminal returns the final value of the running sum
func (z *ZData) Terminal() field.Element {
	if len(z.Z) == 0 {
		return field.Zero
	}
	return z.Z[len(z.Z)-1]
}

// LookupZData holds the running sums of every side of one lookup
type LookupZData struct {
	Name    string
	Looking [][]ZData // [side][challenge]
	Looked  []ZData   // [challenge]
}

func project(t *tables.Table, tw *TableWithColumns, row int) []field.Element {
	values := make([]field.Element, len(tw.Columns))
	for i, c := range tw.Columns {
		values[i] = c.Eval(t, row)
	}
	return values
}

// runningSum computes the running sum of one side. Rows with a zero
// filter contribute nothing and skip the inversion.
func runningSum(t *tables.Table, tw *TableWithColumns, ch Challenge) (ZData, error) {
	z := make(tables.PolynomialValues, t.Height())
	acc := field.Zero
	for row := 0; row < t.Height(); row++ {
		f := tw.Filter.Eval(t, row)
		if !f.IsZero() {
			denominator := ch.Gamma.Sub(ch.Combine(project(t, tw, row)))
			if denominator.IsZero() {
				return ZData{}, fmt.Errorf("%s row %d: challenge equals compressed row", tw.Table, row)
			}
			acc = acc.Add(f.Mul(denominator.Inverse()))
		}
		z[row] = acc
	}
	return ZData{Table: tw.Table, Challenge: ch, Z: z}, nil
}

func tableFor(all *[tables.NumTables]*tables.Table, id tables.TableID) (*tables.Table, error) {
	t := all[id]
	if t == nil {
		return nil, fmt.Errorf("%s table missing", id)
	}
	return t, nil
}

// ComputeRunningSums computes the running sums of every side of every
// lookup under every challenge
func ComputeRunningSums(all *[tables.NumTables]*tables.Table, lookups []CrossTableLookup, challenges []Challenge) ([]LookupZData, error) {
	out := make([]LookupZData, len(lookups))
	for i := range lookups {
		l := &lookups[i]
		out[i].Name = l.Name
		out[i].Looking = make([][]ZData, len(l.Looking))

		for s := range l.Looking {
			tw := &l.Looking[s]
			t, err := tableFor(all, tw.Table)
			if err != nil {
				return nil, fmt.Errorf("lookup %s: %w", l.Name, err)
			}
			for _, ch := range challenges {
				z, err := runningSum(t, tw, ch)
				if err != nil {
					return nil, fmt.Errorf("lookup %s: %w", l.Name, err)
				}
				out[i].Looking[s] = append(out[i].Looking[s], z)
			}
		}

		t, err := tableFor(all, l.Looked.Table)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", l.Name, err)
		}
		for _, ch := range challenges {
			z, err := runningSum(t, &l.Looked, ch)
			if err != nil {
				return nil, fmt.Errorf("lookup %s: %w", l.Name, err)
			}
			out[i].Looked = append(out[i].Looked, z)
		}
	}
	return out, nil
}

// Verify checks, for every lookup and challenge, that the looking
// terminals sum to the looked terminal
func Verify(data []LookupZData) error {
	for _, d := range data {
		for c := range d.Looked {
			sum := field.Zero
			for s := range d.Looking {
				sum = sum.Add(d.Looking[s][c].Terminal())
			}
			if !sum.Equal(d.Looked[c].Terminal()) {
				return fmt.Errorf("lookup %s challenge %d: %w", d.Name, c, ErrLookupMismatch)
			}
		}
	}
	return nil
}
