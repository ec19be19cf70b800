// Package ctl declares the cross-table lookups that tie the trace tables
// together and checks them, either as plaintext multisets or through
// log-derivative running sums.
package ctl

import (
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
)

// Term is one weighted column of a linear combination
type Term struct {
	Col   int
	Coeff field.Element
}

// Column is a linear combination of table columns plus a constant. Both
// projected values and filters are Columns.
type Column struct {
	Terms    []Term
	Constant field.Element
}

// Single projects one column
func Single(col int) Column {
	return Column{Terms: []Term{{Col: col, Coeff: field.One}}}
}

// Singles projects each column on its own
func Singles(cols ...int) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Single(c)
	}
	return out
}

// Range projects width consecutive columns starting at first
func Range(first, width int) []Column {
	out := make([]Column, width)
	for i := range out {
		out[i] = Single(first + i)
	}
	return out
}

// WordAt projects the four limbs of a word starting at first
func WordAt(first int) []Column {
	return Range(first, core.WordLength)
}

// Constant is a column that evaluates to v on every row
func Constant(v field.Element) Column {
	return Column{Constant: v}
}

// Sum adds columns with unit coefficients
func Sum(cols ...int) Column {
	c := Column{}
	for _, col := range cols {
		c.Terms = append(c.Terms, Term{Col: col, Coeff: field.One})
	}
	return c
}

// OneMinus evaluates to 1 - col
func OneMinus(col int) Column {
	return Column{
		Terms:    []Term{{Col: col, Coeff: core.NegOne}},
		Constant: field.One,
	}
}

// Plus returns c + v
func (c Column) Plus(v field.Element) Column {
	out := Column{Terms: append([]Term(nil), c.Terms...), Constant: c.Constant.Add(v)}
	return out
}

// Scale returns k·c
func (c Column) Scale(k field.Element) Column {
	out := Column{Terms: make([]Term, len(c.Terms)), Constant: c.Constant.Mul(k)}
	for i, term := range c.Terms {
		out.Terms[i] = Term{Col: term.Col, Coeff: term.Coeff.Mul(k)}
	}
	return out
}

// Fold returns Σ x^i·cols[i], a single column
func Fold(x field.Element, cols ...Column) Column {
	out := Column{}
	pow := field.One
	for _, c := range cols {
		scaled := c.Scale(pow)
		out.Terms = append(out.Terms, scaled.Terms...)
		out.Constant = out.Constant.Add(scaled.Constant)
		pow = pow.Mul(x)
	}
	return out
}

// Eval evaluates the combination on one row of t
func (c Column) Eval(t *tables.Table, row int) field.Element {
	acc := c.Constant
	for _, term := range c.Terms {
		acc = acc.Add(term.Coeff.Mul(t.Get(row, term.Col)))
	}
	return acc
}

// Offset evaluates to col + k
func Offset(col int, k int64) Column {
	return Single(col).Plus(core.FromInt(k))
}
