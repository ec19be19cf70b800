package ctl

import (
	"fmt"
	"strings"

	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
)

type multiset map[string]field.Element

func rowKey(values []field.Element) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", v.Value())
	}
	return b.String()
}

func (m multiset) add(t *tables.Table, tw *TableWithColumns) {
	for row := 0; row < t.Height(); row++ {
		f := tw.Filter.Eval(t, row)
		if f.IsZero() {
			continue
		}
		key := rowKey(project(t, tw, row))
		m[key] = m[key].Add(f)
	}
}

// CheckMultisets checks every lookup in plaintext: each projected row
// must occur as often on the looking sides as on the looked side, with
// filters as multiplicities
func CheckMultisets(all *[tables.NumTables]*tables.Table, lookups []CrossTableLookup) error {
	for i := range lookups {
		l := &lookups[i]
		looking, looked := multiset{}, multiset{}

		for s := range l.Looking {
			t, err := tableFor(all, l.Looking[s].Table)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", l.Name, err)
			}
			if got, want := len(l.Looking[s].Columns), len(l.Looked.Columns); got != want {
				return fmt.Errorf("lookup %s side %d: %d columns, looked side has %d", l.Name, s, got, want)
			}
			looking.add(t, &l.Looking[s])
		}
		t, err := tableFor(all, l.Looked.Table)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", l.Name, err)
		}
		looked.add(t, &l.Looked)

		for key, n := range looking {
			if !n.Equal(looked[key]) {
				return fmt.Errorf("lookup %s: row (%s) looked up %d times, provided %d: %w",
					l.Name, key, n.Value(), looked[key].Value(), ErrLookupMismatch)
			}
		}
		for key, n := range looked {
			if _, ok := looking[key]; !ok && !n.IsZero() {
				return fmt.Errorf("lookup %s: row (%s) provided %d times, never looked up: %w",
					l.Name, key, n.Value(), ErrLookupMismatch)
			}
		}
	}
	return nil
}
