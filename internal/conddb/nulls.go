package conddb

import (
	"fmt"
	"strings"
)

// NullEntry is an unset value in a non-nullable column.
type NullEntry struct {
	Row    int
	Column string
}

func (n NullEntry) String() string {
	return fmt.Sprintf("row %d column %s", n.Row, n.Column)
}

// CheckForNulls records every unset value in a non-nullable column and
// returns NULL_IN_NON_NULL if there is any. Auto-increment columns of rows
// not yet in the database are exempt.
func (t *Table) CheckForNulls() error {
	t.nulls = t.nulls[:0]
	for ri, r := range t.rows {
		for ci, def := range t.cols {
			if def.Nullable || !r.cols[ci].IsNull() {
				continue
			}
			if def.Type == TypeAutoIncr && !r.InDB {
				continue
			}
			if serverManagedColumns[def.Name] {
				continue
			}
			t.nulls = append(t.nulls, NullEntry{Row: ri, Column: def.Name})
		}
	}
	if len(t.nulls) == 0 {
		return nil
	}
	parts := make([]string, 0, min(len(t.nulls), 5))
	for i, n := range t.nulls {
		if i == 5 {
			parts = append(parts, fmt.Sprintf("... %d more", len(t.nulls)-5))
			break
		}
		parts = append(parts, n.String())
	}
	return newError(ErrCodeNullInNonNull, t.QualifiedName(), nil, "%s", strings.Join(parts, "; "))
}

// NullList returns the entries found by the last CheckForNulls.
func (t *Table) NullList() []NullEntry {
	out := make([]NullEntry, len(t.nulls))
	copy(out, t.nulls)
	return out
}

// checkLayout verifies every row matches the column count.
func (t *Table) checkLayout() error {
	for i, r := range t.rows {
		if r.Len() != len(t.cols) {
			return newError(ErrCodeColumnMismatch, t.QualifiedName(), nil,
				"row %d has %d columns, table has %d", i, r.Len(), len(t.cols))
		}
	}
	return nil
}
