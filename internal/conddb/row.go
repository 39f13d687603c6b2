package conddb

import (
	"strconv"
	"strings"
)

// UnsetChannel marks a row without a channel.
const UnsetChannel uint64 = 0xFFFFFFFF

// Row is one table row. Columns follow the table's column order.
type Row struct {
	cols []Column

	Channel    uint64
	VldTime    float64
	VldTimeEnd float64

	// InDB is set when the row was loaded from, or inserted into, the database.
	InDB bool

	// IsVldRow marks a conditions row that carries validity information.
	IsVldRow bool
}

func newRow(defs []ColumnDef) *Row {
	r := &Row{cols: make([]Column, len(defs)), Channel: UnsetChannel}
	for i, d := range defs {
		r.cols[i] = NewColumn(d)
	}
	return r
}

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.cols) }

// Col returns column i, or nil when out of range.
func (r *Row) Col(i int) *Column {
	if i < 0 || i >= len(r.cols) {
		return nil
	}
	return &r.cols[i]
}

// HasChannel reports whether Channel is set.
func (r *Row) HasChannel() bool { return r.Channel != UnsetChannel }

// ModifiedCount returns the number of modified columns.
func (r *Row) ModifiedCount() int {
	n := 0
	for i := range r.cols {
		if r.cols[i].modified {
			n++
		}
	}
	return n
}

// ClearModified resets the modification flag of every column.
func (r *Row) ClearModified() {
	for i := range r.cols {
		r.cols[i].modified = false
	}
}

// Equal compares channel, validity and column values, using the tolerances
// in defs for float columns.
func (r *Row) Equal(other *Row, defs []ColumnDef) bool {
	if r.Channel != other.Channel || r.VldTime != other.VldTime || r.VldTimeEnd != other.VldTimeEnd {
		return false
	}
	if len(r.cols) != len(other.cols) {
		return false
	}
	for i := range r.cols {
		tol := 0.0
		if i < len(defs) {
			tol = defs[i].EffectiveTolerance()
		}
		if !r.cols[i].Equal(&other.cols[i], tol) {
			return false
		}
	}
	return true
}

func (r *Row) String() string {
	var b strings.Builder
	if r.HasChannel() {
		b.WriteString(strconv.FormatUint(r.Channel, 10))
		b.WriteString(" @")
		b.WriteString(formatFloat(r.VldTime))
		b.WriteString(": ")
	}
	for i := range r.cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.cols[i].String())
	}
	return b.String()
}
