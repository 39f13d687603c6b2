package conddb

// selection shapes SELECT statements and query engine requests.
type selection struct {
	distinct []string
	order    []string
	desc     bool
	limit    int
	offset   int
	where    string
	exclude  map[string]bool
}

// Bound is one side of a validity window on a column.
type Bound struct {
	Column string
	Value  Column
}

// validity is the window rows must fall in. sql, when set, replaces the
// bounds. changed guards the load short-circuit; every selection setter
// sets it.
type validity struct {
	start   []Bound
	end     []Bound
	sql     string
	changed bool
}

// conditionsFilter narrows conditions queries.
type conditionsFilter struct {
	mask       DataTypeMask
	minTSVld   float64
	maxTSVld   float64
	recordTime float64
	tag        string

	hasChanRange bool
	chanMin      uint64
	chanMax      uint64
}

// AddDistinctColumn adds a column to the DISTINCT ON list.
func (t *Table) AddDistinctColumn(name string) {
	t.sel.distinct = append(t.sel.distinct, name)
	t.validity.changed = true
}

// AddOrderColumn adds a column to the ORDER BY list.
func (t *Table) AddOrderColumn(name string) {
	t.sel.order = append(t.sel.order, name)
	t.validity.changed = true
}

// SetOrderDesc sorts descending.
func (t *Table) SetOrderDesc() { t.setDesc(true) }

// SetOrderAsc sorts ascending, the default.
func (t *Table) SetOrderAsc() { t.setDesc(false) }

func (t *Table) setDesc(v bool) {
	t.sel.desc = v
	t.validity.changed = true
}

// SetSelectLimit caps the number of rows; 0 means no limit.
func (t *Table) SetSelectLimit(n int) {
	t.sel.limit = max(n, 0)
	t.validity.changed = true
}

// SetSelectOffset skips the first n rows.
func (t *Table) SetSelectOffset(n int) {
	t.sel.offset = max(n, 0)
	t.validity.changed = true
}

// SetWhere sets a raw SQL condition ANDed with the validity window.
func (t *Table) SetWhere(clause string) {
	t.sel.where = clause
	t.validity.changed = true
}

// ExcludeColumn leaves name out of selections.
func (t *Table) ExcludeColumn(name string) {
	t.sel.exclude[name] = true
	t.validity.changed = true
}

// IncludeColumn undoes ExcludeColumn.
func (t *Table) IncludeColumn(name string) {
	delete(t.sel.exclude, name)
	t.validity.changed = true
}

// selectedColumns returns the columns not excluded, in table order.
func (t *Table) selectedColumns() []ColumnDef {
	out := make([]ColumnDef, 0, len(t.cols))
	for _, c := range t.cols {
		if !t.sel.exclude[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) bound(column, value string) (Bound, error) {
	i := t.ColumnIndex(column)
	if i < 0 {
		return Bound{}, newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no column %q for validity window", column)
	}
	col := NewColumn(t.cols[i])
	if err := col.load(value); err != nil {
		return Bound{}, err
	}
	return Bound{Column: column, Value: col}, nil
}

// AddValidityStart requires column >= value.
func (t *Table) AddValidityStart(column, value string) error {
	b, err := t.bound(column, value)
	if err != nil {
		return err
	}
	t.validity.start = append(t.validity.start, b)
	t.validity.changed = true
	return nil
}

// AddValidityEnd requires column <= value.
func (t *Table) AddValidityEnd(column, value string) error {
	b, err := t.bound(column, value)
	if err != nil {
		return err
	}
	t.validity.end = append(t.validity.end, b)
	t.validity.changed = true
	return nil
}

// SetValiditySQL replaces the validity bounds with a raw SQL condition.
func (t *Table) SetValiditySQL(clause string) {
	t.validity.sql = clause
	t.validity.changed = true
}

// ClearValidity drops the validity window.
func (t *Table) ClearValidity() {
	t.validity.start = nil
	t.validity.end = nil
	t.validity.sql = ""
	t.validity.changed = true
}

// ValidityChanged reports whether the next load must query the backend.
func (t *Table) ValidityChanged() bool { return t.validity.changed }

// SetDataTypeMask restricts conditions queries to data and/or MC.
func (t *Table) SetDataTypeMask(m DataTypeMask) {
	t.filter.mask = m
	t.validity.changed = true
}

// DataTypeMask returns the data type filter.
func (t *Table) DataTypeMask() DataTypeMask { return t.filter.mask }

// SetMinTSVld sets the lower validity timestamp of conditions queries.
func (t *Table) SetMinTSVld(ts float64) {
	t.filter.minTSVld = ts
	t.validity.changed = true
}

// SetMaxTSVld sets the upper validity timestamp of conditions queries.
func (t *Table) SetMaxTSVld(ts float64) {
	t.filter.maxTSVld = ts
	t.validity.changed = true
}

// SetRecordTime asks for the table as it was recorded at ts.
func (t *Table) SetRecordTime(ts float64) {
	t.filter.recordTime = ts
	t.validity.changed = true
}

// SetTag selects a tagged snapshot.
func (t *Table) SetTag(tag string) {
	t.filter.tag = tag
	t.validity.changed = true
}

// Tag returns the selected tag.
func (t *Table) Tag() string { return t.filter.tag }

// SetChannelRange restricts conditions queries to [lo, hi].
func (t *Table) SetChannelRange(lo, hi uint64) {
	if lo > hi {
		lo, hi = hi, lo
	}
	t.filter.hasChanRange = true
	t.filter.chanMin, t.filter.chanMax = lo, hi
	t.validity.changed = true
}

// ClearChannelRange removes the channel restriction.
func (t *Table) ClearChannelRange() {
	t.filter.hasChanRange = false
	t.validity.changed = true
}

// SetFlushCache asks the web service to refresh its cache.
func (t *Table) SetFlushCache(v bool) { t.flushCache = v }

// SetDisableCache asks the web service to bypass its cache.
func (t *Table) SetDisableCache(v bool) { t.disableCache = v }
