package conddb

import (
	"slices"
	"sort"
)

// FillChanRowMap rebuilds the channel index. Each channel's rows are kept in
// ascending VldTime order; rows with equal VldTime keep their table order.
func (t *Table) FillChanRowMap() {
	m := make(map[uint64][]*Row)
	for _, r := range t.rows {
		if !r.HasChannel() {
			continue
		}
		m[r.Channel] = insertByVldTime(m[r.Channel], r)
	}
	t.chanRowMap = m
	t.channels = make([]uint64, 0, len(m))
	for c := range m {
		t.channels = append(t.channels, c)
	}
	slices.Sort(t.channels)
	t.indexStale = false
}

// insertByVldTime inserts r after every row whose VldTime is <= r.VldTime.
func insertByVldTime(rows []*Row, r *Row) []*Row {
	i := len(rows)
	for i > 0 && rows[i-1].VldTime > r.VldTime {
		i--
	}
	return slices.Insert(rows, i, r)
}

func (t *Table) ensureIndex() {
	if t.indexStale || t.chanRowMap == nil {
		t.FillChanRowMap()
	}
}

// Channels returns the indexed channels in ascending order.
func (t *Table) Channels() []uint64 {
	t.ensureIndex()
	return slices.Clone(t.channels)
}

// ChannelRows returns the rows of channel c in VldTime order.
func (t *Table) ChannelRows(c uint64) []*Row {
	t.ensureIndex()
	return slices.Clone(t.chanRowMap[c])
}

// GetVldRow returns the row of channel c with the largest VldTime <= ts, or
// nil when there is none.
func (t *Table) GetVldRow(c uint64, ts float64) *Row {
	t.ensureIndex()
	rows := t.chanRowMap[c]
	i := sort.Search(len(rows), func(i int) bool { return rows[i].VldTime > ts })
	if i == 0 {
		return nil
	}
	return rows[i-1]
}

// GetVldRows returns, for every channel, the row valid at ts. Channels
// without a valid row are omitted.
func (t *Table) GetVldRows(ts float64) []*Row {
	t.ensureIndex()
	out := make([]*Row, 0, len(t.channels))
	for _, c := range t.channels {
		if r := t.GetVldRow(c, ts); r != nil {
			out = append(out, r)
		}
	}
	return out
}
