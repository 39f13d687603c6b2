package conddb

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addConditionsRow(t *testing.T, tbl *Table, ch uint64, tv float64) *Row {
	t.Helper()
	r := tbl.NewRow()
	r.Channel, r.VldTime, r.IsVldRow = ch, tv, true
	require.NoError(t, tbl.AddRow(r))
	return r
}

func TestGetVldRow_ChannelLookup(t *testing.T) {
	tbl := New("calib", "pedestals", Conditions)
	addConditionsRow(t, tbl, 7, 30)
	addConditionsRow(t, tbl, 7, 10)
	want := addConditionsRow(t, tbl, 7, 20)
	tbl.FillChanRowMap()

	assert.Same(t, want, tbl.GetVldRow(7, 25))
	assert.Nil(t, tbl.GetVldRow(7, 5))
	assert.Nil(t, tbl.GetVldRow(99, 25))
	assert.Equal(t, 30.0, tbl.GetVldRow(7, 1e9).VldTime)
	assert.Equal(t, 10.0, tbl.GetVldRow(7, 10).VldTime)
}

func TestFillChanRowMap_EqualTimesKeepTableOrder(t *testing.T) {
	tbl := New("calib", "pedestals", Conditions)
	first := addConditionsRow(t, tbl, 1, 10)
	second := addConditionsRow(t, tbl, 1, 10)

	rows := tbl.ChannelRows(1)
	require.Len(t, rows, 2)
	assert.Same(t, first, rows[0])
	assert.Same(t, second, rows[1])
	assert.Same(t, second, tbl.GetVldRow(1, 10))
}

func TestIndex_RebuildsAfterAddRow(t *testing.T) {
	tbl := New("calib", "pedestals", Conditions)
	addConditionsRow(t, tbl, 3, 10)
	assert.Equal(t, []uint64{3}, tbl.Channels())

	addConditionsRow(t, tbl, 1, 5)
	r := tbl.NewRow()
	require.NoError(t, tbl.AddRow(r))
	assert.Equal(t, []uint64{1, 3}, tbl.Channels())

	valid := tbl.GetVldRows(7)
	require.Len(t, valid, 1)
	assert.Equal(t, uint64(1), valid[0].Channel)
}

func TestIndex_RandomisedLookups(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	tbl := New("calib", "pedestals", Conditions)
	for range 500 {
		addConditionsRow(t, tbl, rng.Uint64N(20), float64(rng.IntN(1000)))
	}
	tbl.FillChanRowMap()

	for _, c := range tbl.Channels() {
		rows := tbl.ChannelRows(c)
		for i := 1; i < len(rows); i++ {
			assert.LessOrEqual(t, rows[i-1].VldTime, rows[i].VldTime, "channel %d", c)
		}
	}

	for range 500 {
		c := rng.Uint64N(25)
		ts := float64(rng.IntN(1100)) - 50
		got := tbl.GetVldRow(c, ts)

		var best *Row
		for _, r := range tbl.Rows() {
			if r.Channel == c && r.VldTime <= ts && (best == nil || r.VldTime >= best.VldTime) {
				best = r
			}
		}
		if best == nil {
			assert.Nil(t, got, "channel %d at %v", c, ts)
			continue
		}
		require.NotNil(t, got, "channel %d at %v", c, ts)
		assert.Equal(t, c, got.Channel)
		assert.Equal(t, best.VldTime, got.VldTime)
	}
}
