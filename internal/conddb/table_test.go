package conddb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTableType(t *testing.T) {
	for _, typ := range []TableType{Generic, Conditions, Hardware, UnstructuredConditions} {
		got, err := ParseTableType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	got, err := ParseTableType("")
	require.NoError(t, err)
	assert.Equal(t, Generic, got)

	_, err = ParseTableType("calendar")
	assert.Error(t, err)
}

func TestParseDataTypeMask(t *testing.T) {
	tests := map[string]DataTypeMask{
		"":        DataTypeNone,
		"data":    DataOnly,
		"MC":      MCOnly,
		"data|mc": DataOnly | MCOnly,
	}
	for in, want := range tests {
		got, err := ParseDataTypeMask(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDataTypeMask("real")
	assert.Error(t, err)
	assert.Equal(t, "data|mc", (DataOnly | MCOnly).String())
}

func TestSelectionChangesForceReload(t *testing.T) {
	mutations := map[string]func(*Table){
		"validity start": func(tbl *Table) { require.NoError(t, tbl.AddValidityStart("adc", "1")) },
		"validity end":   func(tbl *Table) { require.NoError(t, tbl.AddValidityEnd("adc", "2")) },
		"validity sql":   func(tbl *Table) { tbl.SetValiditySQL("adc > 0") },
		"clear validity": func(tbl *Table) { tbl.ClearValidity() },
		"mask":           func(tbl *Table) { tbl.SetDataTypeMask(MCOnly) },
		"channel range":  func(tbl *Table) { tbl.SetChannelRange(1, 2) },
		"tag":            func(tbl *Table) { tbl.SetTag("v1") },
		"record time":    func(tbl *Table) { tbl.SetRecordTime(10) },
		"min time":       func(tbl *Table) { tbl.SetMinTSVld(10) },
		"max time":       func(tbl *Table) { tbl.SetMaxTSVld(10) },
		"where":          func(tbl *Table) { tbl.SetWhere("adc > 1") },
		"distinct":       func(tbl *Table) { tbl.AddDistinctColumn("adc") },
		"order":          func(tbl *Table) { tbl.AddOrderColumn("adc") },
		"descending":     func(tbl *Table) { tbl.SetOrderDesc() },
		"ascending":      func(tbl *Table) { tbl.SetOrderAsc() },
		"limit":          func(tbl *Table) { tbl.SetSelectLimit(3) },
		"offset":         func(tbl *Table) { tbl.SetSelectOffset(3) },
		"exclude":        func(tbl *Table) { tbl.ExcludeColumn("baseline") },
		"include":        func(tbl *Table) { tbl.IncludeColumn("baseline") },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tbl := pedestalsTable(t)
			tbl.validity.changed = false
			mutate(tbl)
			assert.True(t, tbl.ValidityChanged())
		})
	}
}

func TestAddRow_LayoutMismatch(t *testing.T) {
	tbl := pedestalsTable(t)
	other := crateTable(t)

	err := tbl.AddRow(other.NewRow())
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeColumnMismatch))

	short := New("x", "y", Generic)
	require.NoError(t, short.AddColumn(NewColumnDef("adc", "text", true)))
	require.NoError(t, short.AddColumn(NewColumnDef("baseline", "double precision", true)))
	err = tbl.AddRow(short.NewRow())
	assert.True(t, IsCode(err, ErrCodeColumnMismatch))
	assert.Zero(t, tbl.NRow())
}

func TestTableSchemaEdits(t *testing.T) {
	tbl := pedestalsTable(t)
	r := tbl.NewRow()
	require.NoError(t, tbl.AddRow(r))

	require.NoError(t, tbl.AddColumn(NewColumnDef("pedestal", "real", true)))
	assert.Equal(t, 3, r.Len())
	assert.True(t, r.Col(2).IsNull())

	assert.True(t, IsCode(tbl.AddColumn(NewColumnDef("adc", "text", true)), ErrCodeBadConfig))
	assert.True(t, IsCode(tbl.SetTolerance("nope", 1), ErrCodeBadConfig))
	assert.True(t, IsCode(tbl.SetPrimaryKeys("nope"), ErrCodeBadConfig))
	require.NoError(t, tbl.SetTolerance("pedestal", 0.25))
	assert.Equal(t, 0.25, tbl.Columns()[2].EffectiveTolerance())

	tbl.SetConnectionTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, tbl.Timeout())
	tbl.SetConnectionTimeout(0)
	assert.Equal(t, 5*time.Second, tbl.Timeout())

	tbl.Clear()
	assert.Zero(t, tbl.NCol())
	assert.Zero(t, tbl.NRow())
	assert.Equal(t, "calib.pedestals", tbl.QualifiedName())
}
