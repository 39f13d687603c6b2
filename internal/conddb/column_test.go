package conddb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		sqlType string
		typ     ColumnType
		bits    int
	}{
		{"serial", TypeAutoIncr, 32},
		{"bigserial", TypeAutoIncr, 64},
		{"BOOLEAN", TypeBool, 0},
		{"smallint", TypeInt, 16},
		{"integer", TypeInt, 32},
		{"int8", TypeInt, 64},
		{"real", TypeFloat, 32},
		{"double precision", TypeFloat, 64},
		{"numeric(10,3)", TypeFloat, 64},
		{"timestamp with time zone", TypeTimestamp, 0},
		{"date", TypeDate, 0},
		{"varchar(32)", TypeString, 0},
		{"text", TypeString, 0},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			typ, bits := NormalizeType(tt.sqlType)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.bits, bits)
		})
	}
}

func TestColumnDef_EffectiveTolerance(t *testing.T) {
	assert.Equal(t, DefaultFloatTolerance, NewColumnDef("a", "real", true).EffectiveTolerance())
	assert.Equal(t, DefaultDoubleTolerance, NewColumnDef("a", "double precision", true).EffectiveTolerance())

	d := NewColumnDef("a", "double precision", true)
	d.Tolerance = 1e-3
	assert.Equal(t, 1e-3, d.EffectiveTolerance())

	assert.Zero(t, NewColumnDef("a", "integer", true).EffectiveTolerance())
}

func TestColumn_ParseHexUsesColumnWidth(t *testing.T) {
	tests := []struct {
		sqlType string
		text    string
		want    int64
	}{
		{"integer", "0xFFFFFFFF", -1},
		{"smallint", "0xFFFF", -1},
		{"bigint", "0x10", 16},
		{"integer", "0x7FFFFFFF", 2147483647},
		{"integer", "-12", -12},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType+"/"+tt.text, func(t *testing.T) {
			c := NewColumn(NewColumnDef("v", tt.sqlType, true))
			require.NoError(t, c.Parse(tt.text))
			got, err := c.Int()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumn_SetIntOverflow(t *testing.T) {
	c := NewColumn(NewColumnDef("v", "smallint", false))
	err := c.SetInt(40000)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeBadCast))
	assert.True(t, c.IsNull())

	require.NoError(t, c.SetInt(-32768))
	v, _ := c.Int()
	assert.Equal(t, int64(-32768), v)
}

func TestColumn_TypedAccessors(t *testing.T) {
	c := NewColumn(NewColumnDef("n", "integer", true))
	require.NoError(t, c.SetInt(7))

	f, err := c.Float()
	require.NoError(t, err)
	assert.Equal(t, 7.0, f)

	_, err = c.Bool()
	assert.True(t, IsCode(err, ErrCodeBadCast))
	assert.True(t, IsCode(c.SetString("x"), ErrCodeBadCast))
	_, err = c.Time()
	assert.True(t, IsCode(err, ErrCodeBadCast))
}

func TestColumn_ParseMarksModifiedLoadDoesNot(t *testing.T) {
	c := NewColumn(NewColumnDef("n", "integer", true))
	require.NoError(t, c.load("5"))
	assert.False(t, c.Modified())

	require.NoError(t, c.Parse("6"))
	assert.True(t, c.Modified())

	c.ClearModified()
	assert.False(t, c.Modified())
	c.SetNull()
	assert.True(t, c.Modified())
	assert.True(t, c.IsNull())
}

func TestColumn_EmptyText(t *testing.T) {
	n := NewColumn(NewColumnDef("n", "integer", true))
	require.NoError(t, n.Parse(""))
	assert.True(t, n.IsNull())
	assert.Equal(t, "NULL", n.String())
	assert.Nil(t, n.Value())

	s := NewColumn(NewColumnDef("s", "text", true))
	require.NoError(t, s.Parse(""))
	assert.False(t, s.IsNull())
	assert.Equal(t, "", s.Text())
}

func TestColumn_ParseErrors(t *testing.T) {
	tests := []struct {
		sqlType string
		text    string
	}{
		{"integer", "twelve"},
		{"boolean", "maybe"},
		{"double precision", "1.2.3"},
		{"timestamp", "yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			c := NewColumn(NewColumnDef("v", tt.sqlType, true))
			err := c.Parse(tt.text)
			require.Error(t, err)
			assert.True(t, IsCode(err, ErrCodeBadCast))
		})
	}
}

func TestColumn_Text(t *testing.T) {
	tests := []struct {
		sqlType string
		text    string
		want    string
	}{
		{"boolean", "t", "true"},
		{"boolean", "0", "false"},
		{"double precision", "1234.5", "1234.5"},
		{"double precision", "0.000001", "1e-6"},
		{"double precision", "-2.5e-7", "-2.5e-7"},
		{"double precision", "1e21", "1e21"},
		{"double precision", "0.0001", "0.0001"},
		{"double precision", "0", "0"},
		{"timestamp", "2024-03-01 12:30:00", "2024-03-01 12:30:00"},
		{"timestamp", "2024-03-01 12:30:00.25", "2024-03-01 12:30:00.25"},
		{"date", "2024-03-01", "2024-03-01"},
		{"text", "  spaced ", "  spaced "},
	}
	for _, tt := range tests {
		t.Run(tt.sqlType+"/"+tt.text, func(t *testing.T) {
			c := NewColumn(NewColumnDef("v", tt.sqlType, true))
			require.NoError(t, c.Parse(tt.text))
			assert.Equal(t, tt.want, c.Text())
		})
	}
}

func TestColumn_TimeValue(t *testing.T) {
	c := NewColumn(NewColumnDef("ts", "timestamp", true))
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, c.SetTime(want))
	got, err := c.Time()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
	assert.Equal(t, "2024-03-01 12:30:00", c.Text())
}

func TestColumn_Equal(t *testing.T) {
	def := NewColumnDef("v", "double precision", true)
	a, b := NewColumn(def), NewColumn(def)
	require.NoError(t, a.SetFloat(1.0))
	require.NoError(t, b.SetFloat(1.0+1e-11))

	assert.True(t, a.Equal(&b, 1e-10))
	assert.False(t, a.Equal(&b, 1e-12))

	null := NewColumn(def)
	assert.False(t, a.Equal(&null, 1))
	other := NewColumn(def)
	assert.True(t, null.Equal(&other, 0))

	i := NewColumn(NewColumnDef("v", "integer", true))
	require.NoError(t, i.SetInt(1))
	assert.False(t, a.Equal(&i, 1))
}

func TestFormatTolerance(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1e-3, "1e-3"},
		{1e-6, "1e-6"},
		{1e-10, "1e-10"},
		{0.5, "0.5"},
		{0.01, "0.01"},
		{0, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTolerance(tt.in), "%g", tt.in)
	}
}

func TestRow_EqualAndString(t *testing.T) {
	defs := []ColumnDef{
		NewColumnDef("adc", "double precision", true),
		NewColumnDef("label", "text", true),
	}
	a, b := newRow(defs), newRow(defs)
	for _, r := range []*Row{a, b} {
		r.Channel = 42
		r.VldTime = 1.7e9
	}
	require.NoError(t, a.Col(0).SetFloat(1234.5))
	require.NoError(t, b.Col(0).SetFloat(1234.5+1e-12))

	assert.True(t, a.Equal(b, defs))
	assert.Equal(t, "42 @1700000000: 1234.5, NULL", a.String())
	assert.Equal(t, 1, a.ModifiedCount())

	b.VldTime = 1.8e9
	assert.False(t, a.Equal(b, defs))

	assert.Nil(t, a.Col(5))
	assert.False(t, newRow(defs).HasChannel())
}
