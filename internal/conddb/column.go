package conddb

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the internal type set every SQL type is normalised to.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeAutoIncr
	TypeBool
	TypeInt
	TypeFloat
	TypeTimestamp
	TypeDate
)

var columnTypeNames = []string{"string", "autoincr", "bool", "int", "float", "timestamp", "date"}

func (t ColumnType) String() string {
	if int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return fmt.Sprintf("columnType(%d)", int(t))
}

func (t ColumnType) isInteger() bool { return t == TypeInt || t == TypeAutoIncr }

// Default tolerances for numeric equality when a column sets none.
const (
	DefaultDoubleTolerance = 1e-10
	DefaultFloatTolerance  = 1e-5
)

// ColumnDef describes one column of a table.
type ColumnDef struct {
	Name    string
	SQLType string
	Type    ColumnType

	// Bits is the storage width of integer and float columns.
	Bits int

	Nullable bool

	// Tolerance is the numeric equality tolerance; 0 selects the type default.
	Tolerance float64
}

// NewColumnDef normalises sqlType and returns the definition.
func NewColumnDef(name, sqlType string, nullable bool) ColumnDef {
	typ, bits := NormalizeType(sqlType)
	return ColumnDef{Name: name, SQLType: sqlType, Type: typ, Bits: bits, Nullable: nullable}
}

// EffectiveTolerance returns Tolerance, or the default for float columns.
func (d ColumnDef) EffectiveTolerance() float64 {
	if d.Tolerance != 0 || d.Type != TypeFloat {
		return d.Tolerance
	}
	if d.Bits == 32 {
		return DefaultFloatTolerance
	}
	return DefaultDoubleTolerance
}

// NormalizeType maps a declared SQL type to a ColumnType and storage width.
func NormalizeType(sqlType string) (ColumnType, int) {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case t == "smallserial" || t == "serial2":
		return TypeAutoIncr, 16
	case t == "serial" || t == "serial4":
		return TypeAutoIncr, 32
	case t == "bigserial" || t == "serial8":
		return TypeAutoIncr, 64
	case t == "bool" || t == "boolean":
		return TypeBool, 0
	case t == "smallint" || t == "int2":
		return TypeInt, 16
	case t == "int" || t == "integer" || t == "int4":
		return TypeInt, 32
	case t == "bigint" || t == "int8":
		return TypeInt, 64
	case t == "real" || t == "float4":
		return TypeFloat, 32
	case t == "double precision" || t == "double" || t == "float8" || t == "float" ||
		t == "numeric" || t == "decimal":
		return TypeFloat, 64
	case strings.HasPrefix(t, "timestamp"):
		return TypeTimestamp, 0
	case t == "date":
		return TypeDate, 0
	default:
		return TypeString, 0
	}
}

const (
	timestampLayout   = "2006-01-02 15:04:05.999999"
	timestampTZLayout = "2006-01-02 15:04:05.999999-07:00"
	dateLayout        = "2006-01-02"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	dateLayout,
}

// Column is one typed value. The in-memory representation follows the
// declared type; text is produced and consumed only at ingest and egress.
type Column struct {
	typ  ColumnType
	bits int
	set  bool

	b bool
	i int64
	f float64
	s string
	t time.Time

	modified bool
}

// NewColumn returns an unset column for def.
func NewColumn(def ColumnDef) Column {
	return Column{typ: def.Type, bits: def.Bits}
}

func (c *Column) Type() ColumnType { return c.typ }

// IsNull reports whether the column holds no value.
func (c *Column) IsNull() bool { return !c.set }

// Modified reports whether a setter changed the column since load.
func (c *Column) Modified() bool { return c.modified }

// ClearModified resets the modification flag.
func (c *Column) ClearModified() { c.modified = false }

func (c *Column) badCast(want string) error {
	return newError(ErrCodeBadCast, "", nil, "%s column read as %s", c.typ, want)
}

// Bool returns the value of a bool column.
func (c *Column) Bool() (bool, error) {
	if c.typ != TypeBool {
		return false, c.badCast("bool")
	}
	return c.b, nil
}

// Int returns the value of an integer column.
func (c *Column) Int() (int64, error) {
	if !c.typ.isInteger() {
		return 0, c.badCast("int")
	}
	return c.i, nil
}

// Float returns the value of a float or integer column.
func (c *Column) Float() (float64, error) {
	switch {
	case c.typ == TypeFloat:
		return c.f, nil
	case c.typ.isInteger():
		return float64(c.i), nil
	}
	return 0, c.badCast("float")
}

// Time returns the value of a timestamp or date column.
func (c *Column) Time() (time.Time, error) {
	if c.typ != TypeTimestamp && c.typ != TypeDate {
		return time.Time{}, c.badCast("time")
	}
	return c.t, nil
}

// SetNull clears the value.
func (c *Column) SetNull() {
	*c = Column{typ: c.typ, bits: c.bits, modified: true}
}

// SetBool sets a bool column.
func (c *Column) SetBool(v bool) error {
	if c.typ != TypeBool {
		return c.badCast("bool")
	}
	c.b, c.set, c.modified = v, true, true
	return nil
}

// SetInt sets an integer column, or a float column to the converted value.
func (c *Column) SetInt(v int64) error {
	switch {
	case c.typ.isInteger():
		if !fitsBits(v, c.bits) {
			return newError(ErrCodeBadCast, "", nil, "%d overflows %d-bit column", v, c.bits)
		}
		c.i = v
	case c.typ == TypeFloat:
		c.f = float64(v)
	default:
		return c.badCast("int")
	}
	c.set, c.modified = true, true
	return nil
}

// SetFloat sets a float column.
func (c *Column) SetFloat(v float64) error {
	if c.typ != TypeFloat {
		return c.badCast("float")
	}
	c.f, c.set, c.modified = v, true, true
	return nil
}

// SetString sets a string column.
func (c *Column) SetString(v string) error {
	if c.typ != TypeString {
		return c.badCast("string")
	}
	c.s, c.set, c.modified = v, true, true
	return nil
}

// SetTime sets a timestamp or date column.
func (c *Column) SetTime(v time.Time) error {
	if c.typ != TypeTimestamp && c.typ != TypeDate {
		return c.badCast("time")
	}
	c.t, c.set, c.modified = v, true, true
	return nil
}

// Parse sets the column from its text form and marks it modified.
func (c *Column) Parse(text string) error {
	if err := c.load(text); err != nil {
		return err
	}
	c.modified = true
	return nil
}

// load parses text without touching the modification flag. Empty text is
// null for every type except string.
func (c *Column) load(text string) error {
	if text == "" && c.typ != TypeString {
		*c = Column{typ: c.typ, bits: c.bits, modified: c.modified}
		return nil
	}
	switch c.typ {
	case TypeBool:
		v, err := parseBool(text)
		if err != nil {
			return newError(ErrCodeBadCast, "", err, "bool %q", text)
		}
		c.b = v
	case TypeInt, TypeAutoIncr:
		v, err := parseInt(text, c.bits)
		if err != nil {
			return newError(ErrCodeBadCast, "", err, "int%d %q", c.bits, text)
		}
		c.i = v
	case TypeFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return newError(ErrCodeBadCast, "", err, "float %q", text)
		}
		c.f = v
	case TypeTimestamp, TypeDate:
		v, err := parseTime(text)
		if err != nil {
			return newError(ErrCodeBadCast, "", err, "%s %q", c.typ, text)
		}
		c.t = v
	default:
		c.s = text
	}
	c.set = true
	return nil
}

// assign stores a value scanned from a database driver.
func (c *Column) assign(v any) error {
	switch x := v.(type) {
	case nil:
		*c = Column{typ: c.typ, bits: c.bits}
		return nil
	case []byte:
		return c.load(string(x))
	case string:
		return c.load(x)
	case int64:
		if c.typ == TypeBool {
			c.b, c.set = x != 0, true
			return nil
		}
		if c.typ == TypeString {
			return c.load(strconv.FormatInt(x, 10))
		}
		err := c.SetInt(x)
		c.modified = false
		return err
	case float64:
		if c.typ.isInteger() {
			return c.load(strconv.FormatFloat(x, 'f', -1, 64))
		}
		if c.typ != TypeFloat {
			return c.load(formatFloat(x))
		}
		c.f, c.set = x, true
		return nil
	case bool:
		if c.typ != TypeBool {
			return c.load(strconv.FormatBool(x))
		}
		c.b, c.set = x, true
		return nil
	case time.Time:
		if c.typ != TypeTimestamp && c.typ != TypeDate {
			return c.load(x.Format(time.RFC3339Nano))
		}
		c.t, c.set = x, true
		return nil
	default:
		return c.load(fmt.Sprint(x))
	}
}

// Text renders the value for CSV and SQL. Null renders as "".
func (c *Column) Text() string {
	if !c.set {
		return ""
	}
	switch c.typ {
	case TypeBool:
		return strconv.FormatBool(c.b)
	case TypeInt, TypeAutoIncr:
		return strconv.FormatInt(c.i, 10)
	case TypeFloat:
		return formatFloat(c.f)
	case TypeTimestamp:
		if c.t.Location() == time.UTC {
			return c.t.Format(timestampLayout)
		}
		return c.t.Format(timestampTZLayout)
	case TypeDate:
		return c.t.Format(dateLayout)
	default:
		return c.s
	}
}

func (c *Column) String() string {
	if !c.set {
		return "NULL"
	}
	return c.Text()
}

// Value returns the value as a Go type, nil when null.
func (c *Column) Value() any {
	if !c.set {
		return nil
	}
	switch c.typ {
	case TypeBool:
		return c.b
	case TypeInt, TypeAutoIncr:
		return c.i
	case TypeFloat:
		return c.f
	case TypeTimestamp, TypeDate:
		return c.t
	default:
		return c.s
	}
}

// Equal compares two columns of the same type. Floats compare within tol.
func (c *Column) Equal(other *Column, tol float64) bool {
	if c.typ != other.typ || c.set != other.set {
		return false
	}
	if !c.set {
		return true
	}
	switch c.typ {
	case TypeBool:
		return c.b == other.b
	case TypeInt, TypeAutoIncr:
		return c.i == other.i
	case TypeFloat:
		return math.Abs(c.f-other.f) <= tol
	case TypeTimestamp, TypeDate:
		return c.t.Equal(other.t)
	default:
		return c.s == other.s
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "y", "yes", "on":
		return true, nil
	case "f", "false", "0", "n", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}

// parseInt reads decimal or prefixed literals. Hex literals are taken as the
// bit pattern of the column's width, so 0xFFFFFFFF in a 32-bit column is -1.
func parseInt(s string, bits int) (int64, error) {
	s = strings.TrimSpace(s)
	if bits == 0 {
		bits = 64
	}
	if strings.ContainsAny(s, "xX") {
		u, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			return 0, err
		}
		switch bits {
		case 16:
			return int64(int16(u)), nil
		case 32:
			return int64(int32(u)), nil
		default:
			return int64(u), nil
		}
	}
	return strconv.ParseInt(s, 0, bits)
}

func fitsBits(v int64, bits int) bool {
	if bits == 0 || bits >= 64 {
		return true
	}
	limit := int64(1) << (bits - 1)
	return v >= -limit && v < limit
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// formatFloat prints plain decimals, switching to a compact exponent form
// for very small or very large magnitudes ("1e-6" rather than "1e-06").
func formatFloat(v float64) string {
	a := math.Abs(v)
	if a != 0 && (a < 1e-4 || a >= 1e21) {
		return formatExp(v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatTolerance picks the shorter of the plain and exponent forms,
// preferring the plain form on a tie.
func formatTolerance(v float64) string {
	plain := strconv.FormatFloat(v, 'f', -1, 64)
	if v == 0 {
		return plain
	}
	exp := formatExp(v)
	if len(exp) < len(plain) {
		return exp
	}
	return plain
}

func formatExp(v float64) string {
	s := strconv.FormatFloat(v, 'e', -1, 64)
	mant, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign := ""
	if exp[0] == '-' || exp[0] == '+' {
		if exp[0] == '-' {
			sign = "-"
		}
		exp = exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + sign + exp
}
