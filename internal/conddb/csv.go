package conddb

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// field kinds of a CSV layout; non-negative values are column indexes.
const (
	fieldIgnored    = -1
	fieldChannel    = -2
	fieldVldTime    = -3
	fieldVldTimeEnd = -4
)

// LoadFromCSV appends the rows read from r and returns how many were read.
//
// The first line is a header when it starts with '#' or when its first field
// names a column or one of channel, tv, tvend. Without a header the layout is
// channel, tv, [tvend,] columns... for conditions tables and the column order
// otherwise. A line starting with "tolerance" directly after the header sets
// per-column tolerances.
func (t *Table) LoadFromCSV(r io.Reader) (int, error) {
	records, err := readCSV(r)
	if err != nil {
		return 0, newError(ErrCodeBadConfig, t.QualifiedName(), err, "read csv")
	}
	n, err := t.fillFromRecords(records, false)
	if err != nil {
		return 0, err
	}
	t.metrics.RowsLoaded(t.QualifiedName(), "csv", n)
	return n, nil
}

// LoadFromCSVFile is LoadFromCSV on a file.
func (t *Table) LoadFromCSVFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, newError(ErrCodeBadConfig, t.QualifiedName(), err, "open csv")
	}
	defer f.Close()
	return t.LoadFromCSV(f)
}

// readCSV reads every record. A quoted empty field comes back as '' so it
// stays distinct from an empty field, which loads as null.
func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	lines := bytes.Split(data, []byte("\n"))
	cr := csv.NewReader(bytes.NewReader(data))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		for i, f := range rec {
			if f == "" && quotedAt(lines, cr.FieldPos(i)) {
				rec[i] = "''"
			}
		}
		records = append(records, rec)
	}
}

// quotedAt reports whether the field starting at line, col (both 1-based)
// opens with a double quote.
func quotedAt(lines [][]byte, line, col int) bool {
	if line < 1 || line > len(lines) {
		return false
	}
	l := lines[line-1]
	return col >= 1 && col <= len(l) && l[col-1] == '"'
}

func (t *Table) isKnownField(name string) bool {
	switch name {
	case FieldChannel, FieldVldTime, FieldVldTimeEnd:
		return true
	}
	_, ok := t.colIndex[name]
	return ok
}

// fillFromRecords maps records onto rows. inDB marks rows read from a
// database service.
func (t *Table) fillFromRecords(records [][]string, inDB bool) (int, error) {
	records = dropComments(records)
	if len(records) == 0 {
		return 0, nil
	}

	first := strings.TrimSpace(records[0][0])
	hashed := strings.HasPrefix(first, "#")
	first = strings.TrimSpace(strings.TrimPrefix(first, "#"))

	var layout []int
	body := records
	if hashed || t.isKnownField(first) || (len(t.cols) == 0 && first != "" && !looksNumeric(first)) {
		header := make([]string, len(records[0]))
		for i, f := range records[0] {
			header[i] = strings.TrimSpace(f)
		}
		header[0] = first
		body = records[1:]
		if len(t.cols) == 0 {
			t.inferColumns(header, body)
		}
		layout = t.headerLayout(header)
	} else {
		if len(t.cols) == 0 {
			return 0, newError(ErrCodeBadConfig, t.QualifiedName(), nil, "table has no columns and the data has no header")
		}
		layout = t.defaultLayout(len(records[0]))
	}

	if len(body) > 0 && strings.TrimSpace(body[0][0]) == FieldTolerance {
		t.applyTolerances(layout, body[0])
		body = body[1:]
	}

	rows := make([]*Row, 0, len(body))
	for ln, rec := range body {
		rows = append(rows, t.parseRecord(layout, rec, ln, inDB))
	}
	for _, r := range rows {
		if r.VldTimeEnd != 0 {
			t.hasTvEnd = true
		}
	}
	t.rows = append(t.rows, rows...)
	t.indexStale = true
	return len(rows), nil
}

func dropComments(records [][]string) [][]string {
	out := records[:0:0]
	for i, rec := range records {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if i > 0 && strings.HasPrefix(strings.TrimSpace(rec[0]), "#") {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func looksNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return true
	}
	_, err = strconv.ParseInt(s, 0, 64)
	return err == nil
}

// inferColumns defines columns for a bare table from a header. Columns that
// carry a tolerance are taken as doubles, everything else as text.
func (t *Table) inferColumns(header []string, body [][]string) {
	var tol []string
	if len(body) > 0 && strings.TrimSpace(body[0][0]) == FieldTolerance {
		tol = body[0]
	}
	for i, name := range header {
		switch name {
		case FieldChannel, FieldVldTime, FieldVldTimeEnd, "":
			continue
		}
		sqlType := "text"
		if i < len(tol) && strings.TrimSpace(tol[i]) != "" {
			sqlType = "double precision"
		}
		if _, dup := t.colIndex[name]; dup {
			continue
		}
		_ = t.AddColumn(NewColumnDef(name, sqlType, true))
	}
	t.logger.Debug("columns inferred from header", "table", t.QualifiedName(), "columns", len(t.cols))
}

func (t *Table) headerLayout(header []string) []int {
	layout := make([]int, len(header))
	for i, name := range header {
		switch name {
		case FieldChannel:
			layout[i] = fieldChannel
		case FieldVldTime:
			layout[i] = fieldVldTime
		case FieldVldTimeEnd:
			layout[i] = fieldVldTimeEnd
			t.hasTvEnd = true
		default:
			if ci, ok := t.colIndex[name]; ok {
				layout[i] = ci
			} else {
				layout[i] = fieldIgnored
				t.logger.Warn("ignoring unknown field", "table", t.QualifiedName(), "field", name)
			}
		}
	}
	return layout
}

func (t *Table) defaultLayout(width int) []int {
	var layout []int
	if t.typ == Conditions {
		layout = append(layout, fieldChannel, fieldVldTime)
		if width == len(t.cols)+3 {
			layout = append(layout, fieldVldTimeEnd)
			t.hasTvEnd = true
		}
	}
	for i := range t.cols {
		layout = append(layout, i)
	}
	return layout
}

func (t *Table) applyTolerances(layout []int, rec []string) {
	for i, f := range rec {
		if i == 0 || i >= len(layout) || layout[i] < 0 {
			continue
		}
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			t.logger.Warn("bad tolerance", "table", t.QualifiedName(), "column", t.cols[layout[i]].Name, "value", f)
			continue
		}
		t.cols[layout[i]].Tolerance = v
	}
}

func (t *Table) parseRecord(layout []int, rec []string, line int, inDB bool) *Row {
	r := newRow(t.cols)
	r.InDB = inDB
	if len(rec) < len(layout) {
		t.logger.Warn("short record", "table", t.QualifiedName(), "line", line, "fields", len(rec), "want", len(layout))
	}
	for i, raw := range rec {
		if i >= len(layout) {
			break
		}
		if raw == "" {
			continue
		}
		field := dequote(raw)
		switch k := layout[i]; k {
		case fieldIgnored:
		case fieldChannel:
			c, err := strconv.ParseUint(strings.TrimSpace(field), 0, 64)
			if err != nil {
				t.logger.Warn("bad channel", "table", t.QualifiedName(), "line", line, "value", field)
				continue
			}
			r.Channel = c
		case fieldVldTime, fieldVldTimeEnd:
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				t.logger.Warn("bad validity time", "table", t.QualifiedName(), "line", line, "value", field)
				continue
			}
			if k == fieldVldTime {
				r.VldTime = v
				r.IsVldRow = true
			} else {
				r.VldTimeEnd = v
			}
		default:
			if err := r.cols[k].load(field); err != nil {
				t.logger.Warn("bad value", "table", t.QualifiedName(), "line", line, "column", t.cols[k].Name, "error", err)
			}
		}
	}
	return r
}

// dequote strips one pair of matching single or double quotes.
func dequote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// WriteToCSV writes a header, for conditions tables a tolerance line, and
// every row in table order.
func (t *Table) WriteToCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	conditions := t.typ == Conditions
	tvend := t.hasTvEnd

	header := make([]string, 0, len(t.cols)+3)
	if conditions {
		header = append(header, FieldChannel, FieldVldTime)
		if tvend {
			header = append(header, FieldVldTimeEnd)
		}
	}
	for _, c := range t.cols {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	if conditions {
		tol := make([]string, 0, len(header))
		tol = append(tol, FieldTolerance, "")
		if tvend {
			tol = append(tol, "")
		}
		for _, c := range t.cols {
			tol = append(tol, toleranceText(c))
		}
		if err := cw.Write(tol); err != nil {
			return fmt.Errorf("write csv tolerances: %w", err)
		}
	}

	rec := make([]string, 0, len(header))
	for _, r := range t.rows {
		rec = rec[:0]
		if conditions {
			ch := ""
			if r.HasChannel() {
				ch = strconv.FormatUint(r.Channel, 10)
			}
			rec = append(rec, ch, strconv.FormatFloat(r.VldTime, 'f', -1, 64))
			if tvend {
				rec = append(rec, strconv.FormatFloat(r.VldTimeEnd, 'f', -1, 64))
			}
		}
		for i := range r.cols {
			rec = append(rec, csvText(&r.cols[i]))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvText quotes a set empty string so it reloads as "" rather than null.
func csvText(c *Column) string {
	if c.set && c.typ == TypeString && c.s == "" {
		return "''"
	}
	return c.Text()
}

// WriteToCSVFile is WriteToCSV to a new file.
func (t *Table) WriteToCSVFile(path string) error {
	var buf bytes.Buffer
	if err := t.WriteToCSV(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func toleranceText(c ColumnDef) string {
	tol := c.EffectiveTolerance()
	if tol == 0 {
		return ""
	}
	return formatTolerance(tol)
}
