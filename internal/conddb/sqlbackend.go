package conddb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/nutools/internal/config"
)

// Open builds a table from resolved settings, connects and reads its schema.
func Open(ctx context.Context, conn config.Connection, opts ...Option) (*Table, error) {
	typ, err := ParseTableType(conn.Type)
	if err != nil {
		return nil, newError(ErrCodeBadConfig, conn.QualifiedName(), err, "table type")
	}
	t := New(conn.Schema, conn.Table, typ, append([]Option{WithConnection(conn)}, opts...)...)
	if err := t.Introspect(ctx); err != nil {
		_ = t.CloseConnection()
		return nil, err
	}
	return t, nil
}

// Connect opens the database connection, trying each configured host in
// turn. It is a no-op when already connected.
func (t *Table) Connect(ctx context.Context) error {
	if t.db != nil {
		return nil
	}
	if t.dialect == nil {
		d, err := DialectFor(t.conn.Driver)
		if err != nil {
			return newError(ErrCodeBadConfig, t.QualifiedName(), err, "database dialect")
		}
		t.dialect = d
	}

	hosts := t.conn.Hosts
	if _, sqlite := t.dialect.(SQLite); sqlite {
		hosts = []string{""}
	}
	if len(hosts) == 0 {
		return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no database host configured")
	}

	var lastErr error
	for _, host := range hosts {
		db, err := t.opener(t.dialect.Driver(), t.dialect.DSN(t.conn, host))
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, t.timeout)
			err = db.PingContext(pctx)
			cancel()
			if err != nil {
				_ = db.Close()
			}
		}
		if err != nil {
			lastErr = err
			t.metrics.HostFailure()
			t.logger.Warn("database host unavailable", "table", t.QualifiedName(), "host", host, "error", err)
			continue
		}
		t.db = db
		t.logger.Debug("connected", "table", t.QualifiedName(), "host", host, "dialect", t.dialect.Name())
		return nil
	}
	return newError(ErrCodeDBConnect, t.QualifiedName(), lastErr, "no database host reachable (tried %d)", len(hosts))
}

// introspectName is the table whose schema describes t. Conditions tables
// are described by their update table.
func (t *Table) introspectName() string {
	if t.typ == Conditions {
		return t.name + "_update"
	}
	return t.name
}

// Introspect reads column definitions and primary keys from the database.
// Conditions sentinel columns are left out of the column list.
func (t *Table) Introspect(ctx context.Context) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}
	qctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	defs, pkeys, err := t.dialect.Introspect(qctx, t.db, t.schema, t.introspectName())
	if err != nil {
		return newError(ErrCodeDBConnect, t.QualifiedName(), err, "introspect")
	}
	if len(defs) == 0 {
		return newError(ErrCodeNoSuchTable, t.QualifiedName(), nil, "%s not found", t.introspectName())
	}

	kept := defs[:0]
	tvEnd := false
	for _, d := range defs {
		if t.typ == Conditions {
			switch d.Name {
			case FieldChannel, FieldVldTime, FieldVldTimeEnd:
				tvEnd = tvEnd || d.Name == FieldVldTimeEnd
				continue
			}
		}
		kept = append(kept, d)
	}
	if err := t.SetColumns(kept); err != nil {
		return err
	}
	t.hasTvEnd = tvEnd
	t.pkeys = nil
	for _, pk := range pkeys {
		if t.ColumnIndex(pk) >= 0 {
			t.pkeys = append(t.pkeys, pk)
		}
	}
	return nil
}

// ExistsInDB reports whether introspection finds the table.
func (t *Table) ExistsInDB(ctx context.Context) (bool, error) {
	if err := t.Connect(ctx); err != nil {
		return false, err
	}
	qctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	defs, _, err := t.dialect.Introspect(qctx, t.db, t.schema, t.introspectName())
	if err != nil {
		return false, newError(ErrCodeDBConnect, t.QualifiedName(), err, "introspect")
	}
	return len(defs) > 0, nil
}

func (t *Table) literal(c *Column) string {
	if c.IsNull() {
		return "NULL"
	}
	switch c.Type() {
	case TypeBool:
		return t.dialect.BoolLiteral(c.b)
	case TypeInt, TypeAutoIncr, TypeFloat:
		return c.Text()
	default:
		return t.dialect.QuoteLiteral(c.Text())
	}
}

// whereClauses returns the SQL conditions of the selection and validity window.
func (t *Table) whereClauses() []string {
	var parts []string
	if t.sel.where != "" {
		parts = append(parts, "("+t.sel.where+")")
	}
	if t.validity.sql != "" {
		return append(parts, "("+t.validity.sql+")")
	}
	for i := range t.validity.start {
		b := &t.validity.start[i]
		parts = append(parts, t.dialect.QuoteIdent(b.Column)+" >= "+t.literal(&b.Value))
	}
	for i := range t.validity.end {
		b := &t.validity.end[i]
		parts = append(parts, t.dialect.QuoteIdent(b.Column)+" <= "+t.literal(&b.Value))
	}
	return parts
}

// SelectSQL returns the SELECT statement LoadFromDB runs.
func (t *Table) SelectSQL() (string, error) {
	if t.dialect == nil {
		d, err := DialectFor(t.conn.Driver)
		if err != nil {
			return "", newError(ErrCodeBadConfig, t.QualifiedName(), err, "database dialect")
		}
		t.dialect = d
	}
	var names []string
	if t.typ == Conditions {
		names = append(names, FieldChannel, FieldVldTime)
		if t.hasTvEnd {
			names = append(names, FieldVldTimeEnd)
		}
	}
	for _, c := range t.selectedColumns() {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return "", newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no columns selected")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(t.dialect.DistinctClause(t.sel.distinct))
	for i, n := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.dialect.QuoteIdent(n))
	}
	b.WriteString(" FROM ")
	b.WriteString(t.dialect.QualifiedName(t.schema, t.name))
	if where := t.whereClauses(); len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(t.sel.order) > 0 {
		quoted := make([]string, len(t.sel.order))
		for i, c := range t.sel.order {
			quoted[i] = t.dialect.QuoteIdent(c)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(quoted, ", "))
		if t.sel.desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if t.sel.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", t.sel.limit)
	}
	if t.sel.offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", t.sel.offset)
	}
	return b.String(), nil
}

// LoadFromDB replaces the rows with the result of SelectSQL. When nothing
// affecting the selection changed since the last load it returns the
// current row count without querying.
func (t *Table) LoadFromDB(ctx context.Context) (int, error) {
	if !t.validity.changed {
		return len(t.rows), nil
	}
	if err := t.Connect(ctx); err != nil {
		return 0, err
	}
	query, err := t.SelectSQL()
	if err != nil {
		return 0, err
	}
	t.logger.Debug("select", "table", t.QualifiedName(), "sql", query)

	qctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	rs, err := t.db.QueryContext(qctx, query)
	if err != nil {
		return 0, newError(ErrCodeDBConnect, t.QualifiedName(), err, "select")
	}
	defer rs.Close()

	names, err := rs.Columns()
	if err != nil {
		return 0, newError(ErrCodeDBConnect, t.QualifiedName(), err, "result columns")
	}
	index := make([]int, len(names))
	tvEnd := false
	for i, n := range names {
		index[i] = t.ColumnIndex(n)
		if index[i] >= 0 {
			continue
		}
		index[i] = fieldIgnored
		switch n {
		case FieldChannel:
			index[i] = fieldChannel
		case FieldVldTime:
			index[i] = fieldVldTime
		case FieldVldTimeEnd:
			index[i] = fieldVldTimeEnd
			tvEnd = true
		default:
			t.logger.Warn("ignoring unknown field", "table", t.QualifiedName(), "field", n)
		}
	}

	var rows []*Row
	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return 0, newError(ErrCodeDBConnect, t.QualifiedName(), err, "scan")
		}
		r := newRow(t.cols)
		r.InDB = true
		for i, v := range vals {
			var err error
			switch ci := index[i]; {
			case ci >= 0:
				err = r.cols[ci].assign(v)
			case ci == fieldChannel:
				var ch uint64
				if ch, err = scannedChannel(v); err == nil {
					r.Channel = ch
				}
			case ci == fieldVldTime:
				r.VldTime, err = scannedFloat(v)
				r.IsVldRow = err == nil
			case ci == fieldVldTimeEnd:
				r.VldTimeEnd, err = scannedFloat(v)
			}
			if err != nil {
				t.logger.Warn("bad value", "table", t.QualifiedName(), "column", names[i], "error", err)
			}
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return 0, newError(ErrCodeDBConnect, t.QualifiedName(), err, "read rows")
	}

	t.ClearRows()
	t.rows = rows
	t.hasTvEnd = tvEnd
	t.validity.changed = false
	t.metrics.RowsLoaded(t.QualifiedName(), "sql", len(rows))
	return len(rows), nil
}

func scannedChannel(v any) (uint64, error) {
	switch x := v.(type) {
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative channel %d", x)
		}
		return uint64(x), nil
	case []byte:
		return strconv.ParseUint(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseUint(strings.TrimSpace(x), 10, 64)
	case nil:
		return UnsetChannel, nil
	}
	f, err := scannedFloat(v)
	if err != nil {
		return 0, err
	}
	return uint64(f), nil
}

func scannedFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

type statement struct {
	sql    string
	row    *Row
	insert bool
}

func (t *Table) insertSQL(r *Row) string {
	var names, values []string
	for i, d := range t.cols {
		if d.Type == TypeAutoIncr || serverManagedColumns[d.Name] {
			continue
		}
		names = append(names, t.dialect.QuoteIdent(d.Name))
		values = append(values, t.literal(&r.cols[i]))
	}
	if len(names) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", t.dialect.QualifiedName(t.schema, t.name))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.dialect.QualifiedName(t.schema, t.name), strings.Join(names, ", "), strings.Join(values, ", "))
}

// updateSQL returns "" when only server-managed columns changed.
func (t *Table) updateSQL(r *Row) (string, error) {
	var sets []string
	for i, d := range t.cols {
		if !r.cols[i].modified || serverManagedColumns[d.Name] {
			continue
		}
		sets = append(sets, t.dialect.QuoteIdent(d.Name)+" = "+t.literal(&r.cols[i]))
	}
	if len(sets) == 0 {
		return "", nil
	}
	if len(t.pkeys) == 0 {
		return "", newError(ErrCodeBadConfig, t.QualifiedName(), nil, "update needs primary keys")
	}
	conds := make([]string, len(t.pkeys))
	for i, pk := range t.pkeys {
		c := &r.cols[t.colIndex[pk]]
		if c.IsNull() {
			return "", newError(ErrCodeNullInNonNull, t.QualifiedName(), nil, "primary key %s is unset", pk)
		}
		conds[i] = t.dialect.QuoteIdent(pk) + " = " + t.literal(c)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		t.dialect.QualifiedName(t.schema, t.name), strings.Join(sets, ", "), strings.Join(conds, " AND ")), nil
}

func (t *Table) pendingStatements() ([]statement, error) {
	var stmts []statement
	for _, r := range t.rows {
		switch {
		case !r.InDB:
			stmts = append(stmts, statement{sql: t.insertSQL(r), row: r, insert: true})
		case r.ModifiedCount() > 0:
			s, err := t.updateSQL(r)
			if err != nil {
				return nil, err
			}
			if s == "" {
				t.logger.Debug("only server-managed columns changed", "table", t.QualifiedName())
				continue
			}
			stmts = append(stmts, statement{sql: s, row: r})
		}
	}
	return stmts, nil
}

// Write stores new and modified rows. Conditions tables are posted to the
// web service; other tables are written in one SQL transaction. With commit
// false the statements or request are printed instead. Nothing is changed
// when a precondition fails.
func (t *Table) Write(ctx context.Context, commit bool) error {
	if err := t.checkLayout(); err != nil {
		return err
	}
	if err := t.CheckForNulls(); err != nil {
		return err
	}
	if t.typ == Conditions {
		return t.writeConditions(ctx, commit)
	}
	return t.writeSQL(ctx, commit)
}

func (t *Table) writeSQL(ctx context.Context, commit bool) error {
	if t.dialect == nil {
		d, err := DialectFor(t.conn.Driver)
		if err != nil {
			return newError(ErrCodeBadConfig, t.QualifiedName(), err, "database dialect")
		}
		t.dialect = d
	}
	stmts, err := t.pendingStatements()
	if err != nil {
		return err
	}
	if len(stmts) == 0 {
		return nil
	}
	if !commit {
		for _, s := range stmts {
			fmt.Fprintln(t.out, s.sql+";")
		}
		return nil
	}
	if err := t.Connect(ctx); err != nil {
		return err
	}

	ids, err := t.execAll(ctx, stmts)
	if err != nil {
		path, cerr := t.appendCache(stmts)
		if cerr != nil {
			t.logger.Error("cannot write command cache", "table", t.QualifiedName(), "error", cerr)
			return t.writeError(err, "")
		}
		t.logger.Error("write failed, commands cached", "table", t.QualifiedName(), "cache", path, "error", err)
		return t.writeError(err, fmt.Sprintf(" (commands cached in %s)", path))
	}

	inserts, updates := 0, 0
	for i, s := range stmts {
		for ci, v := range ids[i] {
			s.row.cols[ci].i, s.row.cols[ci].set = v, true
		}
		if s.insert {
			inserts++
		} else {
			updates++
		}
		s.row.InDB = true
		s.row.ClearModified()
	}
	t.metrics.RowsWritten(t.QualifiedName(), "insert", inserts)
	t.metrics.RowsWritten(t.QualifiedName(), "update", updates)
	return nil
}

// writeError wraps a failed transaction. A lost connection is DB_CONNECT.
func (t *Table) writeError(err error, detail string) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return newError(ErrCodeDBConnect, t.QualifiedName(), err, "write%s", detail)
	}
	return fmt.Errorf("write %s%s: %w", t.QualifiedName(), detail, err)
}

// execAll runs stmts in one transaction and returns, per statement, the
// generated auto-increment values keyed by column index.
func (t *Table) execAll(ctx context.Context, stmts []statement) (ids []map[int]int64, err error) {
	qctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	tx, err := t.db.BeginTx(qctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				t.logger.Error("rollback failed", "table", t.QualifiedName(), "error", rbErr)
			}
		}
	}()

	ids = make([]map[int]int64, len(stmts))
	for i, s := range stmts {
		t.logger.Debug("exec", "table", t.QualifiedName(), "sql", s.sql)
		if _, err = tx.ExecContext(qctx, s.sql); err != nil {
			return nil, fmt.Errorf("exec %q: %w", s.sql, err)
		}
		if !s.insert {
			continue
		}
		for ci, d := range t.cols {
			if d.Type != TypeAutoIncr {
				continue
			}
			var id int64
			q := t.dialect.LastInsertID(t.schema, t.name, d.Name)
			if err = tx.QueryRowContext(qctx, q).Scan(&id); err != nil {
				return nil, fmt.Errorf("read generated %s: %w", d.Name, err)
			}
			if ids[i] == nil {
				ids[i] = make(map[int]int64)
			}
			ids[i][ci] = id
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// CacheFile returns the path failed commands are appended to.
func (t *Table) CacheFile() string {
	dir := t.conn.CacheDir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return filepath.Join(dir, "."+t.name+".cache")
}

func (t *Table) appendCache(stmts []statement) (string, error) {
	path := t.CacheFile()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	for _, s := range stmts {
		if _, err := fmt.Fprintln(f, s.sql+";"); err != nil {
			f.Close()
			return path, err
		}
	}
	return path, f.Close()
}
