package conddb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/nutools/internal/config"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Dialect holds the SQL differences between supported databases.
type Dialect interface {
	Name() string
	Driver() string

	// DSN builds the connection string for one host.
	DSN(c config.Connection, host string) string

	QuoteIdent(name string) string
	QuoteLiteral(s string) string
	BoolLiteral(b bool) string
	QualifiedName(schema, table string) string
	DistinctClause(cols []string) string

	// LastInsertID returns a query yielding the value generated for column
	// by the last INSERT in the current session.
	LastInsertID(schema, table, column string) string

	// Introspect returns the column definitions and primary key columns of
	// a table, or no columns when it does not exist.
	Introspect(ctx context.Context, q querier, schema, table string) ([]ColumnDef, []string, error)
}

// DialectFor returns the dialect of a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "", config.DriverPostgres:
		return Postgres{}, nil
	case config.DriverSQLite, "sqlite":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

// Postgres is the lib/pq dialect.
type Postgres struct{}

func (Postgres) Name() string   { return "postgres" }
func (Postgres) Driver() string { return "postgres" }

func (Postgres) DSN(c config.Connection, host string) string {
	parts := make([]string, 0, 7)
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+dsnValue(v))
		}
	}
	add("host", host)
	if c.Port != 0 {
		add("port", fmt.Sprint(c.Port))
	}
	add("dbname", c.DBName)
	add("user", c.User)
	add("password", c.Password)
	if c.Timeout > 0 {
		add("connect_timeout", fmt.Sprint(int(c.Timeout.Seconds())))
	}
	add("sslmode", "disable")
	return strings.Join(parts, " ")
}

// dsnValue quotes a key/value connection string value when needed.
func dsnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (Postgres) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }
func (Postgres) QuoteLiteral(s string) string  { return pq.QuoteLiteral(s) }

func (Postgres) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (p Postgres) QualifiedName(schema, table string) string {
	if schema == "" {
		return p.QuoteIdent(table)
	}
	return p.QuoteIdent(schema) + "." + p.QuoteIdent(table)
}

func (p Postgres) DistinctClause(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = p.QuoteIdent(c)
	}
	return "DISTINCT ON (" + strings.Join(quoted, ", ") + ") "
}

func (p Postgres) LastInsertID(schema, table, column string) string {
	name := table
	if schema != "" {
		name = schema + "." + table
	}
	return fmt.Sprintf("SELECT currval(pg_get_serial_sequence(%s, %s))", p.QuoteLiteral(name), p.QuoteLiteral(column))
}

const pgColumnsQuery = `SELECT column_name, data_type, is_nullable, column_default
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

const pgPrimaryKeyQuery = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1 AND tc.table_name = $2
ORDER BY kcu.ordinal_position`

func (Postgres) Introspect(ctx context.Context, q querier, schema, table string) ([]ColumnDef, []string, error) {
	if schema == "" {
		schema = "public"
	}
	rows, err := q.QueryContext(ctx, pgColumnsQuery, schema, table)
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}
	var defs []ColumnDef
	for rows.Next() {
		var name, dataType, nullable string
		var def sql.NullString
		if err := rows.Scan(&name, &dataType, &nullable, &def); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scan column: %w", err)
		}
		d := NewColumnDef(name, dataType, nullable == "YES")
		if def.Valid && strings.HasPrefix(def.String, "nextval(") {
			d.Type = TypeAutoIncr
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}
	if len(defs) == 0 {
		return nil, nil, nil
	}

	rows, err = q.QueryContext(ctx, pgPrimaryKeyQuery, schema, table)
	if err != nil {
		return nil, nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer rows.Close()
	var pkeys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, nil, fmt.Errorf("scan primary key: %w", err)
		}
		pkeys = append(pkeys, name)
	}
	return defs, pkeys, rows.Err()
}

// SQLite is the go-sqlite3 dialect. Schemas are ignored and the database
// name is the file path.
type SQLite struct{}

func (SQLite) Name() string   { return "sqlite" }
func (SQLite) Driver() string { return "sqlite3" }

func (SQLite) DSN(c config.Connection, _ string) string {
	if c.DBName == "" {
		return ":memory:"
	}
	return c.DBName
}

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (SQLite) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s SQLite) QualifiedName(_, table string) string {
	return s.QuoteIdent(table)
}

// DistinctClause has no DISTINCT ON in SQLite; whole rows are made distinct.
func (SQLite) DistinctClause(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return "DISTINCT "
}

func (SQLite) LastInsertID(_, _, _ string) string {
	return "SELECT last_insert_rowid()"
}

func (s SQLite) Introspect(ctx context.Context, q querier, _, table string) ([]ColumnDef, []string, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+s.QuoteIdent(table)+")")
	if err != nil {
		return nil, nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	type pk struct {
		name string
		pos  int
	}
	var (
		defs   []ColumnDef
		pks    []pk
		intPKs []int
	)
	for rows.Next() {
		var (
			cid, notNull, pkPos int
			name, declType      string
			dflt                sql.NullString
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pkPos); err != nil {
			return nil, nil, fmt.Errorf("scan table info: %w", err)
		}
		d := NewColumnDef(name, declType, notNull == 0 && pkPos == 0)
		// SQLite stores every INTEGER and REAL in eight bytes.
		switch strings.ToLower(strings.TrimSpace(declType)) {
		case "integer", "real":
			d.Bits = 64
		}
		if pkPos > 0 {
			pks = append(pks, pk{name: name, pos: pkPos})
			if d.Type == TypeInt && d.Bits == 64 {
				intPKs = append(intPKs, len(defs))
			}
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	// A lone INTEGER PRIMARY KEY aliases the rowid.
	if len(pks) == 1 && len(intPKs) == 1 {
		defs[intPKs[0]].Type = TypeAutoIncr
	}
	pkeys := make([]string, len(pks))
	for _, p := range pks {
		pkeys[p.pos-1] = p.name
	}
	return defs, pkeys, nil
}
