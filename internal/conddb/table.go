package conddb

import (
	"database/sql"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/nutools/internal/config"
	"github.com/roach88/nutools/internal/metrics"
	"github.com/roach88/nutools/internal/webclient"
)

// Sentinel field names of the conditions row layout.
const (
	FieldChannel    = "channel"
	FieldVldTime    = "tv"
	FieldVldTimeEnd = "tvend"
	FieldTolerance  = "tolerance"
)

// Columns never written by INSERT; the database fills them.
var serverManagedColumns = map[string]bool{
	"updatetime": true,
	"updateuser": true,
}

// Table holds the schema, selection state and rows of one database table.
type Table struct {
	schema string
	name   string
	typ    TableType
	conn   config.Connection

	cols     []ColumnDef
	colIndex map[string]int
	pkeys    []string
	rows     []*Row
	hasTvEnd bool
	blob     []byte

	sel      selection
	validity validity
	filter   conditionsFilter

	flushCache   bool
	disableCache bool
	timeout      time.Duration

	chanRowMap map[uint64][]*Row
	channels   []uint64
	indexStale bool

	nulls []NullEntry

	db      *sql.DB
	dialect Dialect
	opener  func(driver, dsn string) (*sql.DB, error)
	web     *webclient.Client
	out     io.Writer
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Table.
type Option func(*Table)

// WithConnection sets host, credentials and service URLs.
func WithConnection(c config.Connection) Option {
	return func(t *Table) {
		t.conn = c
		if c.Timeout > 0 {
			t.timeout = c.Timeout
		}
	}
}

// WithDB uses an already open database instead of connecting.
func WithDB(db *sql.DB, d Dialect) Option {
	return func(t *Table) {
		t.db = db
		t.dialect = d
	}
}

// WithOpener replaces sql.Open, for host rotation tests.
func WithOpener(f func(driver, dsn string) (*sql.DB, error)) Option {
	return func(t *Table) { t.opener = f }
}

// WithWebClient replaces the HTTP client used for web service calls.
func WithWebClient(c *webclient.Client) Option {
	return func(t *Table) { t.web = c }
}

// WithOutput sets where dry-run output goes. Default stdout.
func WithOutput(w io.Writer) Option {
	return func(t *Table) { t.out = w }
}

// WithLogger sets the table logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records loads and writes on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(t *Table) { t.metrics = m }
}

// New returns a bare table: no columns and no connection until one is
// needed.
func New(schema, name string, typ TableType, opts ...Option) *Table {
	t := &Table{
		schema:     schema,
		name:       name,
		typ:        typ,
		colIndex:   make(map[string]int),
		timeout:    config.DefaultTimeout,
		opener:     sql.Open,
		out:        os.Stdout,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		indexStale: true,
	}
	t.sel.exclude = make(map[string]bool)
	t.validity.changed = true
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Table) Schema() string { return t.schema }

func (t *Table) Name() string { return t.name }

func (t *Table) Type() TableType { return t.typ }

// PrimaryKeys returns the primary key column names.
func (t *Table) PrimaryKeys() []string {
	out := make([]string, len(t.pkeys))
	copy(out, t.pkeys)
	return out
}

// QualifiedName returns "<schema>.<name>", or the bare name.
func (t *Table) QualifiedName() string {
	if t.schema == "" {
		return t.name
	}
	return t.schema + "." + t.name
}

// Connection returns the connection settings.
func (t *Table) Connection() config.Connection { return t.conn }

// Timeout returns the connection timeout.
func (t *Table) Timeout() time.Duration { return t.timeout }

// SetConnectionTimeout bounds SQL calls and web retries.
func (t *Table) SetConnectionTimeout(d time.Duration) {
	if d > 0 {
		t.timeout = d
		if t.web != nil {
			t.web.SetTimeout(d)
		}
	}
}

// Columns returns a copy of the column definitions.
func (t *Table) Columns() []ColumnDef {
	out := make([]ColumnDef, len(t.cols))
	copy(out, t.cols)
	return out
}

// NCol returns the number of columns.
func (t *Table) NCol() int { return len(t.cols) }

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.colIndex[name]; ok {
		return i
	}
	return -1
}

// AddColumn appends a column definition. Rows already present gain an
// unset value for it.
func (t *Table) AddColumn(def ColumnDef) error {
	if def.Name == "" {
		return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "column name is required")
	}
	if _, dup := t.colIndex[def.Name]; dup {
		return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "duplicate column %q", def.Name)
	}
	t.colIndex[def.Name] = len(t.cols)
	t.cols = append(t.cols, def)
	for _, r := range t.rows {
		r.cols = append(r.cols, NewColumn(def))
	}
	return nil
}

// SetColumns replaces the column definitions and drops all rows.
func (t *Table) SetColumns(defs []ColumnDef) error {
	t.cols = nil
	t.colIndex = make(map[string]int, len(defs))
	t.ClearRows()
	for _, d := range defs {
		if err := t.AddColumn(d); err != nil {
			return err
		}
	}
	return nil
}

// SetTolerance sets the equality tolerance of a column.
func (t *Table) SetTolerance(column string, tol float64) error {
	i := t.ColumnIndex(column)
	if i < 0 {
		return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "no column %q", column)
	}
	t.cols[i].Tolerance = tol
	return nil
}

// SetPrimaryKeys names the columns UPDATE statements are keyed on.
func (t *Table) SetPrimaryKeys(names ...string) error {
	for _, n := range names {
		if t.ColumnIndex(n) < 0 {
			return newError(ErrCodeBadConfig, t.QualifiedName(), nil, "primary key %q is not a column", n)
		}
	}
	t.pkeys = append([]string(nil), names...)
	return nil
}

// NewRow returns a detached row with the table's column layout.
func (t *Table) NewRow() *Row {
	return newRow(t.cols)
}

// AddRow appends r. Its layout must match the table.
func (t *Table) AddRow(r *Row) error {
	if r.Len() != len(t.cols) {
		return newError(ErrCodeColumnMismatch, t.QualifiedName(), nil,
			"row has %d columns, table has %d", r.Len(), len(t.cols))
	}
	for i := range r.cols {
		if r.cols[i].typ != t.cols[i].Type {
			return newError(ErrCodeColumnMismatch, t.QualifiedName(), nil,
				"column %s is %s in row, %s in table", t.cols[i].Name, r.cols[i].typ, t.cols[i].Type)
		}
	}
	if r.VldTimeEnd != 0 {
		t.hasTvEnd = true
	}
	t.rows = append(t.rows, r)
	t.indexStale = true
	return nil
}

// Rows returns the rows in table order.
func (t *Table) Rows() []*Row { return t.rows }

// NRow returns the number of rows.
func (t *Table) NRow() int { return len(t.rows) }

// Row returns row i, or nil when out of range.
func (t *Table) Row(i int) *Row {
	if i < 0 || i >= len(t.rows) {
		return nil
	}
	return t.rows[i]
}

// HasTvEnd reports whether conditions rows carry a validity end time.
func (t *Table) HasTvEnd() bool { return t.hasTvEnd }

// Blob returns the body of the last unstructured conditions load.
func (t *Table) Blob() []byte { return t.blob }

// ClearRows drops all rows and the channel index.
func (t *Table) ClearRows() {
	t.rows = nil
	t.hasTvEnd = false
	t.chanRowMap = nil
	t.channels = nil
	t.indexStale = true
	t.nulls = nil
}

// Clear drops rows, columns and primary keys.
func (t *Table) Clear() {
	t.ClearRows()
	t.cols = nil
	t.colIndex = make(map[string]int)
	t.pkeys = nil
}

// Close releases the database connection.
func (t *Table) Close() error {
	return t.CloseConnection()
}

// CloseConnection releases the database connection, if any.
func (t *Table) CloseConnection() error {
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

func (t *Table) webClient() *webclient.Client {
	if t.web == nil {
		t.web = webclient.New(
			webclient.WithTimeout(t.timeout),
			webclient.WithLogger(t.logger),
			webclient.WithMetrics(t.metrics),
		)
	}
	return t.web
}
