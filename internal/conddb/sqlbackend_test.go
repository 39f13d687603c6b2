package conddb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nutools/internal/config"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func columnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"})
}

// crateWriteTable is hw.crates with a serial key, a required name and a
// server-managed timestamp.
func crateWriteTable(t *testing.T, db *sql.DB, opts ...Option) *Table {
	t.Helper()
	tbl := New("hw", "crates", Hardware, append(opts, WithDB(db, Postgres{}))...)
	id := NewColumnDef("id", "integer", false)
	id.Type = TypeAutoIncr
	require.NoError(t, tbl.SetColumns([]ColumnDef{
		id,
		NewColumnDef("name", "text", false),
		NewColumnDef("updatetime", "timestamp without time zone", false),
	}))
	require.NoError(t, tbl.SetPrimaryKeys("id"))
	return tbl
}

func TestIntrospect_Postgres(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(pgColumnsQuery).WithArgs("hw", "crates").WillReturnRows(columnRows().
		AddRow("id", "integer", "NO", "nextval('hw.crates_id_seq'::regclass)").
		AddRow("name", "text", "YES", nil).
		AddRow("gain", "real", "NO", nil))
	mock.ExpectQuery(pgPrimaryKeyQuery).WithArgs("hw", "crates").WillReturnRows(
		sqlmock.NewRows([]string{"column_name"}).AddRow("id"))

	tbl := New("hw", "crates", Hardware, WithDB(db, Postgres{}))
	require.NoError(t, tbl.Introspect(context.Background()))

	cols := tbl.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, TypeAutoIncr, cols[0].Type)
	assert.Equal(t, 32, cols[0].Bits)
	assert.True(t, cols[1].Nullable)
	assert.Equal(t, TypeFloat, cols[2].Type)
	assert.Equal(t, DefaultFloatTolerance, cols[2].EffectiveTolerance())
	assert.Equal(t, []string{"id"}, tbl.PrimaryKeys())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntrospect_ConditionsUsesUpdateTable(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(pgColumnsQuery).WithArgs("calib", "pedestals_update").WillReturnRows(columnRows().
		AddRow("channel", "bigint", "NO", nil).
		AddRow("tv", "double precision", "NO", nil).
		AddRow("tvend", "double precision", "YES", nil).
		AddRow("adc", "double precision", "NO", nil))
	mock.ExpectQuery(pgPrimaryKeyQuery).WithArgs("calib", "pedestals_update").WillReturnRows(
		sqlmock.NewRows([]string{"column_name"}).AddRow("channel").AddRow("tv"))

	tbl := New("calib", "pedestals", Conditions, WithDB(db, Postgres{}))
	require.NoError(t, tbl.Introspect(context.Background()))

	require.Equal(t, 1, tbl.NCol())
	assert.Equal(t, "adc", tbl.Columns()[0].Name)
	assert.Empty(t, tbl.PrimaryKeys())
	assert.True(t, tbl.hasTvEnd)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntrospect_NoSuchTable(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(pgColumnsQuery).WithArgs("public", "ghost").WillReturnRows(columnRows())

	tbl := New("", "ghost", Generic, WithDB(db, Postgres{}))
	err := tbl.Introspect(context.Background())
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeNoSuchTable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectSQL(t *testing.T) {
	tbl := crateTable(t)
	require.NoError(t, tbl.AddValidityStart("id", "10"))
	require.NoError(t, tbl.AddValidityEnd("id", "20"))
	tbl.SetWhere("name <> 'x'")
	tbl.AddDistinctColumn("name")
	tbl.AddOrderColumn("id")
	tbl.SetOrderDesc()
	tbl.SetSelectLimit(5)
	tbl.SetSelectOffset(2)
	tbl.ExcludeColumn("ok")

	got, err := tbl.SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT ON ("name") "id", "name" FROM "hw"."crates" `+
		`WHERE (name <> 'x') AND "id" >= 10 AND "id" <= 20 ORDER BY "id" DESC LIMIT 5 OFFSET 2`, got)

	tbl.SetValiditySQL("id BETWEEN 1 AND 2")
	tbl.IncludeColumn("ok")
	tbl.SetOrderAsc()
	got, err = tbl.SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT ON ("name") "id", "name", "ok" FROM "hw"."crates" `+
		`WHERE (name <> 'x') AND (id BETWEEN 1 AND 2) ORDER BY "id" ASC LIMIT 5 OFFSET 2`, got)

	_, err = tbl.bound("nope", "1")
	assert.True(t, IsCode(err, ErrCodeBadConfig))
}

func TestSelectSQL_SQLite(t *testing.T) {
	tbl := crateTable(t)
	tbl.dialect = SQLite{}
	require.NoError(t, tbl.AddValidityStart("name", "o'neil"))
	tbl.AddDistinctColumn("name")

	got, err := tbl.SelectSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT "id", "name", "ok" FROM "crates" WHERE "name" >= 'o''neil'`, got)
}

func TestLoadFromDB_ShortCircuitsUntilSelectionChanges(t *testing.T) {
	db, mock := newMock(t)
	tbl := New("hw", "crates", Hardware, WithDB(db, Postgres{}))
	require.NoError(t, tbl.SetColumns([]ColumnDef{
		NewColumnDef("id", "integer", false),
		NewColumnDef("name", "text", true),
		NewColumnDef("ok", "boolean", true),
	}))

	mock.ExpectQuery(`SELECT "id", "name", "ok" FROM "hw"."crates"`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "ok", "extra"}).
			AddRow(int64(1), "alpha", true, "x").
			AddRow(int64(2), nil, nil, "y"))

	n, err := tbl.LoadFromDB(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.True(t, tbl.Row(0).InDB)
	assert.Equal(t, "1, alpha, true", tbl.Row(0).String())
	assert.Equal(t, "2, NULL, NULL", tbl.Row(1).String())
	assert.Zero(t, tbl.Row(0).ModifiedCount())
	assert.False(t, tbl.ValidityChanged())

	n, err = tbl.LoadFromDB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())

	tbl.SetWhere("id > 1")
	mock.ExpectQuery(`SELECT "id", "name", "ok" FROM "hw"."crates" WHERE (id > 1)`).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "ok"}).AddRow(int64(2), "beta", false))
	n, err = tbl.LoadFromDB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadFromDB_QueryErrorKeepsRows(t *testing.T) {
	db, mock := newMock(t)
	tbl := crateWriteTable(t, db)
	require.NoError(t, tbl.AddRow(tbl.NewRow()))

	mock.ExpectQuery(`SELECT "id", "name", "updatetime" FROM "hw"."crates"`).WillReturnError(errors.New("relation does not exist"))
	_, err := tbl.LoadFromDB(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, tbl.NRow())
	assert.True(t, tbl.ValidityChanged())
}

func TestWrite_InsertAndUpdateInOneTransaction(t *testing.T) {
	db, mock := newMock(t)
	tbl := crateWriteTable(t, db)

	existing := tbl.NewRow()
	existing.InDB = true
	require.NoError(t, existing.Col(0).load("1"))
	require.NoError(t, existing.Col(1).load("alpha"))
	require.NoError(t, existing.Col(2).load("2024-01-01 00:00:00"))
	require.NoError(t, tbl.AddRow(existing))
	require.NoError(t, existing.Col(1).SetString("alpha2"))

	added := tbl.NewRow()
	require.NoError(t, added.Col(1).SetString("gamma"))
	require.NoError(t, tbl.AddRow(added))

	unchanged := tbl.NewRow()
	unchanged.InDB = true
	require.NoError(t, unchanged.Col(0).load("3"))
	require.NoError(t, unchanged.Col(1).load("delta"))
	require.NoError(t, tbl.AddRow(unchanged))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "hw"."crates" SET "name" = 'alpha2' WHERE "id" = 1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "hw"."crates" ("name") VALUES ('gamma')`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT currval(pg_get_serial_sequence('hw.crates', 'id'))`).WillReturnRows(
		sqlmock.NewRows([]string{"currval"}).AddRow(int64(5)))
	mock.ExpectCommit()

	require.NoError(t, tbl.Write(context.Background(), true))
	assert.NoError(t, mock.ExpectationsWereMet())

	id, err := added.Col(0).Int()
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.True(t, added.InDB)
	assert.Zero(t, added.ModifiedCount())
	assert.Zero(t, existing.ModifiedCount())
}

func TestWrite_FailureRollsBackAndCachesCommands(t *testing.T) {
	db, mock := newMock(t)
	dir := t.TempDir()
	tbl := crateWriteTable(t, db, WithConnection(config.Connection{CacheDir: dir}))

	r := tbl.NewRow()
	require.NoError(t, r.Col(1).SetString("gamma"))
	require.NoError(t, tbl.AddRow(r))

	insert := `INSERT INTO "hw"."crates" ("name") VALUES ('gamma')`
	mock.ExpectBegin()
	mock.ExpectExec(insert).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := tbl.Write(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Contains(t, err.Error(), filepath.Join(dir, ".crates.cache"))
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.False(t, r.InDB)
	assert.Equal(t, 1, r.ModifiedCount())

	cached, err := os.ReadFile(filepath.Join(dir, ".crates.cache"))
	require.NoError(t, err)
	assert.Equal(t, insert+";\n", string(cached))
}

func TestWrite_LostConnectionIsDBConnect(t *testing.T) {
	db, mock := newMock(t)
	tbl := crateWriteTable(t, db, WithConnection(config.Connection{CacheDir: t.TempDir()}))

	r := tbl.NewRow()
	require.NoError(t, r.Col(1).SetString("gamma"))
	require.NoError(t, tbl.AddRow(r))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "hw"."crates" ("name") VALUES ('gamma')`).WillReturnError(
		&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})
	mock.ExpectRollback()

	err := tbl.Write(context.Background(), true)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDBConnect))
	assert.Contains(t, err.Error(), ".crates.cache")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_DryRunPrintsStatements(t *testing.T) {
	db, mock := newMock(t)
	var out bytes.Buffer
	tbl := crateWriteTable(t, db, WithOutput(&out))

	r := tbl.NewRow()
	require.NoError(t, r.Col(1).SetString("o'neil"))
	require.NoError(t, tbl.AddRow(r))

	require.NoError(t, tbl.Write(context.Background(), false))
	assert.Equal(t, `INSERT INTO "hw"."crates" ("name") VALUES ('o''neil');`+"\n", out.String())
	assert.False(t, r.InDB)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_NullInNonNullWritesNothing(t *testing.T) {
	db, mock := newMock(t)
	var out bytes.Buffer
	tbl := crateWriteTable(t, db, WithOutput(&out))

	ok := tbl.NewRow()
	require.NoError(t, ok.Col(1).SetString("alpha"))
	require.NoError(t, tbl.AddRow(ok))
	require.NoError(t, tbl.AddRow(tbl.NewRow()))

	err := tbl.Write(context.Background(), true)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeNullInNonNull))
	assert.Equal(t, []NullEntry{{Row: 1, Column: "name"}}, tbl.NullList())
	assert.False(t, ok.InDB)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, tbl.Write(context.Background(), false))
	assert.Empty(t, out.String())
}

func TestWrite_EmptyCSVFieldBlocksWrite(t *testing.T) {
	db, mock := newMock(t)
	var out bytes.Buffer
	tbl := crateWriteTable(t, db, WithOutput(&out))

	n, err := tbl.LoadFromCSV(strings.NewReader("id,name\n,\n"))
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, tbl.Row(0).Col(1).IsNull())

	err = tbl.Write(context.Background(), true)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeNullInNonNull))
	assert.Equal(t, []NullEntry{{Row: 0, Column: "name"}}, tbl.NullList())

	require.Error(t, tbl.Write(context.Background(), false))
	assert.Empty(t, out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_QuotedEmptyCSVFieldIsEmptyString(t *testing.T) {
	db, mock := newMock(t)
	var out bytes.Buffer
	tbl := crateWriteTable(t, db, WithOutput(&out))

	_, err := tbl.LoadFromCSV(strings.NewReader("id,name\n,\"\"\n"))
	require.NoError(t, err)

	require.NoError(t, tbl.Write(context.Background(), false))
	assert.Equal(t, `INSERT INTO "hw"."crates" ("name") VALUES ('');`+"\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_SkipsServerManagedOnlyChanges(t *testing.T) {
	db, mock := newMock(t)
	var out bytes.Buffer
	tbl := crateWriteTable(t, db, WithOutput(&out))

	r := tbl.NewRow()
	r.InDB = true
	require.NoError(t, r.Col(0).load("5"))
	require.NoError(t, r.Col(1).load("alpha"))
	require.NoError(t, tbl.AddRow(r))
	require.NoError(t, r.Col(2).Parse("2024-01-01 00:00:00"))
	require.Equal(t, 1, r.ModifiedCount())

	require.NoError(t, tbl.Write(context.Background(), false))
	assert.Empty(t, out.String())

	require.NoError(t, tbl.Write(context.Background(), true))
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NoError(t, r.Col(1).SetString("beta"))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "hw"."crates" SET "name" = 'beta' WHERE "id" = 5`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, tbl.Write(context.Background(), true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWrite_UpdateNeedsPrimaryKey(t *testing.T) {
	db, mock := newMock(t)
	tbl := New("hw", "crates", Hardware, WithDB(db, Postgres{}))
	require.NoError(t, tbl.AddColumn(NewColumnDef("name", "text", true)))
	r := tbl.NewRow()
	r.InDB = true
	require.NoError(t, tbl.AddRow(r))
	require.NoError(t, r.Col(0).SetString("renamed"))

	err := tbl.Write(context.Background(), true)
	assert.True(t, IsCode(err, ErrCodeBadConfig))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_RotatesHosts(t *testing.T) {
	bad, badMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	badMock.ExpectPing().WillReturnError(errors.New("connection refused"))
	good, goodMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	goodMock.ExpectPing()
	t.Cleanup(func() { good.Close() })

	var dsns []string
	opener := func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, "postgres", driver)
		dsns = append(dsns, dsn)
		if strings.Contains(dsn, "host=db1") {
			return bad, nil
		}
		return good, nil
	}
	conn := config.Connection{Hosts: []string{"db1", "db2"}, DBName: "condb", Port: 5432, User: "reader"}
	tbl := New("hw", "crates", Hardware, WithConnection(conn), WithOpener(opener))

	require.NoError(t, tbl.Connect(context.Background()))
	assert.Equal(t, []string{
		"host=db1 port=5432 dbname=condb user=reader sslmode=disable",
		"host=db2 port=5432 dbname=condb user=reader sslmode=disable",
	}, dsns)
	assert.NoError(t, goodMock.ExpectationsWereMet())
}

func TestConnect_AllHostsDown(t *testing.T) {
	opener := func(driver, dsn string) (*sql.DB, error) {
		return nil, errors.New("dial tcp: no route to host")
	}
	conn := config.Connection{Hosts: []string{"db1", "db2", "db3"}}
	tbl := New("hw", "crates", Hardware, WithConnection(conn), WithOpener(opener))

	err := tbl.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDBConnect))
	assert.Contains(t, err.Error(), "no route to host")

	empty := New("hw", "crates", Hardware)
	assert.True(t, IsCode(empty.Connect(context.Background()), ErrCodeBadConfig))
}

func TestPostgresDSN_Quoting(t *testing.T) {
	conn := config.Connection{DBName: "cond db", User: "o'neil", Password: `p\w`}
	assert.Equal(t, `host=h dbname='cond db' user='o\'neil' password='p\\w' sslmode=disable`,
		Postgres{}.DSN(conn, "h"))
}

func TestScannedChannel(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want uint64
	}{
		{"int64 above float precision", int64(1<<53 + 1), 1<<53 + 1},
		{"bytes", []byte("18446744073709551615"), 18446744073709551615},
		{"string", " 42 ", 42},
		{"float", float64(7), 7},
		{"null", nil, UnsetChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scannedChannel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := scannedChannel(int64(-1))
	assert.Error(t, err)
	_, err = scannedChannel([]byte("x"))
	assert.Error(t, err)
}
