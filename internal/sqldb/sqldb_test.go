package sqldb

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		dsn     string
		dialect string
		conn    string
	}{
		{dsn: "flows.db", dialect: "sqlite", conn: "flows.db"},
		{dsn: "/tmp/flows.db", dialect: "sqlite", conn: "/tmp/flows.db"},
		{dsn: ":memory:", dialect: "sqlite", conn: ":memory:"},
		{dsn: "sqlite:///tmp/x.db", dialect: "sqlite", conn: "/tmp/x.db"},
		{dsn: "sqlite:x.db", dialect: "sqlite", conn: "x.db"},
		{dsn: "file:x.db?mode=ro", dialect: "sqlite", conn: "file:x.db?mode=ro"},
		{dsn: `C:\data\x.db`, dialect: "sqlite", conn: `C:\data\x.db`},
		{dsn: "postgres://u:p@localhost:5432/db", dialect: "postgres", conn: "postgres://u:p@localhost:5432/db"},
		{dsn: "postgresql://localhost/db", dialect: "postgres", conn: "postgresql://localhost/db"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, conn, err := Resolve(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, d.Name)
			assert.Equal(t, tt.conn, conn)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	_, _, err := Resolve("  ")
	assert.Error(t, err)

	_, _, err = Resolve("mysql://localhost/db")
	var unknown *UnknownSchemeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mysql", unknown.Scheme)
	assert.Contains(t, unknown.Available, "postgres")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", New(nil, SQLite, nil).Placeholders(3))
	assert.Equal(t, "$1, $2", New(nil, Postgres, nil).Placeholders(2))
}

func TestExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := New(db, SQLite, nil)

	mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)

	require.NoError(t, d.Exec(context.Background(), "CREATE TABLE users (id INT)"))
	err = d.Exec(context.Background(), "INVALID SQL")
	assert.ErrorContains(t, err, "failed to execute SQL")

	mock.ExpectClose()
	require.NoError(t, d.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExec_NotConnected(t *testing.T) {
	err := (&DB{Dialect: SQLite}).Exec(context.Background(), "SELECT 1")
	assert.ErrorContains(t, err, "database connection not established")
	assert.NoError(t, (*DB)(nil).Close())
}

func TestInsertBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := New(db, SQLite, nil)

	insert := regexp.QuoteMeta("INSERT INTO people (name, age) VALUES (?, ?)")
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insert)
	prep.ExpectExec().WithArgs("ann", "30").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("bob", nil).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectPrepare(insert).ExpectExec().WithArgs("cy", "7").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	err = d.InsertBatches(context.Background(), "people", []string{"name", "age"}, [][]any{
		{"ann", "30"},
		{"bob", nil},
		{"cy", "7"},
	}, 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatches_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := New(db, SQLite, nil)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO people").ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = d.InsertBatches(context.Background(), "people", []string{"name"}, [][]any{{"ann"}}, 100)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryStrings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	d := New(db, Postgres, nil)

	mock.ExpectQuery("SELECT name, age FROM people").
		WillReturnRows(sqlmock.NewRows([]string{"name", "age"}).
			AddRow("ann", 30).
			AddRow("bob", nil))

	cols, rows, err := d.QueryStrings(context.Background(), "SELECT name, age FROM people")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, cols)
	assert.Equal(t, [][]string{{"ann", "30"}, {"bob", ""}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "tuples.db"), nil)
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	require.NoError(t, d.Exec(ctx, "CREATE TABLE kv (k TEXT, v TEXT)"))
	require.NoError(t, d.InsertBatches(ctx, "kv", []string{"k", "v"}, [][]any{{"a", "1"}, {"b", nil}}, 1))

	_, rows, err := d.QueryStrings(ctx, "SELECT k, v FROM kv ORDER BY k")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "1"}, {"b", ""}}, rows)
}
