// Package sqldb opens the databases the tuple SQL components read from and
// write to. The driver is picked from the DSN scheme: postgres:// and
// postgresql:// go through pgx, sqlite: and plain file paths through the
// embedded sqlite driver.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver
)

// DB is a database handle that knows its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	logger  *slog.Logger
}

// Open resolves dsn, opens the database and checks the connection.
// If logger is nil, a discard logger is used.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	d, conn, err := Resolve(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}
	if d.Name == SQLite.Name && strings.Contains(conn, ":memory:") {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Name, err)
	}

	out := New(db, d, logger)
	out.logger.Debug("database opened", slog.String("dialect", d.Name))
	return out, nil
}

// New wraps an open handle.
func New(db *sql.DB, d Dialect, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DB{DB: db, Dialect: d, logger: logger}
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	db.logger.Debug("closing database connection")
	return db.DB.Close()
}

// Exec executes a statement that doesn't return rows.
func (db *DB) Exec(ctx context.Context, stmt string, args ...any) error {
	if db.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Placeholders returns n comma separated bind parameters.
func (db *DB) Placeholders(n int) string {
	params := make([]string, n)
	for i := range params {
		params[i] = db.Dialect.Placeholder(i + 1)
	}
	return strings.Join(params, ", ")
}

// InsertBatches inserts rows into table, committing one transaction per
// batchSize rows.
func (db *DB) InsertBatches(ctx context.Context, table string, columns []string, rows [][]any, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(rows)
	}
	//nolint:gosec // table and column names come from the component configuration
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), db.Placeholders(len(columns)))

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := db.insertBatch(ctx, stmt, rows[start:end]); err != nil {
			return fmt.Errorf("insert rows %d-%d into %s: %w", start, end-1, table, err)
		}
	}
	return nil
}

func (db *DB) insertBatch(ctx context.Context, stmt string, rows [][]any) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ps, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if _, err = ps.ExecContext(ctx, row...); err != nil {
			_ = ps.Close()
			return err
		}
	}
	if err = ps.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

// QueryStrings runs query and returns the column labels and every row with
// its values as strings. NULL becomes "".
func (db *DB) QueryStrings(ctx context.Context, query string, args ...any) ([]string, [][]string, error) {
	if db.DB == nil {
		return nil, nil, fmt.Errorf("database connection not established")
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make([]string, len(columns))
		for i, v := range values {
			rec[i] = v.String
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return columns, out, nil
}
