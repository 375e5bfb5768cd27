package tool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/kbagents/log"
)

// Dialect identifies the SQL flavor behind a SQLDatabase.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrTableNotFound is returned by TableSchema for an unknown table.
var ErrTableNotFound = errors.New("table not found")

// SQLDatabase is a database the SQL tools can inspect and query.
type SQLDatabase struct {
	db      *sql.DB
	dialect Dialect

	// MaxRows caps the rows returned by Execute. Zero means no cap.
	MaxRows int
	// ReadOnly rolls back every Execute transaction instead of committing.
	ReadOnly bool
}

// SQLOption configures a SQLDatabase.
type SQLOption func(*SQLDatabase)

// WithMaxRows caps the number of rows Execute returns.
func WithMaxRows(n int) SQLOption {
	return func(d *SQLDatabase) {
		if n < 0 {
			n = 0
		}
		d.MaxRows = n
	}
}

// WithReadOnly makes Execute roll back instead of committing.
func WithReadOnly(readOnly bool) SQLOption {
	return func(d *SQLDatabase) {
		d.ReadOnly = readOnly
	}
}

// DriverDialect maps a driver alias to the registered database/sql driver
// name and its dialect.
func DriverDialect(driver string) (string, Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return "sqlite3", DialectSQLite, nil
	case "pgx", "postgres", "postgresql":
		return "pgx", DialectPostgres, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLDatabase opens and pings a database.
func OpenSQLDatabase(driver, dsn string, opts ...SQLOption) (*SQLDatabase, error) {
	name, dialect, err := DriverDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewSQLDatabase(db, dialect, opts...), nil
}

// NewSQLDatabase wraps an open handle.
func NewSQLDatabase(db *sql.DB, dialect Dialect, opts ...SQLOption) *SQLDatabase {
	d := &SQLDatabase{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dialect returns the SQL flavor of the database.
func (d *SQLDatabase) Dialect() Dialect {
	return d.dialect
}

// DB returns the underlying handle.
func (d *SQLDatabase) DB() *sql.DB {
	return d.db
}

// Close closes the underlying handle.
func (d *SQLDatabase) Close() error {
	return d.db.Close()
}

// ListTables returns the user table names, sorted.
func (d *SQLDatabase) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch d.dialect {
	case DialectPostgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Column describes one column of a table.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Nullable   bool    `json:"nullable"`
	Default    *string `json:"default"`
	PrimaryKey bool    `json:"primary_key"`
}

// TableSchema returns the columns of table in declaration order.
func (d *SQLDatabase) TableSchema(ctx context.Context, table string) ([]Column, error) {
	var query string
	switch d.dialect {
	case DialectPostgres:
		query = `SELECT c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
					ON tc.constraint_name = k.constraint_name AND tc.table_schema = k.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND k.column_name = c.column_name
			)
			FROM information_schema.columns c
			WHERE c.table_schema = current_schema() AND c.table_name = $1
			ORDER BY c.ordinal_position`
	default:
		query = `SELECT name, type, "notnull" = 0, dflt_value, pk > 0
			FROM pragma_table_info(?) ORDER BY cid`
	}

	rows, err := d.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			col  Column
			dflt sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &dflt, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return columns, nil
}

// QueryResult holds the rows produced by Execute.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Execute runs query inside a transaction. The transaction is committed,
// or rolled back when the database is read-only.
func (d *SQLDatabase) Execute(ctx context.Context, query string) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	log.Debug("[tool] executing sql: %s", query)
	result, err := d.query(ctx, tx, query)
	if err != nil {
		return nil, err
	}

	if d.ReadOnly {
		return result, tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

func (d *SQLDatabase) query(ctx context.Context, tx *sql.Tx, query string) (*QueryResult, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		if d.MaxRows > 0 && len(result.Rows) == d.MaxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
