package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, opts ...SQLOption) *SQLDatabase {
	t.Helper()
	db, err := OpenSQLDatabase("sqlite3", ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.DB().Exec(`
		CREATE TABLE Customer (
			CustomerId INTEGER PRIMARY KEY,
			FirstName TEXT NOT NULL,
			LastName TEXT,
			Country TEXT DEFAULT 'USA'
		);
		CREATE TABLE Invoice (InvoiceId INTEGER PRIMARY KEY, Total REAL);
		INSERT INTO Customer (FirstName, LastName) VALUES
			('Luís', 'Gonçalves'), ('Leonie', 'Köhler'), ('François', 'Tremblay'),
			('Bjørn', 'Hansen'), ('František', 'Wichterlová'), ('Helena', 'Holý');
	`)
	require.NoError(t, err)
	return db
}

func TestDriverDialect(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		dialect Dialect
	}{
		{"sqlite3", "sqlite3", DialectSQLite},
		{"SQLite", "sqlite3", DialectSQLite},
		{"pgx", "pgx", DialectPostgres},
		{"postgres", "pgx", DialectPostgres},
		{"postgresql", "pgx", DialectPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			name, dialect, err := DriverDialect(tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.dialect, dialect)
		})
	}

	_, _, err := DriverDialect("oracle")
	assert.Error(t, err)
}

func TestSQLDatabase_ListTables(t *testing.T) {
	db := newTestDB(t)
	tables, err := db.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer", "Invoice"}, tables)
	assert.Equal(t, DialectSQLite, db.Dialect())
}

func TestSQLDatabase_TableSchema(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	columns, err := db.TableSchema(ctx, "Customer")
	require.NoError(t, err)
	require.Len(t, columns, 4)

	assert.Equal(t, "CustomerId", columns[0].Name)
	assert.Equal(t, "INTEGER", columns[0].Type)
	assert.True(t, columns[0].PrimaryKey)

	assert.Equal(t, "FirstName", columns[1].Name)
	assert.False(t, columns[1].Nullable)
	assert.Nil(t, columns[1].Default)

	assert.True(t, columns[2].Nullable)
	require.NotNil(t, columns[3].Default)
	assert.Equal(t, "'USA'", *columns[3].Default)

	_, err = db.TableSchema(ctx, "Nope")
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.Contains(t, err.Error(), "Nope")
}

func TestSQLDatabase_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("select", func(t *testing.T) {
		db := newTestDB(t)
		result, err := db.Execute(ctx, "SELECT FirstName, LastName FROM Customer ORDER BY CustomerId LIMIT 5")
		require.NoError(t, err)
		assert.Equal(t, []string{"FirstName", "LastName"}, result.Columns)
		require.Len(t, result.Rows, 5)
		assert.Equal(t, []any{"Luís", "Gonçalves"}, result.Rows[0])
		assert.False(t, result.Truncated)
	})

	t.Run("max rows", func(t *testing.T) {
		db := newTestDB(t, WithMaxRows(2))
		result, err := db.Execute(ctx, "SELECT CustomerId FROM Customer ORDER BY CustomerId")
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(1)}, {int64(2)}}, result.Rows)
		assert.True(t, result.Truncated)
	})

	t.Run("commit", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.Execute(ctx, "INSERT INTO Invoice (Total) VALUES (1.98)")
		require.NoError(t, err)

		result, err := db.Execute(ctx, "SELECT COUNT(*) FROM Invoice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.Rows[0][0])
	})

	t.Run("read only rolls back", func(t *testing.T) {
		db := newTestDB(t, WithReadOnly(true))
		_, err := db.Execute(ctx, "DELETE FROM Customer")
		require.NoError(t, err)

		result, err := db.Execute(ctx, "SELECT COUNT(*) FROM Customer")
		require.NoError(t, err)
		assert.Equal(t, int64(6), result.Rows[0][0])
	})

	t.Run("errors", func(t *testing.T) {
		db := newTestDB(t)
		_, err := db.Execute(ctx, "   ")
		assert.Error(t, err)
		_, err = db.Execute(ctx, "SELECT * FROM Missing")
		assert.Error(t, err)
	})
}

func TestQueryResult_JSON(t *testing.T) {
	db := newTestDB(t)
	result, err := db.Execute(context.Background(), "SELECT CustomerId, Country FROM Customer WHERE CustomerId = 1")
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["CustomerId","Country"],"rows":[[1,"USA"]]}`, string(data))
}
