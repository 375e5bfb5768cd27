// Package tool provides the SQL toolkit used by the text-to-SQL agent.
//
// SQLDatabase wraps a database/sql handle for SQLite (mattn/go-sqlite3) or
// PostgreSQL (pgx stdlib) and offers table listing, schema lookup and query
// execution. NewSQLToolkit exposes those operations as langchaingo tools:
//
//	db, err := tool.OpenSQLDatabase("sqlite3", "Chinook_Sqlite.sqlite", tool.WithMaxRows(100))
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	tools := tool.NewSQLToolkit(db)
//
// The tools look for a database in the run configuration first, under the
// "db_engine" key, so one compiled agent can serve several databases:
//
//	cfg := &graph.Config{Configurable: map[string]any{"db_engine": db}}
//	result, err := agent.InvokeWithConfig(ctx, state, cfg)
package tool
