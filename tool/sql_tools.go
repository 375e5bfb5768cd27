package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/kbagents/graph"
)

// DBEngineKey is the run configuration key the SQL tools read the database from.
const DBEngineKey = "db_engine"

// ErrNoDatabase is returned when neither the run configuration nor the tool
// carries a database.
var ErrNoDatabase = errors.New("no database available")

// Definer is implemented by tools that describe their own parameters.
// Such tools receive the raw JSON arguments of a tool call.
type Definer interface {
	Definition() llms.FunctionDefinition
}

// NewSQLToolkit returns the list_tables_tool, get_table_schema_tool and
// execute_sql_tool tools. db is used when the run configuration holds none
// and may be nil.
func NewSQLToolkit(db *SQLDatabase) []tools.Tool {
	return []tools.Tool{
		&ListTablesTool{DB: db},
		&TableSchemaTool{DB: db},
		&ExecuteSQLTool{DB: db},
	}
}

// resolveDB prefers the run configuration over the fallback.
func resolveDB(ctx context.Context, fallback *SQLDatabase) (*SQLDatabase, error) {
	if v, ok := graph.GetConfig(ctx).Get(DBEngineKey); ok && v != nil {
		db, ok := v.(*SQLDatabase)
		if !ok {
			return nil, fmt.Errorf("%s has unexpected type %T", DBEngineKey, v)
		}
		return db, nil
	}
	if fallback == nil {
		return nil, ErrNoDatabase
	}
	return fallback, nil
}

// argument extracts key from a JSON object input. Non-JSON input is used as is.
func argument(input, key string) (string, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "{") {
		return input, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	v, ok := args[key].(string)
	if !ok {
		v, ok = args["input"].(string)
	}
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing argument %q", key)
	}
	return v, nil
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// ListTablesTool lists the tables of the database.
type ListTablesTool struct {
	DB *SQLDatabase
}

var (
	_ tools.Tool = (*ListTablesTool)(nil)
	_ Definer    = (*ListTablesTool)(nil)
)

func (t *ListTablesTool) Name() string {
	return "list_tables_tool"
}

func (t *ListTablesTool) Description() string {
	return "List all the tables in the database."
}

func (t *ListTablesTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  objectSchema(map[string]any{}),
	}
}

func (t *ListTablesTool) Call(ctx context.Context, _ string) (string, error) {
	db, err := resolveDB(ctx, t.DB)
	if err != nil {
		return "", err
	}
	tables, err := db.ListTables(ctx)
	if err != nil {
		return "", err
	}
	return toJSON(tables)
}

// TableSchemaTool describes the columns of one table.
type TableSchemaTool struct {
	DB *SQLDatabase
}

var (
	_ tools.Tool = (*TableSchemaTool)(nil)
	_ Definer    = (*TableSchemaTool)(nil)
)

func (t *TableSchemaTool) Name() string {
	return "get_table_schema_tool"
}

func (t *TableSchemaTool) Description() string {
	return "Get the schema of a table: column names, types, nullability, defaults and primary keys."
}

func (t *TableSchemaTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: objectSchema(map[string]any{
			"table_name": map[string]any{
				"type":        "string",
				"description": "The name of the table",
			},
		}, "table_name"),
	}
}

func (t *TableSchemaTool) Call(ctx context.Context, input string) (string, error) {
	table, err := argument(input, "table_name")
	if err != nil {
		return "", err
	}
	db, err := resolveDB(ctx, t.DB)
	if err != nil {
		return "", err
	}
	columns, err := db.TableSchema(ctx, table)
	if err != nil {
		return "", err
	}
	return toJSON(columns)
}

// ExecuteSQLTool runs a query and returns its rows.
type ExecuteSQLTool struct {
	DB *SQLDatabase
}

var (
	_ tools.Tool = (*ExecuteSQLTool)(nil)
	_ Definer    = (*ExecuteSQLTool)(nil)
)

func (t *ExecuteSQLTool) Name() string {
	return "execute_sql_tool"
}

func (t *ExecuteSQLTool) Description() string {
	return "Execute a SQL query against the database and return the resulting rows."
}

func (t *ExecuteSQLTool) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: objectSchema(map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The SQL query to execute",
			},
		}, "query"),
	}
}

func (t *ExecuteSQLTool) Call(ctx context.Context, input string) (string, error) {
	query, err := argument(input, "query")
	if err != nil {
		return "", err
	}
	db, err := resolveDB(ctx, t.DB)
	if err != nil {
		return "", err
	}
	result, err := db.Execute(ctx, query)
	if err != nil {
		return "", err
	}
	return toJSON(result)
}
