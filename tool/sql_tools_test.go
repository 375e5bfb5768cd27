package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/kbagents/graph"
)

func findTool(t *testing.T, ts []tools.Tool, name string) tools.Tool {
	t.Helper()
	for _, tl := range ts {
		if tl.Name() == name {
			return tl
		}
	}
	t.Fatalf("tool %s not found", name)
	return nil
}

func TestSQLToolkit_Definitions(t *testing.T) {
	toolkit := NewSQLToolkit(nil)
	require.Len(t, toolkit, 3)

	names := make([]string, 0, len(toolkit))
	for _, tl := range toolkit {
		names = append(names, tl.Name())
		def, ok := tl.(Definer)
		require.True(t, ok, tl.Name())
		assert.Equal(t, tl.Name(), def.Definition().Name)
		assert.NotEmpty(t, def.Definition().Description)
	}
	assert.Equal(t, []string{"list_tables_tool", "get_table_schema_tool", "execute_sql_tool"}, names)

	params := toolkit[1].(Definer).Definition().Parameters.(map[string]any)
	assert.Equal(t, []string{"table_name"}, params["required"])
	params = toolkit[2].(Definer).Definition().Parameters.(map[string]any)
	assert.Contains(t, params["properties"], "query")
}

func TestSQLToolkit_Call(t *testing.T) {
	ctx := context.Background()
	toolkit := NewSQLToolkit(newTestDB(t))

	out, err := findTool(t, toolkit, "list_tables_tool").Call(ctx, "{}")
	require.NoError(t, err)
	assert.JSONEq(t, `["Customer","Invoice"]`, out)

	out, err = findTool(t, toolkit, "get_table_schema_tool").Call(ctx, `{"table_name":"Invoice"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"InvoiceId","type":"INTEGER","nullable":true,"default":null,"primary_key":true},
		{"name":"Total","type":"REAL","nullable":true,"default":null,"primary_key":false}
	]`, out)

	out, err = findTool(t, toolkit, "get_table_schema_tool").Call(ctx, "Invoice")
	require.NoError(t, err)
	assert.Contains(t, out, "InvoiceId")

	out, err = findTool(t, toolkit, "execute_sql_tool").Call(ctx, `{"query":"SELECT FirstName FROM Customer ORDER BY CustomerId LIMIT 2"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["FirstName"],"rows":[["Luís"],["Leonie"]]}`, out)

	_, err = findTool(t, toolkit, "get_table_schema_tool").Call(ctx, `{"table_name":"Album"}`)
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = findTool(t, toolkit, "execute_sql_tool").Call(ctx, `{}`)
	assert.Error(t, err)
}

func TestSQLToolkit_ResolvesDatabaseFromConfig(t *testing.T) {
	fromConfig := newTestDB(t)
	_, err := fromConfig.DB().Exec("CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	listTables := findTool(t, NewSQLToolkit(newTestDB(t)), "list_tables_tool")

	ctx := graph.WithConfig(context.Background(), &graph.Config{
		Configurable: map[string]any{DBEngineKey: fromConfig},
	})
	out, err := listTables.Call(ctx, "")
	require.NoError(t, err)
	assert.JSONEq(t, `["Artist","Customer","Invoice"]`, out)

	noFallback := findTool(t, NewSQLToolkit(nil), "list_tables_tool")
	_, err = noFallback.Call(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoDatabase)

	bad := graph.WithConfig(context.Background(), &graph.Config{
		Configurable: map[string]any{DBEngineKey: "sqlite:///chinook.db"},
	})
	_, err = noFallback.Call(bad, "")
	assert.Error(t, err)
}
