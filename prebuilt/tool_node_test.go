package prebuilt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/kbagents/tool"
)

func TestToolNode(t *testing.T) {
	node := NewToolNode([]tools.Tool{
		&MockTool{name: "test-tool"},
		&MockTool{name: "broken", err: errors.New("disk on fire")},
	})

	aiMsg := llms.MessageContent{
		Role: llms.ChatMessageTypeAI,
		Parts: []llms.ContentPart{
			llms.TextPart("let me check"),
			toolCall("call_1", "test-tool", `{"input": "test-input"}`),
			toolCall("call_2", "broken", `{"input": "x"}`),
			toolCall("call_3", "missing", `{}`),
		},
	}

	msgs, err := node.Invoke(context.Background(), []llms.MessageContent{aiMsg})
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	want := []llms.ToolCallResponse{
		{ToolCallID: "call_1", Name: "test-tool", Content: "Executed test-tool with test-input"},
		{ToolCallID: "call_2", Name: "broken", Content: "Error: disk on fire"},
		{ToolCallID: "call_3", Name: "missing", Content: `Error: tool "missing" not found`},
	}
	for i, msg := range msgs {
		assert.Equal(t, llms.ChatMessageTypeTool, msg.Role)
		require.Len(t, msg.Parts, 1)
		assert.Equal(t, want[i], msg.Parts[0])
	}
}

func TestToolNode_DefinerGetsRawArguments(t *testing.T) {
	db, err := tool.OpenSQLDatabase("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	_, err = db.DB().Exec("CREATE TABLE Track (TrackId INTEGER PRIMARY KEY, Name TEXT)")
	require.NoError(t, err)

	node := NewToolNode(tool.NewSQLToolkit(db))
	msgs, err := node.Invoke(context.Background(), []llms.MessageContent{{
		Role:  llms.ChatMessageTypeAI,
		Parts: []llms.ContentPart{toolCall("c1", "get_table_schema_tool", `{"table_name":"Track"}`)},
	}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	resp := msgs[0].Parts[0].(llms.ToolCallResponse)
	assert.Contains(t, resp.Content, `"name":"TrackId"`)
}

func TestToolNode_RequiresAIMessage(t *testing.T) {
	node := NewToolNode(nil)

	_, err := node.Invoke(context.Background(), nil)
	assert.Error(t, err)

	_, err = node.Invoke(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "hi"),
	})
	assert.Error(t, err)
}

func TestToolNode_Definitions(t *testing.T) {
	node := NewToolNode(append([]tools.Tool{&MockTool{name: "plain"}}, tool.NewSQLToolkit(nil)...))
	defs := node.Definitions()
	require.Len(t, defs, 4)

	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "plain", defs[0].Function.Name)
	params := defs[0].Function.Parameters.(map[string]any)
	assert.Equal(t, []string{"input"}, params["required"])

	assert.Equal(t, "execute_sql_tool", defs[3].Function.Name)
	params = defs[3].Function.Parameters.(map[string]any)
	assert.Equal(t, []string{"query"}, params["required"])
}

func TestHasToolCalls(t *testing.T) {
	assert.False(t, HasToolCalls(nil))
	assert.False(t, HasToolCalls([]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeAI, "done")}))
	assert.True(t, HasToolCalls([]llms.MessageContent{{
		Role:  llms.ChatMessageTypeAI,
		Parts: []llms.ContentPart{toolCall("1", "x", "{}")},
	}}))
	assert.False(t, HasToolCalls([]llms.MessageContent{{
		Role:  llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{llms.ToolCallResponse{ToolCallID: "1", Name: "x"}},
	}}))
}
