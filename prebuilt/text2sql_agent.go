package prebuilt

import (
	"context"
	"fmt"
	"slices"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/log"
)

// SQLSystemPrompt instructs the model to find the table, read its schema,
// write the query and run it through the tools.
const SQLSystemPrompt = "You are a Sr. SQL developer tasked with generating SQL queries. " +
	"Perform the following steps:\n" +
	"First, find out the appropriate table name based on all tables. " +
	"Then get the table's schema to understand the columns. " +
	"With the table name and the schema, generate the ANSI SQL query you think is applicable to the user question. " +
	"Finally, use a tool to execute the above SQL query and output the result based on the user question."

// Text2SQLState flows through the text-to-SQL graph.
type Text2SQLState struct {
	Messages  []llms.MessageContent
	UserQuery string

	// Names maps a message index to the node that produced it.
	Names map[int]string
}

// Text2SQLConfig configures CreateText2SQLAgent.
type Text2SQLConfig struct {
	Model llms.Model
	Tools []tools.Tool

	// SystemPrompt defaults to SQLSystemPrompt.
	SystemPrompt string

	// CallOptions are added to every model call.
	CallOptions []llms.CallOption

	// RetryPolicy is applied to every node. Optional.
	RetryPolicy *graph.RetryPolicy
}

// CreateText2SQLAgent builds START -> messages_builder -> dba_agent and a
// loop through dba_tools while the model keeps requesting tool calls.
func CreateText2SQLAgent(config Text2SQLConfig) (*graph.StateRunnable[Text2SQLState], error) {
	if config.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if len(config.Tools) == 0 {
		return nil, fmt.Errorf("at least one tool is required")
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = SQLSystemPrompt
	}

	toolNode := NewToolNode(config.Tools)
	callOptions := append([]llms.CallOption{
		llms.WithTools(toolNode.Definitions()),
		llms.WithToolChoice("auto"),
	}, config.CallOptions...)

	workflow := graph.NewStateGraph[Text2SQLState]()

	workflow.AddNode("messages_builder", "Seed the conversation", func(_ context.Context, state Text2SQLState) (Text2SQLState, error) {
		if state.UserQuery == "" {
			return state, fmt.Errorf("user query is empty")
		}
		state.Messages = slices.Concat(state.Messages, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, config.SystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, state.UserQuery),
		})
		return state, nil
	})

	workflow.AddNode("dba_agent", "SQL developer model with the toolkit bound", func(ctx context.Context, state Text2SQLState) (Text2SQLState, error) {
		resp, err := config.Model.GenerateContent(ctx, state.Messages, callOptions...)
		if err != nil {
			return state, fmt.Errorf("model call failed: %w", err)
		}
		choice, err := firstChoice(resp)
		if err != nil {
			return state, err
		}
		log.Debug("[text2sql] model requested %d tool calls", len(choice.ToolCalls))
		state.Messages = slices.Concat(state.Messages, []llms.MessageContent{aiMessage(choice)})
		if state.Names == nil {
			state.Names = map[int]string{}
		}
		state.Names[len(state.Messages)-1] = "dba_agent"
		return state, nil
	})

	workflow.AddNode("dba_tools", "Run the requested SQL tools", func(ctx context.Context, state Text2SQLState) (Text2SQLState, error) {
		results, err := toolNode.Invoke(ctx, state.Messages)
		if err != nil {
			return state, err
		}
		state.Messages = slices.Concat(state.Messages, results)
		return state, nil
	})

	workflow.AddEdge(graph.START, "messages_builder")
	workflow.AddEdge("messages_builder", "dba_agent")
	workflow.AddConditionalEdge("dba_agent", func(_ context.Context, state Text2SQLState) string {
		if HasToolCalls(state.Messages) {
			return "dba_tools"
		}
		return graph.END
	}, "dba_tools", graph.END)
	workflow.AddEdge("dba_tools", "dba_agent")
	workflow.SetRetryPolicy(config.RetryPolicy)

	return workflow.Compile()
}
