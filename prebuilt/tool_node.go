package prebuilt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/tool"
)

// ToolNode executes the tool calls requested by the last AI message.
type ToolNode struct {
	tools []tools.Tool
	index map[string]tools.Tool
}

// NewToolNode creates a ToolNode over inputTools. Later tools win on
// duplicate names.
func NewToolNode(inputTools []tools.Tool) *ToolNode {
	n := &ToolNode{tools: inputTools, index: make(map[string]tools.Tool, len(inputTools))}
	for _, t := range inputTools {
		n.index[t.Name()] = t
	}
	return n
}

// Definitions returns the function definitions to bind to a model. Tools
// implementing tool.Definer describe their own parameters; the others take
// a single "input" string.
func (n *ToolNode) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(n.tools))
	for _, t := range n.tools {
		var fn llms.FunctionDefinition
		if d, ok := t.(tool.Definer); ok {
			fn = d.Definition()
		} else {
			fn = llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"input": map[string]any{
							"type":        "string",
							"description": "The input query for the tool",
						},
					},
					"required":             []string{"input"},
					"additionalProperties": false,
				},
			}
		}
		defs = append(defs, llms.Tool{Type: "function", Function: &fn})
	}
	return defs
}

// Invoke runs every tool call of the last message and returns one tool
// message per call, in call order. Tool failures are reported back to the
// model as "Error: ..." results.
func (n *ToolNode) Invoke(ctx context.Context, messages []llms.MessageContent) ([]llms.MessageContent, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages")
	}
	last := messages[len(messages)-1]
	if last.Role != llms.ChatMessageTypeAI {
		return nil, fmt.Errorf("last message is not an AI message")
	}

	var out []llms.MessageContent
	for _, tc := range ToolCalls(last) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := ""
		args := ""
		if tc.FunctionCall != nil {
			name = tc.FunctionCall.Name
			args = tc.FunctionCall.Arguments
		}

		res, err := n.call(ctx, name, args)
		if err != nil {
			log.Warn("[tools] %s failed: %v", name, err)
			res = fmt.Sprintf("Error: %v", err)
		}

		out = append(out, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{
				llms.ToolCallResponse{
					ToolCallID: tc.ID,
					Name:       name,
					Content:    res,
				},
			},
		})
	}
	return out, nil
}

func (n *ToolNode) call(ctx context.Context, name, args string) (string, error) {
	t, ok := n.index[name]
	if !ok {
		return "", fmt.Errorf("tool %q not found", name)
	}

	input := args
	if _, ok := t.(tool.Definer); !ok {
		var parsed map[string]any
		if json.Unmarshal([]byte(args), &parsed) == nil {
			if v, ok := parsed["input"].(string); ok {
				input = v
			}
		}
	}

	log.Info("[tools] calling %s", name)
	return t.Call(ctx, input)
}

// ToolCalls returns the tool calls carried by msg.
func ToolCalls(msg llms.MessageContent) []llms.ToolCall {
	var calls []llms.ToolCall
	for _, part := range msg.Parts {
		if tc, ok := part.(llms.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// HasToolCalls reports whether the last message is an AI message with
// pending tool calls.
func HasToolCalls(messages []llms.MessageContent) bool {
	if len(messages) == 0 {
		return false
	}
	last := messages[len(messages)-1]
	return last.Role == llms.ChatMessageTypeAI && len(ToolCalls(last)) > 0
}

// aiMessage converts a model choice into an AI message.
func aiMessage(choice *llms.ContentChoice) llms.MessageContent {
	msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if choice.Content != "" {
		msg.Parts = append(msg.Parts, llms.TextPart(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		msg.Parts = append(msg.Parts, tc)
	}
	return msg
}

// firstChoice returns the first choice of a model response.
func firstChoice(resp *llms.ContentResponse) (*llms.ContentChoice, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0], nil
}
