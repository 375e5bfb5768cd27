package prebuilt

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tmc/langchaingo/llms"
)

const bannerWidth = 80

var roleTitles = map[llms.ChatMessageType]string{
	llms.ChatMessageTypeSystem:   "System Message",
	llms.ChatMessageTypeHuman:    "Human Message",
	llms.ChatMessageTypeAI:       "Ai Message",
	llms.ChatMessageTypeTool:     "Tool Message",
	llms.ChatMessageTypeGeneric:  "Message",
	llms.ChatMessageTypeFunction: "Function Message",
}

var roleColors = map[llms.ChatMessageType]lipgloss.Color{
	llms.ChatMessageTypeSystem: lipgloss.Color("245"),
	llms.ChatMessageTypeHuman:  lipgloss.Color("39"),
	llms.ChatMessageTypeAI:     lipgloss.Color("42"),
	llms.ChatMessageTypeTool:   lipgloss.Color("213"),
}

// Banner centers title in a line of '=' characters.
func Banner(title string) string {
	title = " " + title + " "
	sep := max((bannerWidth-len(title))/2, 0)
	left := strings.Repeat("=", sep)
	right := left
	if len(title)%2 == 1 {
		right += "="
	}
	return left + title + right
}

// PrintOption configures PrettyPrint.
type PrintOption func(*printOptions)

type printOptions struct {
	names map[int]string
}

// WithNames labels messages by index with the name of their author.
func WithNames(names map[int]string) PrintOption {
	return func(o *printOptions) {
		o.names = names
	}
}

// PrettyPrint writes a readable transcript of messages to w.
func PrettyPrint(w io.Writer, messages []llms.MessageContent, opts ...PrintOption) error {
	var o printOptions
	for _, opt := range opts {
		opt(&o)
	}

	renderer := lipgloss.NewRenderer(w)
	for i, msg := range messages {
		title, ok := roleTitles[msg.Role]
		if !ok {
			title = string(msg.Role)
		}
		style := renderer.NewStyle().Bold(true)
		if c, ok := roleColors[msg.Role]; ok {
			style = style.Foreground(c)
		}

		var sb strings.Builder
		sb.WriteString(style.Render(Banner(title)))
		sb.WriteString("\n")
		if name := o.names[i]; name != "" {
			fmt.Fprintf(&sb, "Name: %s\n", name)
		}
		writeParts(&sb, msg)
		sb.WriteString("\n")

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

func writeParts(sb *strings.Builder, msg llms.MessageContent) {
	var calls []llms.ToolCall
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			fmt.Fprintf(sb, "\n%s\n", p.Text)
		case llms.ToolCallResponse:
			fmt.Fprintf(sb, "Name: %s\n\n%s\n", p.Name, p.Content)
		case llms.ToolCall:
			calls = append(calls, p)
		default:
			fmt.Fprintf(sb, "\n%v\n", p)
		}
	}

	if len(calls) == 0 {
		return
	}
	sb.WriteString("Tool Calls:\n")
	for _, tc := range calls {
		if tc.FunctionCall == nil {
			continue
		}
		fmt.Fprintf(sb, "  %s (%s)\n", tc.FunctionCall.Name, tc.ID)
		fmt.Fprintf(sb, " Call ID: %s\n", tc.ID)
		sb.WriteString("  Args:\n")
		writeArgs(sb, tc.FunctionCall.Arguments)
	}
}

func writeArgs(sb *strings.Builder, raw string) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		fmt.Fprintf(sb, "    %s\n", raw)
		return
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "    %s: %v\n", k, args[k])
	}
}

// MessageText concatenates the text parts of msg.
func MessageText(msg llms.MessageContent) string {
	var sb strings.Builder
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
