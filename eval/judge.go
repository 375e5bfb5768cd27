package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// judge asks a grading model for JSON answers.
type judge struct {
	model llms.Model
}

func (j judge) generateJSON(ctx context.Context, prompt string, out any) error {
	choices, err := j.generate(ctx, prompt, llms.WithTemperature(0))
	if err != nil {
		return err
	}
	return parseJSON(choices[0].Content, out)
}

// sample asks for n completions of prompt at temperature. Providers that
// ignore n may return fewer choices.
func (j judge) sample(ctx context.Context, prompt string, n int, temperature float64) ([]*llms.ContentChoice, error) {
	return j.generate(ctx, prompt, llms.WithN(n), llms.WithTemperature(temperature))
}

func (j judge) generate(ctx context.Context, prompt string, opts ...llms.CallOption) ([]*llms.ContentChoice, error) {
	resp, err := j.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		append(opts, llms.WithJSONMode())...,
	)
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge returned no choices")
	}
	return resp.Choices, nil
}

// parseJSON decodes a model reply, tolerating ```json fences and prose around
// the outermost object.
func parseJSON(text string, out any) error {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}

	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("failed to parse judge output %q: %w", truncate(text, 200), err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// numbered renders items as "1. item" lines.
func numbered(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, item)
	}
	return sb.String()
}
